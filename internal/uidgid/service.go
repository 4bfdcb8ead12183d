// Package uidgid orchestrates identity allocation: given upstream
// identities it creates or fetches the corresponding OS users, groups,
// and memberships under a cross-process lock and returns everything a
// spawner needs.
package uidgid

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/background"
	"github.com/jshihstsci/uidgid/internal/config"
	"github.com/jshihstsci/uidgid/internal/groups"
	"github.com/jshihstsci/uidgid/internal/hostdirs"
	"github.com/jshihstsci/uidgid/internal/types"
	"github.com/jshihstsci/uidgid/internal/users"
)

const lockRetryDelay = 100 * time.Millisecond

// Service owns the registries and the process lock guarding every
// multi-step mutation across them.
type Service struct {
	cfg    config.Config
	users  *users.Store
	groups *groups.Store
	dirs   hostdirs.Provisioner
	worker *background.Worker
	log    *zap.Logger

	// mu serializes goroutines within this process; the file lock only
	// excludes other processes.
	mu   sync.Mutex
	lock *flock.Flock
}

func New(cfg config.Config, us *users.Store, gs *groups.Store, dirs hostdirs.Provisioner, worker *background.Worker, log *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		users:  us,
		groups: gs,
		lock:   flock.New(cfg.LockPath()),
		dirs:   dirs,
		worker: worker,
		log:    log,
	}
}

// GetSpawnInfo resolves upstream identities to OS identities, creating
// any users, groups, and memberships that do not exist yet. The whole
// read-modify-write sequence runs under the process lock.
func (s *Service) GetSpawnInfo(ctx context.Context, rawUUID, rawEzid, rawActiveTeam string, rawTeams []string) (types.SpawnInfo, error) {
	uuid, err := types.ParseUuid(rawUUID)
	if err != nil {
		return types.SpawnInfo{}, err
	}
	ezid, err := types.ParseEzid(rawEzid)
	if err != nil {
		return types.SpawnInfo{}, err
	}
	activeTeam, err := types.ParseTeamName(rawActiveTeam)
	if err != nil {
		return types.SpawnInfo{}, err
	}
	teams := make([]types.TeamName, len(rawTeams))
	for i, raw := range rawTeams {
		if teams[i], err = types.ParseTeamName(raw); err != nil {
			return types.SpawnInfo{}, err
		}
	}

	if err := s.acquireLock(ctx); err != nil {
		return types.SpawnInfo{}, err
	}
	defer s.releaseLock()

	info, err := s.lockedGetSpawnInfo(uuid, ezid, activeTeam, teams)
	if err != nil {
		s.log.Error("get-spawn-info failed", zap.String("ezid", string(ezid)), zap.Error(err))
		return types.SpawnInfo{}, err
	}
	return info, nil
}

func (s *Service) acquireLock(ctx context.Context) error {
	s.mu.Lock()
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()
	ok, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", types.ErrLock, err)
	}
	if !ok {
		s.mu.Unlock()
		return types.ErrLock
	}
	return nil
}

func (s *Service) releaseLock() {
	if err := s.lock.Unlock(); err != nil {
		s.log.Error("releasing process lock", zap.Error(err))
	}
	s.mu.Unlock()
}

func (s *Service) lockedGetSpawnInfo(uuid types.Uuid, ezid types.Ezid, activeTeam types.TeamName, teams []types.TeamName) (types.SpawnInfo, error) {
	s.log.Info("get-spawn-info",
		zap.String("uuid", string(uuid)),
		zap.String("ezid", string(ezid)),
		zap.String("active_team", string(activeTeam)),
		zap.Strings("teams", teamStrings(teams)),
	)

	user, err := s.ensureUser(uuid, ezid)
	if err != nil {
		return types.SpawnInfo{}, err
	}

	for _, team := range teams {
		if err := s.ensureTeam(user.Username, team); err != nil {
			return types.SpawnInfo{}, err
		}
	}

	if err := s.reconcileMemberships(user.Username, teams); err != nil {
		return types.SpawnInfo{}, err
	}

	// The caller's own ezid selects the personal group.
	if !containsTeam(teams, activeTeam) && activeTeam != types.TeamName(ezid) {
		return types.SpawnInfo{}, fmt.Errorf("%w: active team %s not in user's teams %v",
			types.ErrConflict, activeTeam, teamStrings(teams))
	}
	active, err := s.groups.Get(string(activeTeam), groups.ByTeamName)
	if err != nil {
		return types.SpawnInfo{}, err
	}

	allGids, err := s.allUserGids(user.Username)
	if err != nil {
		return types.SpawnInfo{}, err
	}
	etcPasswd, err := s.users.EtcPasswd()
	if err != nil {
		return types.SpawnInfo{}, err
	}
	etcGroup, err := s.groups.EtcGroup()
	if err != nil {
		return types.SpawnInfo{}, err
	}

	s.worker.Submit(s.backupTables)

	info := types.SpawnInfo{
		UID:         user.UID,
		GID:         active.GID,
		AllUserGids: allGids,
		Username:    user.Username,
		Groupname:   active.Groupname,
		EtcPasswd:   etcPasswd,
		EtcGroup:    etcGroup,
	}
	s.log.Info("spawn info resolved",
		zap.String("username", string(info.Username)),
		zap.Int("uid", info.UID),
		zap.Int("gid", info.GID),
		zap.Ints("all_user_gids", info.AllUserGids),
	)
	return info, nil
}

// ensureUser finds the user by uuid or creates them along with their
// personal group and home directory.
func (s *Service) ensureUser(uuid types.Uuid, ezid types.Ezid) (types.User, error) {
	exists, err := s.users.Exists(string(uuid), users.ByUUID)
	if err != nil {
		return types.User{}, err
	}
	if exists {
		user, err := s.users.Get(string(uuid), users.ByUUID)
		if err != nil {
			return types.User{}, err
		}
		s.log.Info("fetched user", zap.String("username", string(user.Username)), zap.Int("uid", user.UID))
		return user, nil
	}

	pool, err := s.allNames()
	if err != nil {
		return types.User{}, err
	}
	user, err := s.users.Add(users.AddRequest{UUID: uuid, Ezid: ezid, ExistingNames: pool})
	if err != nil {
		return types.User{}, err
	}
	personal, err := s.groups.Create(groups.CreateRequest{
		TeamName:      types.TeamName(user.Ezid),
		Groupname:     types.Groupname(user.Username),
		GID:           user.UID,
		Type:          types.TypeIndividual,
		ExistingNames: pool,
	})
	if err != nil {
		return types.User{}, err
	}
	if err := s.groups.AddMember(user.Username, personal.Groupname); err != nil {
		return types.User{}, err
	}
	if err := s.dirs.EnsureUserHome(string(user.Username), user.UID, user.GID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

// ensureTeam finds the team's group or creates it together with its
// admin pseudo-user and team directory, and makes sure username is a
// member.
func (s *Service) ensureTeam(user types.Username, team types.TeamName) error {
	exists, err := s.groups.TeamExists(team)
	if err != nil {
		return err
	}
	if exists {
		group, err := s.groups.Get(string(team), groups.ByTeamName)
		if err != nil {
			return err
		}
		if types.GroupGID.Contains(group.GID) {
			admin, err := s.users.Get(strconv.Itoa(group.GID), users.ByUID)
			if err != nil {
				return err
			}
			s.log.Info("fetched group admin", zap.String("username", string(admin.Username)))
		} else {
			s.log.Info("no admin user for group", zap.String("groupname", string(group.Groupname)))
		}
		member, err := s.groups.IsMember(user, group.Groupname)
		if err != nil {
			return err
		}
		if !member {
			return s.groups.AddMember(user, group.Groupname)
		}
		return nil
	}

	pool, err := s.allNames()
	if err != nil {
		return err
	}
	group, err := s.groups.Create(groups.CreateRequest{
		TeamName:      team,
		Type:          types.TypeGroup,
		ExistingNames: pool,
	})
	if err != nil {
		return err
	}
	// The admin pseudo-user shares the team's gid as its uid and is
	// named after the group.
	admin, err := s.users.Add(users.AddRequest{
		UUID:          types.NewUuid(),
		Ezid:          types.Ezid(string(group.Groupname) + "-admin"),
		UID:           group.GID,
		GID:           group.GID,
		Type:          types.TypeGroup,
		ExistingNames: pool,
	})
	if err != nil {
		return err
	}
	if err := s.groups.AddMember(user, group.Groupname); err != nil {
		return err
	}
	if err := s.groups.AddMember(admin.Username, group.Groupname); err != nil {
		return err
	}
	if err := s.dirs.EnsureTeamDir(string(group.Groupname), group.GID); err != nil {
		return err
	}
	return s.dirs.EnsureUserHome(string(admin.Username), group.GID, group.GID)
}

// reconcileMemberships drops the user from every group that is neither
// one of the requested teams nor their personal group. The request is
// the source of truth.
func (s *Service) reconcileMemberships(user types.Username, teams []types.TeamName) error {
	current, err := s.groups.GroupsOf(user)
	if err != nil {
		return err
	}
	keep := map[types.Groupname]bool{types.Groupname(user): true}
	for _, team := range teams {
		g, err := s.groups.Get(string(team), groups.ByTeamName)
		if err != nil {
			return err
		}
		keep[g.Groupname] = true
	}
	for _, groupname := range current {
		if keep[groupname] {
			continue
		}
		if err := s.groups.RemoveMember(user, groupname); err != nil {
			return err
		}
		s.log.Info("membership removed",
			zap.String("username", string(user)), zap.String("groupname", string(groupname)))
	}
	return nil
}

// allUserGids returns the sorted gids of every group the user belongs
// to, personal group included.
func (s *Service) allUserGids(user types.Username) ([]int, error) {
	names, err := s.groups.GroupsOf(user)
	if err != nil {
		return nil, err
	}
	gids := make([]int, 0, len(names))
	for _, name := range names {
		gid, err := s.groups.LookupGid(name)
		if err != nil {
			return nil, err
		}
		gids = append(gids, gid)
	}
	sort.Ints(gids)
	return gids, nil
}

// allNames is the union of every user and group name ever recorded,
// used as the collision pool when deriving new names.
func (s *Service) allNames() (map[string]bool, error) {
	usernames, err := s.users.Usernames()
	if err != nil {
		return nil, err
	}
	groupnames, err := s.groups.Groupnames()
	if err != nil {
		return nil, err
	}
	pool := make(map[string]bool, len(usernames)+len(groupnames))
	for _, n := range usernames {
		pool[n] = true
	}
	for _, n := range groupnames {
		pool[n] = true
	}
	return pool, nil
}

func containsTeam(teams []types.TeamName, t types.TeamName) bool {
	for _, team := range teams {
		if team == t {
			return true
		}
	}
	return false
}

func teamStrings(teams []types.TeamName) []string {
	out := make([]string, len(teams))
	for i, t := range teams {
		out[i] = string(t)
	}
	return out
}
