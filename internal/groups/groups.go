// Package groups manages OS groups, gids, /etc/group emission, group
// membership, and the durable group rosetta table.
package groups

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/tableio"
	"github.com/jshihstsci/uidgid/internal/types"
	"github.com/jshihstsci/uidgid/internal/username"
)

// MaxMembers caps a single group's member list.
const MaxMembers = 32768

// IDKind selects which identifier a group lookup matches against.
type IDKind string

const (
	ByTeamName  IDKind = "teamname"
	ByGroupname IDKind = "groupname"
	ByGID       IDKind = "gid"
)

type row struct {
	TeamName  string   `yaml:"teamname"`
	Groupname string   `yaml:"groupname"`
	Password  string   `yaml:"password"`
	GID       int      `yaml:"gid"`
	Grouplist []string `yaml:"grouplist"`
	Status    string   `yaml:"status"`
	Usertype  string   `yaml:"usertype"`
}

func (r row) groupLine() string {
	return strings.Join([]string{
		r.Groupname, r.Password,
		strconv.Itoa(r.GID), strings.Join(r.Grouplist, ","),
	}, ":")
}

func (r row) matches(id string, kind IDKind) bool {
	switch kind {
	case ByTeamName:
		return r.TeamName == id
	case ByGroupname:
		return r.Groupname == id
	case ByGID:
		return strconv.Itoa(r.GID) == id
	}
	return false
}

func toGroup(r row) types.Group {
	members := make([]types.Username, len(r.Grouplist))
	for i, m := range r.Grouplist {
		members[i] = types.Username(m)
	}
	return types.Group{
		TeamName:  types.TeamName(r.TeamName),
		Groupname: types.Groupname(r.Groupname),
		Password:  r.Password,
		GID:       r.GID,
		Members:   members,
		Status:    types.Status(r.Status),
		Type:      types.UserType(r.Usertype),
	}
}

// Store is the group registry over the durable group table. Like the
// user registry it re-reads the table on every operation.
type Store struct {
	table  *tableio.Table[row]
	log    *zap.Logger
	prefix string
}

// NewStore opens the group table at path, seeding the OS base entries
// when the table file does not exist. groupPrefix repairs squashed team
// names that do not start with a letter, see username.GroupPrefix.
func NewStore(path, groupPrefix string, log *zap.Logger) (*Store, error) {
	s := &Store{table: tableio.New[row](path), log: log, prefix: groupPrefix}
	if err := s.table.Seed(baseRows()); err != nil {
		return nil, fmt.Errorf("seeding group table: %w", err)
	}
	return s, nil
}

// Table exposes the underlying table for backup and restore.
func (s *Store) Table() *tableio.Table[row] { return s.table }

// TeamExists reports whether a record exists for the upstream team name.
func (s *Store) TeamExists(teamname types.TeamName) (bool, error) {
	return s.exists(string(teamname), ByTeamName)
}

// GroupExists reports whether a record exists for the OS group name.
func (s *Store) GroupExists(groupname types.Groupname) (bool, error) {
	return s.exists(string(groupname), ByGroupname)
}

// GidExists reports whether any record holds the gid.
func (s *Store) GidExists(gid int) (bool, error) {
	return s.exists(strconv.Itoa(gid), ByGID)
}

func (s *Store) exists(id string, kind IDKind) (bool, error) {
	rows, err := s.table.Load()
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if r.matches(id, kind) {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the matching record or ErrNotFound.
func (s *Store) Get(id string, kind IDKind) (types.Group, error) {
	rows, err := s.table.Load()
	if err != nil {
		return types.Group{}, err
	}
	for _, r := range rows {
		if r.matches(id, kind) {
			return toGroup(r), nil
		}
	}
	return types.Group{}, fmt.Errorf("%w: group with %s %q", types.ErrNotFound, kind, id)
}

// LookupGid returns the gid of the named group.
func (s *Store) LookupGid(groupname types.Groupname) (int, error) {
	g, err := s.Get(string(groupname), ByGroupname)
	if err != nil {
		return 0, err
	}
	return g.GID, nil
}

// CreateRequest carries the parameters for a new group. Zero values are
// derived: the group name is squashed from the team name and the gid is
// the next free id in the type's range.
type CreateRequest struct {
	TeamName  types.TeamName
	Groupname types.Groupname
	GID       int
	Type      types.UserType

	// ExistingNames is the pool for name-collision resolution; when nil
	// the table's group names are used.
	ExistingNames map[string]bool
}

// Create adds a group record, derives unset fields, persists the table,
// and returns the record. An existing team or an explicitly requested
// gid that is already held is a conflict.
func (s *Store) Create(req CreateRequest) (types.Group, error) {
	rows, err := s.table.Load()
	if err != nil {
		return types.Group{}, err
	}
	for _, r := range rows {
		if r.TeamName == string(req.TeamName) {
			return types.Group{}, fmt.Errorf("%w: team %s already exists", types.ErrConflict, req.TeamName)
		}
	}

	if req.Type == "" {
		req.Type = types.TypeIndividual
	}
	if req.Groupname == "" {
		pool := req.ExistingNames
		if pool == nil {
			pool = make(map[string]bool, len(rows))
			for _, r := range rows {
				pool[r.Groupname] = true
			}
		}
		name, err := username.ToValidUsername(string(req.TeamName), pool, s.prefix)
		if err != nil {
			return types.Group{}, err
		}
		req.Groupname = name
	}
	for _, r := range rows {
		if r.Groupname == string(req.Groupname) {
			return types.Group{}, fmt.Errorf("%w: group %s already exists", types.ErrConflict, req.Groupname)
		}
	}
	if req.GID == 0 {
		gid, err := nextFree(types.GidClass(req.Type), gids(rows))
		if err != nil {
			return types.Group{}, err
		}
		req.GID = gid
	} else {
		for _, r := range rows {
			if r.GID == req.GID {
				return types.Group{}, fmt.Errorf("%w: gid %d already exists", types.ErrConflict, req.GID)
			}
		}
		if err := types.GidClass(req.Type).Check(req.GID); err != nil {
			return types.Group{}, err
		}
	}

	r := row{
		TeamName:  string(req.TeamName),
		Groupname: string(req.Groupname),
		Password:  "x",
		GID:       req.GID,
		Grouplist: []string{},
		Status:    string(types.StatusActive),
		Usertype:  string(req.Type),
	}
	rows = append(rows, r)
	if err := s.table.Save(rows); err != nil {
		return types.Group{}, err
	}
	s.log.Info("group added",
		zap.String("teamname", r.TeamName),
		zap.String("groupname", r.Groupname),
		zap.Int("gid", r.GID),
		zap.String("usertype", r.Usertype),
	)
	return toGroup(r), nil
}

// Deactivate flips the named group's status. The gid stays allocated.
func (s *Store) Deactivate(groupname types.Groupname) error {
	rows, err := s.table.Load()
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i].Groupname == string(groupname) {
			rows[i].Status = string(types.StatusDeactivated)
			if err := s.table.Save(rows); err != nil {
				return err
			}
			s.log.Info("group deactivated", zap.String("groupname", rows[i].Groupname), zap.Int("gid", rows[i].GID))
			return nil
		}
	}
	return fmt.Errorf("%w: group %q", types.ErrNotFound, groupname)
}

// AddMember adds username to the group's member list. Adding an
// existing member is a no-op; a full member list is a conflict.
func (s *Store) AddMember(user types.Username, groupname types.Groupname) error {
	rows, err := s.table.Load()
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i].Groupname != string(groupname) {
			continue
		}
		for _, m := range rows[i].Grouplist {
			if m == string(user) {
				return nil
			}
		}
		if len(rows[i].Grouplist) >= MaxMembers {
			return fmt.Errorf("%w: too many users in group %s", types.ErrConflict, groupname)
		}
		rows[i].Grouplist = append(rows[i].Grouplist, string(user))
		if err := s.table.Save(rows); err != nil {
			return err
		}
		s.log.Info("group member added", zap.String("username", string(user)), zap.String("groupname", string(groupname)))
		return nil
	}
	return fmt.Errorf("%w: group %q", types.ErrNotFound, groupname)
}

// RemoveMember removes username from the group's member list; removing
// an absent member is a no-op.
func (s *Store) RemoveMember(user types.Username, groupname types.Groupname) error {
	rows, err := s.table.Load()
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i].Groupname != string(groupname) {
			continue
		}
		for j, m := range rows[i].Grouplist {
			if m == string(user) {
				rows[i].Grouplist = append(rows[i].Grouplist[:j], rows[i].Grouplist[j+1:]...)
				if err := s.table.Save(rows); err != nil {
					return err
				}
				s.log.Info("group member removed", zap.String("username", string(user)), zap.String("groupname", string(groupname)))
				return nil
			}
		}
		return nil
	}
	return fmt.Errorf("%w: group %q", types.ErrNotFound, groupname)
}

// RemoveMemberEverywhere removes username from every member list.
func (s *Store) RemoveMemberEverywhere(user types.Username) error {
	rows, err := s.table.Load()
	if err != nil {
		return err
	}
	changed := false
	for i := range rows {
		for j, m := range rows[i].Grouplist {
			if m == string(user) {
				rows[i].Grouplist = append(rows[i].Grouplist[:j], rows[i].Grouplist[j+1:]...)
				changed = true
				break
			}
		}
	}
	if !changed {
		return nil
	}
	if err := s.table.Save(rows); err != nil {
		return err
	}
	s.log.Info("group member removed everywhere", zap.String("username", string(user)))
	return nil
}

// IsMember reports whether username is in the named group.
func (s *Store) IsMember(user types.Username, groupname types.Groupname) (bool, error) {
	g, err := s.Get(string(groupname), ByGroupname)
	if err != nil {
		return false, err
	}
	return g.HasMember(user), nil
}

// MembersOf returns the member list of the named group.
func (s *Store) MembersOf(groupname types.Groupname) ([]types.Username, error) {
	g, err := s.Get(string(groupname), ByGroupname)
	if err != nil {
		return nil, err
	}
	return g.Members, nil
}

// GroupsOf returns the names of every group username belongs to.
func (s *Store) GroupsOf(user types.Username) ([]types.Groupname, error) {
	rows, err := s.table.Load()
	if err != nil {
		return nil, err
	}
	var out []types.Groupname
	for _, r := range rows {
		for _, m := range r.Grouplist {
			if m == string(user) {
				out = append(out, types.Groupname(r.Groupname))
				break
			}
		}
	}
	return out, nil
}

// NextGID returns the first unused gid in the range for the user type.
func (s *Store) NextGID(t types.UserType) (int, error) {
	rows, err := s.table.Load()
	if err != nil {
		return 0, err
	}
	return nextFree(types.GidClass(t), gids(rows))
}

// EtcGroup renders every record, active or not, as /etc/group text.
func (s *Store) EtcGroup() (string, error) {
	return s.render(false)
}

// ActiveString renders only active records as /etc/group text.
func (s *Store) ActiveString() (string, error) {
	return s.render(true)
}

func (s *Store) render(activeOnly bool) (string, error) {
	rows, err := s.table.Load()
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		if activeOnly && r.Status != string(types.StatusActive) {
			continue
		}
		lines = append(lines, r.groupLine())
	}
	return strings.Join(lines, "\n"), nil
}

// Groupnames returns every group name ever recorded.
func (s *Store) Groupnames() ([]string, error) {
	rows, err := s.table.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Groupname)
	}
	return names, nil
}

func gids(rows []row) map[int]bool {
	m := make(map[int]bool, len(rows))
	for _, r := range rows {
		m[r.GID] = true
	}
	return m
}

func nextFree(class types.IDClass, taken map[int]bool) (int, error) {
	for id := class.Min; id <= class.Max; id++ {
		if !taken[id] {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %s range %d to %d is exhausted", types.ErrConflict, class.Kind, class.Min, class.Max)
}
