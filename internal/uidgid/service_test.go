package uidgid

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/backup"
	"github.com/jshihstsci/uidgid/internal/background"
	"github.com/jshihstsci/uidgid/internal/config"
	"github.com/jshihstsci/uidgid/internal/groups"
	"github.com/jshihstsci/uidgid/internal/hostdirs"
	"github.com/jshihstsci/uidgid/internal/types"
	"github.com/jshihstsci/uidgid/internal/username"
	"github.com/jshihstsci/uidgid/internal/users"
)

type fixture struct {
	svc    *Service
	users  *users.Store
	groups *groups.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.BackupDir = filepath.Join(dir, "backups")
	cfg.LockTimeout = 5 * time.Second
	cfg.MaxBackups = 3

	log := zap.NewNop()
	us, err := users.NewStore(cfg.UserTablePath(), log)
	require.NoError(t, err)
	gs, err := groups.NewStore(cfg.GroupTablePath(), username.GroupPrefix(""), log)
	require.NoError(t, err)

	worker := background.NewWorker(16, log)
	t.Cleanup(worker.Close)

	return &fixture{
		svc:    New(cfg, us, gs, hostdirs.Discard{}, worker, log),
		users:  us,
		groups: gs,
	}
}

func TestGetSpawnInfoFirstUser(t *testing.T) {
	f := newFixture(t)

	info, err := f.svc.GetSpawnInfo(context.Background(),
		string(types.NewUuid()), "user_1", "team_2", []string{"team_1", "team_2"})
	require.NoError(t, err)

	assert.Equal(t, 1001, info.UID, "first allocation after the base table")
	assert.Equal(t, 60001, info.GID, "active team is the second team created")
	assert.Equal(t, types.Username("user-1"), info.Username)
	assert.Equal(t, types.Groupname("team-2"), info.Groupname)
	assert.Equal(t, []int{1001, 60000, 60001}, info.AllUserGids)

	assert.Contains(t, info.EtcPasswd, "user-1:x:1001:1001::/home/user-1:/bin/bash")
	assert.Contains(t, info.EtcPasswd, "team-1-admin:x:60000:60000:")
	assert.Contains(t, info.EtcPasswd, "team-2-admin:x:60001:60001:")
	assert.Contains(t, info.EtcGroup, "user-1:x:1001:user-1")
	assert.Contains(t, info.EtcGroup, "team-1:x:60000:user-1,team-1-admin")
	assert.Contains(t, info.EtcGroup, "team-2:x:60001:user-1,team-2-admin")
}

func TestGetSpawnInfoIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := string(types.NewUuid())

	first, err := f.svc.GetSpawnInfo(context.Background(), id, "user_1", "team_1", []string{"team_1"})
	require.NoError(t, err)
	second, err := f.svc.GetSpawnInfo(context.Background(), id, "user_1", "team_1", []string{"team_1"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetSpawnInfoPersonalActiveTeam(t *testing.T) {
	f := newFixture(t)

	info, err := f.svc.GetSpawnInfo(context.Background(),
		string(types.NewUuid()), "user_1", "user_1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1001, info.UID)
	assert.Equal(t, 1001, info.GID, "personal group gid mirrors the uid")
	assert.Equal(t, types.Groupname("user-1"), info.Groupname)
	assert.Equal(t, []int{1001}, info.AllUserGids)
}

func TestGetSpawnInfoActiveTeamGuard(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetSpawnInfo(context.Background(),
		string(types.NewUuid()), "user_1", "secret_team", []string{"team_1"})
	require.ErrorIs(t, err, types.ErrConflict)
	assert.Contains(t, err.Error(), "secret_team")
	assert.Contains(t, err.Error(), "team_1")
}

func TestGetSpawnInfoReconcilesMemberships(t *testing.T) {
	f := newFixture(t)
	id := string(types.NewUuid())

	_, err := f.svc.GetSpawnInfo(context.Background(),
		id, "user_1", "team_a", []string{"team_a", "team_b", "team_c"})
	require.NoError(t, err)

	info, err := f.svc.GetSpawnInfo(context.Background(),
		id, "user_1", "team_d", []string{"team_a", "team_d"})
	require.NoError(t, err)

	memberships, err := f.groups.GroupsOf("user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.Groupname{"user-1", "team-a", "team-d"}, memberships)

	// Dropped teams keep their groups, admins, and gids.
	g, err := f.groups.Get("team_b", groups.ByTeamName)
	require.NoError(t, err)
	assert.True(t, g.HasMember("team-b-admin"))
	assert.False(t, g.HasMember("user-1"))

	assert.NotContains(t, info.AllUserGids, g.GID)
}

func TestGetSpawnInfoSharedTeam(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.GetSpawnInfo(context.Background(),
		string(types.NewUuid()), "user_1", "shared", []string{"shared"})
	require.NoError(t, err)
	second, err := f.svc.GetSpawnInfo(context.Background(),
		string(types.NewUuid()), "user_2", "shared", []string{"shared"})
	require.NoError(t, err)

	assert.Equal(t, first.GID, second.GID, "both users resolve the same team gid")
	members, err := f.groups.MembersOf("shared")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.Username{"user-1", "user-2", "shared-admin"}, members)
}

func TestGetSpawnInfoCollidingEzids(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.GetSpawnInfo(context.Background(),
		string(types.NewUuid()), "Homer", "Homer", nil)
	require.NoError(t, err)
	second, err := f.svc.GetSpawnInfo(context.Background(),
		string(types.NewUuid()), "homer", "homer", nil)
	require.NoError(t, err)

	assert.Equal(t, types.Username("homer"), first.Username)
	assert.Equal(t, types.Username("homer-1"), second.Username)
	assert.NotEqual(t, first.UID, second.UID)
}

func TestGetSpawnInfoInvalidInputs(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetSpawnInfo(context.Background(), "not-a-uuid", "user_1", "t", []string{"t"})
	require.ErrorIs(t, err, types.ErrInvalid)

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.svc.GetSpawnInfo(context.Background(), string(types.NewUuid()), string(long), "t", []string{"t"})
	require.ErrorIs(t, err, types.ErrInvalid)
}

func TestGetSpawnInfoWritesBackups(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetSpawnInfo(context.Background(),
		string(types.NewUuid()), "user_1", "user_1", nil)
	require.NoError(t, err)

	// The backup job is asynchronous; closing the worker drains it.
	f.svc.worker.Close()

	matches, err := filepath.Glob(filepath.Join(f.svc.cfg.BackupDir, "users.yaml.*"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
	matches, err = filepath.Glob(filepath.Join(f.svc.cfg.BackupDir, "groups.yaml.*"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestRestoreFromEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetSpawnInfo(ctx, string(types.NewUuid()), "user_1", "user_1", nil)
	require.NoError(t, err)

	usersBlob, err := backup.EncodeFromFile(f.users.Table().Path())
	require.NoError(t, err)
	groupsBlob, err := backup.EncodeFromFile(f.groups.Table().Path())
	require.NoError(t, err)

	// More allocations after the snapshot.
	_, err = f.svc.GetSpawnInfo(ctx, string(types.NewUuid()), "user_2", "user_2", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.RestoreFromEvent(ctx, usersBlob, groupsBlob))

	ok, err := f.users.Exists("user-2", users.ByUsername)
	require.NoError(t, err)
	assert.False(t, ok, "restore rewinds the table to the snapshot")
	ok, err = f.users.Exists("user-1", users.ByUsername)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentCallsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		id := string(types.NewUuid())
		ezid := string(rune('a'+i)) + "-user"
		go func() {
			_, err := f.svc.GetSpawnInfo(ctx, id, ezid, "common", []string{"common"})
			errs <- err
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-errs)
	}

	members, err := f.groups.MembersOf("common")
	require.NoError(t, err)
	assert.Len(t, members, 5, "four users plus the admin")
}
