package groups

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "groups.yaml"), "g-", zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestBaseTableSeeded(t *testing.T) {
	s := newStore(t)

	etc, err := s.EtcGroup()
	require.NoError(t, err)
	assert.Contains(t, etc, "root:x:0:")
	assert.Contains(t, etc, "sudo:x:27:")
	assert.Contains(t, etc, "jovyan:x:1000:")

	gid, err := s.NextGID(types.TypeGroup)
	require.NoError(t, err)
	assert.Equal(t, 60000, gid)
}

func TestCreateTeamGroup(t *testing.T) {
	s := newStore(t)

	g, err := s.Create(CreateRequest{TeamName: "team_1", Type: types.TypeGroup})
	require.NoError(t, err)
	assert.Equal(t, types.Groupname("team-1"), g.Groupname)
	assert.Equal(t, 60000, g.GID)
	assert.Equal(t, types.StatusActive, g.Status)
	assert.Empty(t, g.Members)

	g2, err := s.Create(CreateRequest{TeamName: "team_2", Type: types.TypeGroup})
	require.NoError(t, err)
	assert.Equal(t, 60001, g2.GID)
}

func TestCreatePersonalGroup(t *testing.T) {
	s := newStore(t)

	g, err := s.Create(CreateRequest{
		TeamName:  "homer",
		Groupname: "homer",
		GID:       1001,
		Type:      types.TypeIndividual,
	})
	require.NoError(t, err)
	assert.Equal(t, 1001, g.GID)
	assert.Equal(t, types.TypeIndividual, g.Type)
}

func TestCreateConflicts(t *testing.T) {
	s := newStore(t)
	_, err := s.Create(CreateRequest{TeamName: "team_1", Type: types.TypeGroup})
	require.NoError(t, err)

	_, err = s.Create(CreateRequest{TeamName: "team_1", Type: types.TypeGroup})
	require.ErrorIs(t, err, types.ErrConflict, "duplicate team name")

	_, err = s.Create(CreateRequest{TeamName: "other", GID: 60000, Type: types.TypeGroup})
	require.ErrorIs(t, err, types.ErrConflict, "gid already held")

	_, err = s.Create(CreateRequest{TeamName: "ranged", GID: 1000, Type: types.TypeGroup})
	require.ErrorIs(t, err, types.ErrConflict, "gid 1000 is held by the base table")
}

func TestCreateRepairsBadLeadingCharacter(t *testing.T) {
	s := newStore(t)
	g, err := s.Create(CreateRequest{TeamName: "2024_interns", Type: types.TypeGroup})
	require.NoError(t, err)
	assert.Equal(t, types.Groupname("g-2024-interns"), g.Groupname)
}

func TestMembership(t *testing.T) {
	s := newStore(t)
	g, err := s.Create(CreateRequest{TeamName: "team_1", Type: types.TypeGroup})
	require.NoError(t, err)

	require.NoError(t, s.AddMember("user-1", g.Groupname))
	require.NoError(t, s.AddMember("user-1", g.Groupname), "adding twice is a no-op")

	ok, err := s.IsMember("user-1", g.Groupname)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := s.MembersOf(g.Groupname)
	require.NoError(t, err)
	assert.Equal(t, []types.Username{"user-1"}, members)

	require.NoError(t, s.RemoveMember("user-1", g.Groupname))
	require.NoError(t, s.RemoveMember("user-1", g.Groupname), "removing an absent member is a no-op")

	ok, err = s.IsMember("user-1", g.Groupname)
	require.NoError(t, err)
	assert.False(t, ok)

	require.ErrorIs(t, s.AddMember("user-1", "no-such-group"), types.ErrNotFound)
	require.ErrorIs(t, s.RemoveMember("user-1", "no-such-group"), types.ErrNotFound)
}

func TestRemoveMemberEverywhere(t *testing.T) {
	s := newStore(t)
	g1, err := s.Create(CreateRequest{TeamName: "team_1", Type: types.TypeGroup})
	require.NoError(t, err)
	g2, err := s.Create(CreateRequest{TeamName: "team_2", Type: types.TypeGroup})
	require.NoError(t, err)
	require.NoError(t, s.AddMember("user-1", g1.Groupname))
	require.NoError(t, s.AddMember("user-1", g2.Groupname))
	require.NoError(t, s.AddMember("user-2", g1.Groupname))

	require.NoError(t, s.RemoveMemberEverywhere("user-1"))

	groups, err := s.GroupsOf("user-1")
	require.NoError(t, err)
	assert.Empty(t, groups)

	groups, err = s.GroupsOf("user-2")
	require.NoError(t, err)
	assert.Equal(t, []types.Groupname{"team-1"}, groups)
}

func TestGroupsOfAndLookupGid(t *testing.T) {
	s := newStore(t)
	g1, err := s.Create(CreateRequest{TeamName: "team_1", Type: types.TypeGroup})
	require.NoError(t, err)
	g2, err := s.Create(CreateRequest{TeamName: "team_2", Type: types.TypeGroup})
	require.NoError(t, err)
	require.NoError(t, s.AddMember("user-1", g1.Groupname))
	require.NoError(t, s.AddMember("user-1", g2.Groupname))

	groups, err := s.GroupsOf("user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []types.Groupname{"team-1", "team-2"}, groups)

	gid, err := s.LookupGid("team-2")
	require.NoError(t, err)
	assert.Equal(t, 60001, gid)

	_, err = s.LookupGid("nope")
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	s := newStore(t)
	g, err := s.Create(CreateRequest{TeamName: "team_1", Type: types.TypeGroup})
	require.NoError(t, err)
	require.NoError(t, s.AddMember("user-1", g.Groupname))

	require.NoError(t, s.Deactivate(g.Groupname))

	full, err := s.EtcGroup()
	require.NoError(t, err)
	assert.Contains(t, full, "team-1:x:60000:user-1")

	active, err := s.ActiveString()
	require.NoError(t, err)
	assert.NotContains(t, active, "team-1:")

	// The gid stays taken.
	next, err := s.NextGID(types.TypeGroup)
	require.NoError(t, err)
	assert.Equal(t, 60001, next)

	require.ErrorIs(t, s.Deactivate("ghost"), types.ErrNotFound)
}

func TestGetByEachKind(t *testing.T) {
	s := newStore(t)
	created, err := s.Create(CreateRequest{TeamName: "team_1", Type: types.TypeGroup})
	require.NoError(t, err)

	for _, lookup := range []struct {
		id   string
		kind IDKind
	}{
		{"team_1", ByTeamName},
		{"team-1", ByGroupname},
		{"60000", ByGID},
	} {
		got, err := s.Get(lookup.id, lookup.kind)
		require.NoError(t, err)
		assert.Equal(t, created, got, "%s by %s", lookup.id, lookup.kind)
	}
}
