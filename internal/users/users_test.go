package users

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/types"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "users.yaml"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestBaseTableSeeded(t *testing.T) {
	s := newStore(t)

	passwd, err := s.EtcPasswd()
	require.NoError(t, err)
	assert.Contains(t, passwd, "root:x:0:0:root:/root:/bin/bash")
	assert.Contains(t, passwd, "jovyan:x:1000:1000::/home/jovyan:/bin/bash")
	assert.False(t, strings.HasSuffix(passwd, "\n"))

	uid, err := s.NextUID(types.TypeIndividual)
	require.NoError(t, err)
	assert.Equal(t, 1001, uid, "uid 1000 is held by the base table")
}

func TestAddDerivesEverything(t *testing.T) {
	s := newStore(t)

	u, err := s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "homer_j.simpson"})
	require.NoError(t, err)
	assert.Equal(t, types.Username("homer-j-simpson"), u.Username)
	assert.Equal(t, 1001, u.UID)
	assert.Equal(t, 1001, u.GID, "personal group gid mirrors the uid")
	assert.Equal(t, "/home/homer-j-simpson", u.Home)
	assert.Equal(t, "/bin/bash", u.Shell)
	assert.Equal(t, types.StatusActive, u.Status)
	assert.Equal(t, types.TypeIndividual, u.Type)
}

func TestAddAllocatesMonotonically(t *testing.T) {
	s := newStore(t)

	u1, err := s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "first"})
	require.NoError(t, err)
	u2, err := s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "second"})
	require.NoError(t, err)
	assert.Equal(t, 1001, u1.UID)
	assert.Equal(t, 1002, u2.UID)

	// Deactivation never frees an id.
	require.NoError(t, s.Deactivate("second", ByUsername))
	u3, err := s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "third"})
	require.NoError(t, err)
	assert.Equal(t, 1003, u3.UID)
}

func TestAddDuplicateUuidConflicts(t *testing.T) {
	s := newStore(t)
	id := types.NewUuid()

	_, err := s.Add(AddRequest{UUID: id, Ezid: "someone"})
	require.NoError(t, err)
	_, err = s.Add(AddRequest{UUID: id, Ezid: "someone_else"})
	require.ErrorIs(t, err, types.ErrConflict)
}

func TestAddZeroUuidIsExempt(t *testing.T) {
	s := newStore(t)

	_, err := s.Add(AddRequest{UUID: types.ZeroUuid, Ezid: "first"})
	require.NoError(t, err)
	_, err = s.Add(AddRequest{UUID: types.ZeroUuid, Ezid: "second"})
	require.NoError(t, err)
}

func TestAddDuplicateUsernameConflicts(t *testing.T) {
	s := newStore(t)

	_, err := s.Add(AddRequest{UUID: types.NewUuid(), Username: "someone"})
	require.NoError(t, err)
	_, err = s.Add(AddRequest{UUID: types.NewUuid(), Username: "someone"})
	require.ErrorIs(t, err, types.ErrConflict)
}

func TestAddCollidingEzidGetsSuffix(t *testing.T) {
	s := newStore(t)

	u1, err := s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "homer"})
	require.NoError(t, err)
	u2, err := s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "Homer"})
	require.NoError(t, err)
	assert.Equal(t, types.Username("homer"), u1.Username)
	assert.Equal(t, types.Username("homer-1"), u2.Username)
}

func TestAddRequiresIdentity(t *testing.T) {
	s := newStore(t)
	_, err := s.Add(AddRequest{UUID: types.NewUuid()})
	require.ErrorIs(t, err, types.ErrInvalid)
}

func TestAddExplicitIdsAreRangeChecked(t *testing.T) {
	s := newStore(t)

	_, err := s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "oops", UID: 500})
	require.ErrorIs(t, err, types.ErrInvalid)

	// Group-admin ids live in the high range.
	u, err := s.Add(AddRequest{
		UUID: types.NewUuid(), Ezid: "team-1-admin",
		UID: 60000, GID: 60000, Type: types.TypeGroup,
	})
	require.NoError(t, err)
	assert.Equal(t, 60000, u.UID)
	assert.Equal(t, 60000, u.GID)
}

func TestGetAndExists(t *testing.T) {
	s := newStore(t)
	id := types.NewUuid()
	added, err := s.Add(AddRequest{UUID: id, Ezid: "homer"})
	require.NoError(t, err)

	for _, lookup := range []struct {
		id   string
		kind IDKind
	}{
		{string(id), ByUUID},
		{"homer", ByEzid},
		{"homer", ByUsername},
		{"1001", ByUID},
	} {
		ok, err := s.Exists(lookup.id, lookup.kind)
		require.NoError(t, err)
		assert.True(t, ok, "%s by %s", lookup.id, lookup.kind)

		got, err := s.Get(lookup.id, lookup.kind)
		require.NoError(t, err)
		assert.Equal(t, added, got)
	}

	_, err = s.Get("nobody-here", ByUsername)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	s := newStore(t)
	_, err := s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "homer"})
	require.NoError(t, err)

	require.NoError(t, s.Deactivate("homer", ByUsername))
	active, err := s.Active("homer", ByUsername)
	require.NoError(t, err)
	assert.False(t, active)

	full, err := s.EtcPasswd()
	require.NoError(t, err)
	assert.Contains(t, full, "homer:", "deactivated users stay in the full dump")

	activeOnly, err := s.ActiveString()
	require.NoError(t, err)
	assert.NotContains(t, activeOnly, "homer:")

	require.ErrorIs(t, s.Deactivate("ghost", ByUsername), types.ErrNotFound)
}

func TestUsernames(t *testing.T) {
	s := newStore(t)
	_, err := s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "homer"})
	require.NoError(t, err)
	require.NoError(t, s.Deactivate("homer", ByUsername))

	all, err := s.Usernames()
	require.NoError(t, err)
	assert.Contains(t, all, "homer")

	active, err := s.ActiveUsernames()
	require.NoError(t, err)
	assert.NotContains(t, active, "homer")
	assert.Contains(t, active, "jovyan")
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	s, err := NewStore(path, zap.NewNop())
	require.NoError(t, err)
	_, err = s.Add(AddRequest{UUID: types.NewUuid(), Ezid: "homer"})
	require.NoError(t, err)

	reopened, err := NewStore(path, zap.NewNop())
	require.NoError(t, err)
	ok, err := reopened.Exists("homer", ByUsername)
	require.NoError(t, err)
	assert.True(t, ok, "reopening must not reseed over existing data")
}
