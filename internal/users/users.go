// Package users manages OS users, uids, /etc/passwd emission, and the
// durable user rosetta table.
package users

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/tableio"
	"github.com/jshihstsci/uidgid/internal/types"
	"github.com/jshihstsci/uidgid/internal/username"
)

// IDKind selects which identifier a lookup matches against.
type IDKind string

const (
	ByUUID     IDKind = "uuid"
	ByEzid     IDKind = "ezid"
	ByUsername IDKind = "username"
	ByUID      IDKind = "uid"
)

// row is the storage shape of one user record. Conversion to the typed
// form happens only at the storage boundary via toUser.
type row struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UID      int    `yaml:"uid"`
	GID      int    `yaml:"gid"`
	Descr    string `yaml:"descr"`
	Home     string `yaml:"home"`
	Shell    string `yaml:"shell"`
	UUID     string `yaml:"uuid"`
	Ezid     string `yaml:"ezid"`
	Status   string `yaml:"status"`
	Usertype string `yaml:"usertype"`
}

func (r row) passwdLine() string {
	return strings.Join([]string{
		r.Username, r.Password,
		strconv.Itoa(r.UID), strconv.Itoa(r.GID),
		r.Descr, r.Home, r.Shell,
	}, ":")
}

func (r row) matches(id string, kind IDKind) bool {
	switch kind {
	case ByUUID:
		return r.UUID == id
	case ByEzid:
		return r.Ezid == id
	case ByUsername:
		return r.Username == id
	case ByUID:
		return strconv.Itoa(r.UID) == id
	}
	return false
}

func toUser(r row) types.User {
	return types.User{
		Username: types.Username(r.Username),
		Password: r.Password,
		UID:      r.UID,
		GID:      r.GID,
		Descr:    r.Descr,
		Home:     r.Home,
		Shell:    r.Shell,
		UUID:     types.Uuid(r.UUID),
		Ezid:     types.Ezid(r.Ezid),
		Status:   types.Status(r.Status),
		Type:     types.UserType(r.Usertype),
	}
}

// Store is the user registry over the durable user table. It holds no
// row state of its own: every operation re-reads the table so that the
// latest persisted state is always observed.
type Store struct {
	table *tableio.Table[row]
	log   *zap.Logger
}

// NewStore opens the user table at path, seeding the OS base entries if
// the table does not exist yet.
func NewStore(path string, log *zap.Logger) (*Store, error) {
	s := &Store{table: tableio.New[row](path), log: log}
	if err := s.table.Seed(baseRows()); err != nil {
		return nil, fmt.Errorf("seeding user table: %w", err)
	}
	return s, nil
}

// Table exposes the underlying table for backup and restore.
func (s *Store) Table() *tableio.Table[row] { return s.table }

// Exists reports whether any record matches id under the given kind.
func (s *Store) Exists(id string, kind IDKind) (bool, error) {
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
func (s *Store) Get(id string, kind IDKind) (types.User, error) {
	rows, err := s.table.Load()
	if err != nil {
		return types.User{}, err
	}
	for _, r := range rows {
		if r.matches(id, kind) {
			return toUser(r), nil
		}
	}
	return types.User{}, fmt.Errorf("%w: user with %s %q", types.ErrNotFound, kind, id)
}

// Active reports whether the matching record carries active status.
func (s *Store) Active(id string, kind IDKind) (bool, error) {
	u, err := s.Get(id, kind)
	if err != nil {
		return false, err
	}
	return u.Status == types.StatusActive, nil
}

// AddRequest carries the parameters for creating a user record. Zero
// values mean "derive": the username is squashed from the ezid, the uid
// is the next free id in the type's range, and the gid defaults to the
// uid (personal group).
type AddRequest struct {
	UUID     types.Uuid
	Ezid     types.Ezid
	Username types.Username
	UID      int
	GID      int
	Descr    string
	Home     string
	Shell    string
	Type     types.UserType

	// ExistingNames is the name pool used for collision resolution when
	// the username is derived. When nil, the table's usernames are used;
	// the orchestrator passes the union of user and group names.
	ExistingNames map[string]bool
}

// Add creates a user record, derives any unset fields, persists the
// table, and returns the record. A duplicate uuid is a conflict unless
// it is the zero sentinel, which carries no identity.
func (s *Store) Add(req AddRequest) (types.User, error) {
	rows, err := s.table.Load()
	if err != nil {
		return types.User{}, err
	}

	if !req.UUID.IsZero() {
		for _, r := range rows {
			if r.UUID == string(req.UUID) {
				return types.User{}, fmt.Errorf("%w: user with uuid %s already exists", types.ErrConflict, req.UUID)
			}
		}
	}
	if req.Ezid == "" && req.Username == "" {
		return types.User{}, fmt.Errorf("%w: an ezid or a username is required", types.ErrInvalid)
	}

	if req.Type == "" {
		req.Type = types.TypeIndividual
	}
	if req.Username == "" {
		pool := req.ExistingNames
		if pool == nil {
			pool = make(map[string]bool, len(rows))
			for _, r := range rows {
				pool[r.Username] = true
			}
		}
		name, err := username.ToValidUsername(string(req.Ezid), pool, username.UserPrefix)
		if err != nil {
			return types.User{}, err
		}
		req.Username = name
	}
	for _, r := range rows {
		if r.Username == string(req.Username) {
			return types.User{}, fmt.Errorf("%w: username %s already exists", types.ErrConflict, req.Username)
		}
	}
	if req.UID == 0 {
		uid, err := nextFree(types.UidClass(req.Type), uids(rows))
		if err != nil {
			return types.User{}, err
		}
		req.UID = uid
	} else if err := types.UidClass(req.Type).Check(req.UID); err != nil {
		return types.User{}, err
	}
	if req.GID == 0 {
		req.GID = req.UID
	}
	if err := types.GidClass(req.Type).Check(req.GID); err != nil {
		return types.User{}, err
	}
	if req.Home == "" {
		req.Home = "/home/" + string(req.Username)
	}
	if req.Shell == "" {
		req.Shell = "/bin/bash"
	}

	r := row{
		Username: string(req.Username),
		Password: "x",
		UID:      req.UID,
		GID:      req.GID,
		Descr:    req.Descr,
		Home:     req.Home,
		Shell:    req.Shell,
		UUID:     string(req.UUID),
		Ezid:     string(req.Ezid),
		Status:   string(types.StatusActive),
		Usertype: string(req.Type),
	}
	rows = append(rows, r)
	if err := s.table.Save(rows); err != nil {
		return types.User{}, err
	}
	s.log.Info("user added",
		zap.String("username", r.Username),
		zap.Int("uid", r.UID),
		zap.Int("gid", r.GID),
		zap.String("uuid", r.UUID),
		zap.String("ezid", r.Ezid),
		zap.String("usertype", r.Usertype),
	)
	return toUser(r), nil
}

// Deactivate flips the matching record's status. Ids are never freed:
// the record and its uid remain in the table forever.
func (s *Store) Deactivate(id string, kind IDKind) error {
	rows, err := s.table.Load()
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i].matches(id, kind) {
			rows[i].Status = string(types.StatusDeactivated)
			if err := s.table.Save(rows); err != nil {
				return err
			}
			s.log.Info("user deactivated", zap.String("username", rows[i].Username), zap.Int("uid", rows[i].UID))
			return nil
		}
	}
	return fmt.Errorf("%w: user with %s %q", types.ErrNotFound, kind, id)
}

// NextUID returns the first unused uid in the range for the user type,
// scanning upward from the range minimum.
func (s *Store) NextUID(t types.UserType) (int, error) {
	rows, err := s.table.Load()
	if err != nil {
		return 0, err
	}
	return nextFree(types.UidClass(t), uids(rows))
}

// EtcPasswd renders every record, active or not, as /etc/passwd text.
func (s *Store) EtcPasswd() (string, error) {
	return s.render(false)
}

// ActiveString renders only active records as /etc/passwd text.
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
		lines = append(lines, r.passwdLine())
	}
	return strings.Join(lines, "\n"), nil
}

// Usernames returns every username ever recorded.
func (s *Store) Usernames() ([]string, error) {
	rows, err := s.table.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Username)
	}
	return names, nil
}

// ActiveUsernames returns the usernames of active records only.
func (s *Store) ActiveUsernames() ([]string, error) {
	rows, err := s.table.Load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.Status == string(types.StatusActive) {
			names = append(names, r.Username)
		}
	}
	return names, nil
}

func uids(rows []row) map[int]bool {
	m := make(map[int]bool, len(rows))
	for _, r := range rows {
		m[r.UID] = true
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
