package types

import "fmt"

// IDClass is a named uid/gid allocation range. Parallel ranges for uids
// and gids are deliberately aligned so the same integer denotes a user's
// personal uid and personal gid, and a team's gid and its admin uid.
type IDClass struct {
	Kind string
	Min  int
	Max  int
}

var (
	// Pre-defined system users and groups, e.g. root or daemon.
	SystemUID = IDClass{"system-uid", 0, 999}
	SystemGID = IDClass{"system-gid", 0, 999}

	// Individual human users and their personal groups.
	UserUID = IDClass{"user-uid", 1000, 59999}
	UserGID = IDClass{"user-gid", 1000, 59999}

	// Team groups and their admin pseudo-users, which share an id.
	GroupGID      = IDClass{"group-gid", 60000, 65533}
	GroupAdminUID = IDClass{"group-admin-uid", 60000, 65533}
)

// Contains reports whether v falls inside the class range.
func (c IDClass) Contains(v int) bool { return v >= c.Min && v <= c.Max }

// Check returns ErrInvalid when v falls outside the class range.
func (c IDClass) Check(v int) error {
	if !c.Contains(v) {
		return fmt.Errorf("%w: %s %d not in range %d to %d", ErrInvalid, c.Kind, v, c.Min, c.Max)
	}
	return nil
}

// UidClass returns the uid allocation class for a user type.
func UidClass(t UserType) IDClass {
	if t == TypeGroup {
		return GroupAdminUID
	}
	return UserUID
}

// GidClass returns the gid allocation class for a user type.
func GidClass(t UserType) IDClass {
	if t == TypeGroup {
		return GroupGID
	}
	return UserGID
}
