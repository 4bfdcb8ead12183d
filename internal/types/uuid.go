package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Uuid is the stable unique identity assigned by the upstream directory
// for a user. Inputs are not necessarily canonical RFC 4122 text: bare
// 32-digit hex is accepted and normalized to the hyphenated lowercase
// form so that equal identities always compare equal as strings.
type Uuid string

// ZeroUuid is the sentinel for callers with no upstream identity. It is
// exempt from duplicate-uuid conflicts so any number of records may
// carry it.
const ZeroUuid Uuid = "00000000-0000-0000-0000-000000000000"

// ParseUuid normalizes and validates an upstream uuid string.
func ParseUuid(s string) (Uuid, error) {
	u, err := uuid.Parse(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return "", fmt.Errorf("%w: uuid %q: %v", ErrInvalid, s, err)
	}
	return Uuid(u.String()), nil
}

// NewUuid returns a fresh random Uuid, used for admin pseudo-users.
func NewUuid() Uuid {
	return Uuid(uuid.NewString())
}

// IsZero reports whether u is the admin-user sentinel.
func (u Uuid) IsZero() bool { return u == ZeroUuid }

func (u Uuid) String() string { return string(u) }
