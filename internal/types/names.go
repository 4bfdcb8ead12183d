package types

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Loose names arrive from upstream systems and may use a wide range of
// unicode. They are capped below 128 characters and stripped of shell
// metacharacter punctuation at construction; everything else is kept.
const maxLooseNameLen = 128

var looseMetaRe = regexp.MustCompile("['\"`;()<>/\\\\=%&|!{}\\[\\]#*~$]")

func parseLoose(s string) (string, error) {
	if utf8.RuneCountInString(s) >= maxLooseNameLen {
		return "", fmt.Errorf("%w: name is too long", ErrInvalid)
	}
	return looseMetaRe.ReplaceAllString(s, ""), nil
}

// Ezid is the human-readable identity assigned upstream for a user,
// typically derived from their full name or e-mail. It must be squashed
// into a SystemName before the OS can use it.
type Ezid string

func ParseEzid(s string) (Ezid, error) {
	v, err := parseLoose(s)
	if err != nil {
		return "", fmt.Errorf("ezid: %w", err)
	}
	return Ezid(v), nil
}

func (e Ezid) String() string { return string(e) }

// TeamName is the loose upstream form of a team name, later squashed
// into an OS group name.
type TeamName string

func ParseTeamName(s string) (TeamName, error) {
	v, err := parseLoose(s)
	if err != nil {
		return "", fmt.Errorf("team name: %w", err)
	}
	return TeamName(v), nil
}

func (t TeamName) String() string { return string(t) }

// MaxSystemNameLen bounds OS-visible user and group names.
const MaxSystemNameLen = 32

var systemNameRe = regexp.MustCompile(`^[a-z][a-z0-9-]{0,31}$`)

// SystemName is a name acceptable to the OS for users and groups: ASCII,
// at most 32 characters, a lowercase letter followed by lowercase
// letters, digits, or hyphens.
type SystemName string

// Username and Groupname name the two roles a SystemName plays.
type (
	Username  = SystemName
	Groupname = SystemName
)

// IsValidSystemName reports whether s satisfies the system-name grammar.
func IsValidSystemName(s string) bool {
	return len(s) <= MaxSystemNameLen && systemNameRe.MatchString(s)
}

func ParseSystemName(s string) (SystemName, error) {
	if !IsValidSystemName(s) {
		return "", fmt.Errorf("%w: %q is not a valid system user or group name", ErrInvalid, s)
	}
	return SystemName(s), nil
}

func (n SystemName) String() string { return string(n) }
