package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Status tracks record lifecycle. Users and groups are never deleted,
// only flipped to deactivated.
type Status string

const (
	StatusActive      Status = "active"
	StatusDeactivated Status = "deactivated"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusDeactivated:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: status %q must be active or deactivated", ErrInvalid, s)
}

// UserType distinguishes individual humans from team groups and their
// admin pseudo-users.
type UserType string

const (
	TypeIndividual UserType = "individual"
	TypeGroup      UserType = "group"
)

func ParseUserType(s string) (UserType, error) {
	switch UserType(s) {
	case TypeIndividual, TypeGroup:
		return UserType(s), nil
	}
	return "", fmt.Errorf("%w: user type %q must be individual or group", ErrInvalid, s)
}

// User is one row of the user rosetta table in its validated form.
type User struct {
	Username Username
	Password string
	UID      int
	GID      int
	Descr    string
	Home     string
	Shell    string
	UUID     Uuid
	Ezid     Ezid
	Status   Status
	Type     UserType
}

// PasswdLine renders the record as an /etc/passwd line.
func (u User) PasswdLine() string {
	return strings.Join([]string{
		string(u.Username), u.Password,
		strconv.Itoa(u.UID), strconv.Itoa(u.GID),
		u.Descr, u.Home, u.Shell,
	}, ":")
}

// Group is one row of the group rosetta table in its validated form.
// Members is ordered: insertion order is preserved across reloads.
type Group struct {
	TeamName  TeamName
	Groupname Groupname
	Password  string
	GID       int
	Members   []Username
	Status    Status
	Type      UserType
}

// GroupLine renders the record as an /etc/group line with the member
// list comma-joined.
func (g Group) GroupLine() string {
	members := make([]string, len(g.Members))
	for i, m := range g.Members {
		members[i] = string(m)
	}
	return strings.Join([]string{
		string(g.Groupname), g.Password,
		strconv.Itoa(g.GID), strings.Join(members, ","),
	}, ":")
}

// HasMember reports whether username is in the member list.
func (g Group) HasMember(username Username) bool {
	for _, m := range g.Members {
		if m == username {
			return true
		}
	}
	return false
}

// SpawnInfo is everything a spawner needs to launch a container for a
// user and fully identify them to the OS.
type SpawnInfo struct {
	UID         int       `json:"uid"`
	GID         int       `json:"gid"`
	AllUserGids []int     `json:"all_user_gids"`
	Username    Username  `json:"username"`
	Groupname   Groupname `json:"groupname"`
	EtcPasswd   string    `json:"etc_passwd"`
	EtcGroup    string    `json:"etc_group"`
}
