// Package types defines the identifier and record types used throughout
// the uidgid system.
//
// The guiding rule is that a value of one of these types only exists in a
// validated state: parsing happens once at the system boundary and the
// rest of the code never re-checks. Upstream identity strings (uuids,
// ezids, team names) are loosely constrained unicode; OS-visible names
// (usernames, group names) follow the stricter system-name grammar.
package types
