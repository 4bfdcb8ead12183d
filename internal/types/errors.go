package types

import "errors"

// Error kinds shared across the registries and the orchestrator. Callers
// classify with errors.Is; the HTTP layer maps each kind onto a status
// code (invalid -> 400, conflict -> 409, everything else -> 500).
var (
	// ErrInvalid marks malformed input: bad uuid, name, or id range
	// violations. Raised before any state is touched.
	ErrInvalid = errors.New("invalid input")

	// ErrConflict marks creation collisions: duplicate uuid, teamname,
	// gid, or a full member list.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks lookups of records that were never created.
	ErrNotFound = errors.New("not found")

	// ErrLock marks a failure to acquire the process lock within the
	// configured wait. Never suppressed.
	ErrLock = errors.New("process lock not acquired")
)
