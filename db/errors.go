package db

import "errors"

// Sentinel errors returned by backend implementations. Callers match them
// with errors.Is; backends wrap driver-specific errors with %w so the
// cause chain survives for logs while callers only ever branch on these.
var (
	// ErrNotFound is returned when a lookup by primary key finds nothing.
	ErrNotFound = errors.New("db: not found")

	// ErrConstraintUnique is returned when an insert violates a unique
	// constraint (e.g. a duplicate username or subscription email).
	ErrConstraintUnique = errors.New("db: unique constraint violation")

	// ErrMissingFields is returned when a caller-supplied record is
	// missing a field the schema requires.
	ErrMissingFields = errors.New("db: missing required fields")
)
