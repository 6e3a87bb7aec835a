package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a record misses required fields
	// or breaks a foreign key or check constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrStaleStatus is returned when a booking changed status since it was read.
	ErrStaleStatus = errors.New("persistence: stale booking status")
)
