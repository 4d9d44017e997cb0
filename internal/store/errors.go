package store

import "errors"

var (
	// ErrConflict is returned when an insert would overlap an active appointment.
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
	// ErrIdempotencyConflict is returned when an insert reuses an existing appointment id.
	ErrIdempotencyConflict = errors.New("idempotency conflict")
)
