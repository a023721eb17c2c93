package storage

import "errors"

// Shared store errors. The audit and snapshot stores are append-only
// histories: a row is never updated once written.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned on an insert whose key already
	// exists. Audit entries and snapshots are immutable once written.
	ErrDuplicateKey = errors.New("duplicate key: row is immutable once written")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
