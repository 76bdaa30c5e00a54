package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned by a versioned update when the stored version
	// no longer matches the expected one (a concurrent writer got there first).
	ErrConflict = errors.New("version conflict")

	// ErrCooldown is returned by a guarded insert when the caller already
	// holds the maximum number of calls inside the cooldown window.
	ErrCooldown = errors.New("caller is in cooldown")
)
