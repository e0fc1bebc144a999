package storage

import "errors"

// Domain errors for storage operations.
var (
	// ErrNotFound is returned when a key or section has never been written.
	ErrNotFound = errors.New("storage: not found")

	// ErrKeyTooLong is returned for keys longer than MaxKeySize-1.
	ErrKeyTooLong = errors.New("storage: key too long")

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrTypeMismatch is returned when a key is read with a different type
	// than it was written with.
	ErrTypeMismatch = errors.New("storage: type mismatch")
)
