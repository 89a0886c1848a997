package storage

import "errors"

// Sentinel errors shared by all storage implementations.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates a unique constraint violation.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput indicates the caller passed invalid data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInitialized indicates access to a persistence component that
	// was never wired with a backing store. Fatal for the critical tier.
	ErrNotInitialized = errors.New("persistence not initialized")
)
