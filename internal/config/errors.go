package config

import "errors"

var (
	// ErrNotFound is returned when a requested resource does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert or update violates a unique constraint.
	ErrDuplicate = errors.New("duplicate")

	// ErrBootstrapClosed is returned by CreateFirstAdmin once any account exists.
	ErrBootstrapClosed = errors.New("bootstrap already completed")
)
