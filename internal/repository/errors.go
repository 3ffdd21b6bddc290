package repository

import "errors"

// Common repository errors that can be checked with errors.Is()
var (
	// ErrNotFound is returned when an entity is not found
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when attempting to create an entity that already exists
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrInvalidTransition is returned when a command status change would move
	// backward or out of a terminal status
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPoolExhausted is returned when every port in the configured range is taken
	ErrPoolExhausted = errors.New("port pool exhausted")
)
