package domain

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation, e.g. inserting a
	// problem id that is already tracked.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates invalid input or configuration values.
	ErrValidation = errors.New("validation error")
)
