package engine

import "errors"

var (
	// ErrValidation marks malformed input to a creation or rule call.
	// Nothing is persisted when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an operation on a schedule or counter that does
	// not exist.
	ErrNotFound = errors.New("not found")
)
