package resilience

import "errors"

// Sentinel errors for resilience operations. Errors shared with other
// packages (open circuit, timeout) live in the fault package so the
// taxonomy stays a leaf.
var (
	// ErrNilOperation is returned when a nil operation is passed to a guard.
	ErrNilOperation = errors.New("resilience: operation is nil")

	// ErrUnknownClass is returned by a group for an unregistered class when
	// lazy registration is disabled.
	ErrUnknownClass = errors.New("resilience: unknown operation class")
)
