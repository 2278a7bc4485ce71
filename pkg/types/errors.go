package types

import "errors"

// Sentinel errors shared across packages. Wrap these with context at the
// call site; match with errors.Is.
var (
	// ErrNotFound indicates a named entity (image, layer, volume,
	// network, service) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates an operation exceeded its deadline. Deadline
	// errors from context are normalized to this so callers can match a
	// single sentinel.
	ErrTimeout = errors.New("operation timed out")
)
