package catalog

import "errors"

// Domain errors for the catalog package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when no descriptor exists for a slot.
	ErrNotFound = errors.New("catalog: not found")

	// ErrUnavailable is returned when the catalog backend cannot be reached.
	// Callers are expected to degrade to value-only reads.
	ErrUnavailable = errors.New("catalog: unavailable")
)
