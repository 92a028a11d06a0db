package bus

import "errors"

// Domain errors for the bus package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrClosed is returned by Publish and Subscribe after Close.
	ErrClosed = errors.New("bus: closed")
)
