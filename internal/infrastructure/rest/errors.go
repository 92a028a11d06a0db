package rest

import "errors"

// Domain-specific errors for snapshot operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnavailable is returned when the backend cannot be reached or
	// responds with a failure status. All snapshot failures are retryable.
	ErrUnavailable = errors.New("rest: snapshot backend unavailable")

	// ErrDecode is returned when a response body is not a valid payload.
	ErrDecode = errors.New("rest: malformed snapshot response")
)
