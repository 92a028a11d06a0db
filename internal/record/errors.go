package record

import "errors"

// Domain errors for the record package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, record.ErrInvalidKey) {
//	    // handle malformed slot address
//	}
var (
	// ErrInvalidKey is returned when a composite key cannot be parsed
	// into (pool, channel, index).
	ErrInvalidKey = errors.New("record: invalid key")

	// ErrInvalidRecord is returned when record validation fails.
	ErrInvalidRecord = errors.New("record: invalid")
)
