package record

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Key is the pool-scoped part of a slot address: "<pool>.<channel><index>".
// A Key is scoped per device; (device, Key) uniquely addresses one slot.
type Key struct {
	// Pool is the group identifier (e.g. "P4"). Non-empty.
	Pool string

	// Channel is the axis tag distinguishing value/status/unit/min/max/type
	// slots of the same address (e.g. "v", "s"). Open-ended: unrecognized
	// channels are preserved, not rejected. Non-empty, letters only.
	Channel string

	// Index distinguishes repeated instances of (pool, channel). Non-negative.
	Index int
}

// String renders the canonical form "<pool>.<channel><index>", e.g. "P4.v1".
func (k Key) String() string {
	return k.Pool + "." + k.Channel + strconv.Itoa(k.Index)
}

// ParseKey parses the canonical form back into a Key.
//
// The pool is everything before the last dot (pools may themselves contain
// dots). The remainder must be a run of letters (the channel) followed by a
// run of digits (the index). Anything else fails with ErrInvalidKey.
func ParseKey(s string) (Key, error) {
	dot := strings.LastIndexByte(s, '.')
	if dot <= 0 || dot == len(s)-1 {
		return Key{}, fmt.Errorf("%w: %q: missing pool or slot", ErrInvalidKey, s)
	}

	pool := s[:dot]
	slot := s[dot+1:]

	// Split the slot into channel letters and index digits.
	split := -1
	for i, r := range slot {
		if unicode.IsDigit(r) {
			split = i
			break
		}
		if !unicode.IsLetter(r) {
			return Key{}, fmt.Errorf("%w: %q: channel must be letters", ErrInvalidKey, s)
		}
	}
	if split <= 0 {
		return Key{}, fmt.Errorf("%w: %q: missing channel or index", ErrInvalidKey, s)
	}

	index, err := strconv.Atoi(slot[split:])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %q: bad index: %w", ErrInvalidKey, s, err)
	}

	return Key{Pool: pool, Channel: slot[:split], Index: index}, nil
}
