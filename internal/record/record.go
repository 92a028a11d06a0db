package record

import "fmt"

// Record is one normalized change to one addressable parameter slot.
//
// Records are immutable once published. Seq is zero until the bus assigns
// it at publish time; consumers must treat Seq as the single source of
// truth for recency — never wall-clock metadata timestamps.
type Record struct {
	// Device is the opaque identifier of the physical module. Non-empty.
	Device string `json:"device"`

	// Pool, Channel, Index form the pool-scoped slot address (see Key).
	Pool    string `json:"pool"`
	Channel string `json:"channel"`
	Index   int    `json:"index"`

	// Value is the carried value, possibly absent (metadata-only records).
	Value Value `json:"value"`

	// Meta is the open key→value bag (timestamps, storability flags,
	// rolling averages, ...). Always non-nil, possibly empty.
	Meta map[string]any `json:"meta"`

	// Seq is assigned by the bus at publish time: strictly increasing,
	// starting at 1, globally unique per bus instance, never reused.
	Seq uint64 `json:"seq"`
}

// Key returns the pool-scoped slot address of the record.
func (r Record) Key() Key {
	return Key{Pool: r.Pool, Channel: r.Channel, Index: r.Index}
}

// Validate checks the record's identity invariants.
func (r Record) Validate() error {
	if r.Device == "" {
		return fmt.Errorf("%w: empty device", ErrInvalidRecord)
	}
	if r.Pool == "" {
		return fmt.Errorf("%w: empty pool", ErrInvalidRecord)
	}
	if r.Channel == "" {
		return fmt.Errorf("%w: empty channel", ErrInvalidRecord)
	}
	if r.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidRecord, r.Index)
	}
	return nil
}
