package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-sync-core/internal/bus"
	"github.com/nerrad567/gray-sync-core/internal/catalog"
	"github.com/nerrad567/gray-sync-core/internal/record"
)

// Logger defines the logging interface used by the Store.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// entry is one projection slot: the last-seen value and the bus sequence
// that set it.
type entry struct {
	value record.Value
	seq   uint64
}

// Store is the materialized latest-value projection.
//
// All public methods are thread-safe. Get never blocks on Apply: readers
// observe either the old or the new value for a key, never a partial write.
type Store struct {
	catalog catalog.Catalog // nil for the lightweight flavor

	mu     sync.RWMutex
	slots  map[string]entry // "<device>/<pool>.<channel><index>" → entry
	logger Logger
}

// NewLightweight creates a store that keeps values only.
func NewLightweight() *Store {
	return &Store{
		slots:  make(map[string]entry),
		logger: noopLogger{},
	}
}

// NewAssetAware creates a store that additionally resolves descriptors
// through the given catalog at read time. The catalog may be nil, in which
// case the store behaves exactly like the lightweight flavor.
func NewAssetAware(cat catalog.Catalog) *Store {
	s := NewLightweight()
	s.catalog = cat
	return s
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// slotKey builds the projection map key for a record's identity.
func slotKey(device string, k record.Key) string {
	return device + "/" + k.String()
}

// Apply folds one record into the projection.
//
// Records without a value are consumed but never stored. A record whose
// sequence is not strictly greater than the one already recorded for its
// key is ignored: only the bus sequence decides recency, never metadata
// timestamps, so re-applying an old record can never regress a slot.
func (s *Store) Apply(r record.Record) {
	if !r.Value.Present() {
		return
	}

	key := slotKey(r.Device, r.Key())

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.slots[key]; ok && r.Seq <= prev.seq {
		s.logger.Debug("stale record ignored", "key", key, "seq", r.Seq, "have", prev.seq)
		return
	}
	s.slots[key] = entry{value: r.Value, seq: r.Seq}
}

// Get returns the current value for a slot. The second return is false
// while the slot is not yet known. Get never blocks.
func (s *Store) Get(device, pool, channel string, index int) (record.Value, bool) {
	return s.GetKey(device, record.Key{Pool: pool, Channel: channel, Index: index})
}

// GetKey is Get addressed by a parsed key.
func (s *Store) GetKey(device string, k record.Key) (record.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.slots[slotKey(device, k)]
	if !ok {
		return record.None(), false
	}
	return e.value, true
}

// DeviceValues returns a copy of the projection for one device, keyed by
// canonical slot key.
func (s *Store) DeviceValues(device string) map[string]record.Value {
	prefix := device + "/"

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]record.Value)
	for key, e := range s.slots {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out[key[len(prefix):]] = e.value
		}
	}
	return out
}

// Len returns the number of known slots across all devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Run subscribes to the bus once and applies every record until the bus
// closes or the context is cancelled. It leaves no subscription behind on
// either exit path.
func (s *Store) Run(ctx context.Context, b *bus.Bus) error {
	sub, err := b.Subscribe()
	if err != nil {
		return fmt.Errorf("store: subscribing: %w", err)
	}
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-sub.Records():
			if !ok {
				return nil
			}
			s.Apply(r)
		}
	}
}
