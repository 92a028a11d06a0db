package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-sync-core/internal/bus"
	"github.com/nerrad567/gray-sync-core/internal/record"
)

func valueRecord(seq uint64, v record.Value) record.Record {
	return record.Record{
		Device:  "ctl-1",
		Pool:    "P4",
		Channel: "v",
		Index:   1,
		Value:   v,
		Meta:    map[string]any{},
		Seq:     seq,
	}
}

func TestApplyAndGet(t *testing.T) {
	s := NewLightweight()

	s.Apply(valueRecord(1, record.Float(20.5)))

	got, ok := s.Get("ctl-1", "P4", "v", 1)
	require.True(t, ok)
	assert.True(t, got.Equal(record.Float(20.5)))

	_, ok = s.Get("ctl-1", "P4", "s", 1)
	assert.False(t, ok, "unapplied slot must read as not yet known")

	_, ok = s.Get("ctl-2", "P4", "v", 1)
	assert.False(t, ok, "projection is scoped per device")
}

func TestApplyDropsAbsentValues(t *testing.T) {
	s := NewLightweight()

	// The canonical pair: a value record and a metadata-only record.
	s.Apply(valueRecord(1, record.Float(20.5)))
	s.Apply(record.Record{
		Device:  "ctl-1",
		Pool:    "P4",
		Channel: "s",
		Index:   1,
		Value:   record.None(),
		Meta:    map[string]any{"storable": 1},
		Seq:     2,
	})

	got, ok := s.Get("ctl-1", "P4", "v", 1)
	require.True(t, ok)
	assert.True(t, got.Equal(record.Float(20.5)))

	_, ok = s.Get("ctl-1", "P4", "s", 1)
	assert.False(t, ok, "meta-only record must never set a value")
	assert.Equal(t, 1, s.Len())
}

func TestApplyIsIdempotentBySequence(t *testing.T) {
	s := NewLightweight()

	s.Apply(valueRecord(5, record.Float(20.5)))

	// Same sequence again: no change.
	s.Apply(valueRecord(5, record.Float(99.0)))
	got, _ := s.Get("ctl-1", "P4", "v", 1)
	assert.True(t, got.Equal(record.Float(20.5)))

	// Lower sequence: never regresses.
	s.Apply(valueRecord(3, record.Float(17.0)))
	got, _ = s.Get("ctl-1", "P4", "v", 1)
	assert.True(t, got.Equal(record.Float(20.5)))

	// Strictly higher sequence wins.
	s.Apply(valueRecord(6, record.Float(21.0)))
	got, _ = s.Get("ctl-1", "P4", "v", 1)
	assert.True(t, got.Equal(record.Float(21.0)))
}

func TestRunAppliesUntilBusCloses(t *testing.T) {
	s := NewLightweight()
	b := bus.New()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), b)
	}()

	// Give Run a moment to subscribe before publishing.
	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 1
	}, time.Second, time.Millisecond)

	for i := 0; i < 50; i++ {
		_, err := b.Publish(record.Record{
			Device: "ctl-1", Pool: "P4", Channel: "v", Index: i,
			Value: record.Int(int64(i)), Meta: map[string]any{},
		})
		require.NoError(t, err)
	}
	b.Close()

	require.NoError(t, <-done)
	assert.Equal(t, 50, s.Len())
	assert.Equal(t, 0, b.SubscriberCount(), "run must not leak its subscription")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := NewLightweight()
	b := bus.New()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, b)
	}()

	require.Eventually(t, func() bool {
		return b.SubscriberCount() == 1
	}, time.Second, time.Millisecond)

	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	assert.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, time.Second, time.Millisecond, "cancelled run must detach its subscription")
}

func TestConcurrentReadersDuringApply(t *testing.T) {
	s := NewLightweight()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for seq := uint64(1); ; seq++ {
			select {
			case <-stop:
				return
			default:
				s.Apply(valueRecord(seq, record.Int(int64(seq))))
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10000; i++ {
				// Readers must only ever observe a fully written value.
				if v, ok := s.Get("ctl-1", "P4", "v", 1); ok {
					_, numeric := v.Float64()
					assert.True(t, numeric)
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}
