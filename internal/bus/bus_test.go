package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-sync-core/internal/record"
)

func testRecord(pool string, index int) record.Record {
	return record.Record{
		Device:  "ctl-1",
		Pool:    pool,
		Channel: "v",
		Index:   index,
		Value:   record.Float(float64(index)),
		Meta:    map[string]any{},
	}
}

// collect drains a subscription until its channel closes or n records arrive.
func collect(t *testing.T, sub *Subscription, n int) []record.Record {
	t.Helper()

	out := make([]record.Record, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case r, ok := <-sub.Records():
			if !ok {
				return out
			}
			out = append(out, r)
		case <-timeout:
			t.Fatalf("timed out after %d of %d records", len(out), n)
		}
	}
	return out
}

func TestPublishAssignsIncreasingSequence(t *testing.T) {
	b := New()
	defer b.Close()

	for i := 1; i <= 5; i++ {
		seq, err := b.Publish(testRecord("P1", i))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), seq)
	}
	assert.Equal(t, uint64(5), b.Seq())
}

func TestSequenceAdvancesWithZeroSubscribers(t *testing.T) {
	b := New()
	defer b.Close()

	_, err := b.Publish(testRecord("P1", 1))
	require.NoError(t, err)
	_, err = b.Publish(testRecord("P1", 2))
	require.NoError(t, err)

	// A subscriber attaching now must not see the earlier records.
	sub, err := b.Subscribe()
	require.NoError(t, err)

	_, err = b.Publish(testRecord("P1", 3))
	require.NoError(t, err)

	got := collect(t, sub, 1)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(3), got[0].Seq)
}

func TestOrderPreservationPerSubscriber(t *testing.T) {
	b := New()
	defer b.Close()

	const subscribers = 4
	const publishes = 500

	subs := make([]*Subscription, subscribers)
	for i := range subs {
		var err error
		subs[i], err = b.Subscribe()
		require.NoError(t, err)
	}

	go func() {
		for i := 0; i < publishes; i++ {
			//nolint:errcheck // bus stays open for the duration of the test
			b.Publish(testRecord("P1", i))
		}
	}()

	for i, sub := range subs {
		got := collect(t, sub, publishes)
		require.Len(t, got, publishes, "subscriber %d", i)
		for j := 1; j < len(got); j++ {
			assert.Equal(t, got[j-1].Seq+1, got[j].Seq,
				"subscriber %d saw a gap or reorder at %d", i, j)
		}
	}
}

func TestLateSubscriberSeesNoReplay(t *testing.T) {
	b := New()
	defer b.Close()

	early, err := b.Subscribe()
	require.NoError(t, err)

	const n = 10
	for i := 0; i < n; i++ {
		_, err := b.Publish(testRecord("P1", i))
		require.NoError(t, err)
	}

	late, err := b.Subscribe()
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		_, err := b.Publish(testRecord("P2", i))
		require.NoError(t, err)
	}

	earlyGot := collect(t, early, 2*n)
	require.Len(t, earlyGot, 2*n)

	lateGot := collect(t, late, n)
	require.Len(t, lateGot, n)
	for _, r := range lateGot {
		assert.Greater(t, r.Seq, uint64(n),
			"late subscriber observed a record from before it attached")
	}
}

func TestSlowSubscriberDoesNotBlockOrDrop(t *testing.T) {
	b := New()
	defer b.Close()

	slow, err := b.Subscribe()
	require.NoError(t, err)
	fast, err := b.Subscribe()
	require.NoError(t, err)

	// Publish far beyond the delivery buffer without reading from slow.
	const publishes = deliveryBuffer * 10
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < publishes; i++ {
			//nolint:errcheck // bus stays open for the duration of the test
			b.Publish(testRecord("P1", i))
		}
	}()

	// The fast subscriber keeps up while slow reads nothing.
	fastGot := collect(t, fast, publishes)
	require.Len(t, fastGot, publishes)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// Every record is still waiting for the slow subscriber: none dropped.
	slowGot := collect(t, slow, publishes)
	require.Len(t, slowGot, publishes)
	for j := 1; j < len(slowGot); j++ {
		assert.Equal(t, slowGot[j-1].Seq+1, slowGot[j].Seq)
	}
}

func TestCancelStopsOnlyThatSubscription(t *testing.T) {
	b := New()
	defer b.Close()

	a, err := b.Subscribe()
	require.NoError(t, err)
	c, err := b.Subscribe()
	require.NoError(t, err)

	_, err = b.Publish(testRecord("P1", 1))
	require.NoError(t, err)

	a.Cancel()
	a.Cancel() // repeated cancel is safe

	_, err = b.Publish(testRecord("P1", 2))
	require.NoError(t, err)

	got := collect(t, c, 2)
	require.Len(t, got, 2)

	// The cancelled subscription's channel ends.
	for range a.Records() {
	}
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestCloseDrainsThenEndsSubscriptions(t *testing.T) {
	b := New()

	sub, err := b.Subscribe()
	require.NoError(t, err)

	const n = deliveryBuffer * 3 // force staging past the buffer
	for i := 0; i < n; i++ {
		_, err := b.Publish(testRecord("P1", i))
		require.NoError(t, err)
	}

	b.Close()
	b.Close() // idempotent

	got := make([]record.Record, 0, n)
	for r := range sub.Records() {
		got = append(got, r)
	}
	require.Len(t, got, n, "close must not discard pending records")

	_, err = b.Publish(testRecord("P1", 0))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = b.Subscribe()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestConcurrentPublishersObserveConsistentOrder(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe()
	require.NoError(t, err)

	const goroutines = 8
	const perGoroutine = 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				//nolint:errcheck // bus stays open for the duration of the test
				b.Publish(testRecord("P1", i))
			}
		}()
	}
	wg.Wait()

	got := collect(t, sub, goroutines*perGoroutine)
	require.Len(t, got, goroutines*perGoroutine)
	for j := 1; j < len(got); j++ {
		assert.Equal(t, got[j-1].Seq+1, got[j].Seq)
	}
}
