package bus

import (
	"sync"

	"github.com/nerrad567/gray-sync-core/internal/record"
)

// deliveryBuffer is the bounded channel capacity of one subscription.
// Overflow beyond this spills into the subscription's staging queue rather
// than blocking the publisher or dropping records.
const deliveryBuffer = 64

// Bus is the in-process multicast bus. See the package documentation for
// the ordering and delivery guarantees.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	seq    uint64
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates an open bus with no subscribers and sequence counter at zero.
func New() *Bus {
	return &Bus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe returns a fresh, independent subscription that receives every
// record published from this point forward, in publish order. It fails with
// ErrClosed after Close.
func (b *Bus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	s := &Subscription{
		bus:  b,
		ch:   make(chan record.Record, deliveryBuffer),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	b.subs[s] = struct{}{}

	go s.pump()
	return s, nil
}

// Publish stamps the record with the next sequence number and hands it to
// every active subscription. It never blocks on slow consumers and never
// drops a record. The sequence counter advances even with zero subscribers.
//
// The returned sequence is the one assigned to this record.
func (b *Bus) Publish(r record.Record) (uint64, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}

	b.seq++
	r.Seq = b.seq

	// Snapshot subscribers under the lock so every subscription observes
	// the same relative order of any two publishes.
	for s := range b.subs {
		s.enqueue(r)
	}
	seq := b.seq
	b.mu.Unlock()

	return seq, nil
}

// Seq returns the last assigned sequence number (zero before any publish).
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close terminates the bus. Every subscription still receives all records
// published before Close, then its channel ends (it does not error).
// Further Publish and Subscribe calls fail with ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.finish()
	}
}

// remove detaches a subscription from the registry. Safe to call during
// active fan-out; publishes in flight simply no longer include it.
func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is one independent delivery path. Records arrive on the
// channel returned by Records, in publish order, ending when the bus is
// closed or the subscription is cancelled.
type Subscription struct {
	bus *Bus
	ch  chan record.Record

	mu       sync.Mutex
	cond     *sync.Cond
	staging  []record.Record
	finished bool // bus closed: drain staging, then end

	done     chan struct{} // cancelled: stop delivery immediately
	doneOnce sync.Once
}

// Records returns the delivery channel. It yields every record published
// after Subscribe, in order, and is closed when the bus closes (after all
// pending records are delivered) or when Cancel is called.
func (s *Subscription) Records() <-chan record.Record {
	return s.ch
}

// Cancel stops delivery to this subscription and detaches it from the bus.
// Other subscriptions are unaffected. Safe to call during active delivery
// and safe to call more than once. Records still pending for this
// subscription are discarded.
func (s *Subscription) Cancel() {
	s.bus.remove(s)
	s.doneOnce.Do(func() {
		close(s.done)
	})
	// Wake the pump if it is waiting for work.
	s.mu.Lock()
	s.cond.Signal()
	s.mu.Unlock()
}

// enqueue appends a record to the staging queue. Called with the bus lock
// held; must not block.
func (s *Subscription) enqueue(r record.Record) {
	s.mu.Lock()
	s.staging = append(s.staging, r)
	s.cond.Signal()
	s.mu.Unlock()
}

// finish marks the subscription as ended by bus close. Pending records are
// still delivered; the channel closes after the staging queue drains.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.finished = true
	s.cond.Signal()
	s.mu.Unlock()
}

// cancelled reports whether Cancel has been called.
func (s *Subscription) cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// pump drains the staging queue into the delivery channel. It is the only
// sender on s.ch and the only goroutine that closes it.
func (s *Subscription) pump() {
	defer close(s.ch)

	for {
		s.mu.Lock()
		for len(s.staging) == 0 && !s.finished && !s.cancelled() {
			s.cond.Wait()
		}
		if s.cancelled() {
			s.mu.Unlock()
			return
		}
		if len(s.staging) == 0 {
			// Finished and fully drained.
			s.mu.Unlock()
			return
		}
		r := s.staging[0]
		s.staging = s.staging[1:]
		if len(s.staging) == 0 {
			// Let the backing array be collected once drained.
			s.staging = nil
		}
		s.mu.Unlock()

		select {
		case s.ch <- r:
		case <-s.done:
			return
		}
	}
}
