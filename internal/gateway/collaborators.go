package gateway

import (
	"context"

	"github.com/nerrad567/gray-sync-core/internal/bus"
	"github.com/nerrad567/gray-sync-core/internal/normalize"
)

// Snapshotter is the REST collaborator: it pulls full snapshots of current
// parameter state, keyed by device. Every failure is retryable — the
// gateway retries primes without corrupting its own state.
type Snapshotter interface {
	// PrimeParameters fetches the current parameter snapshot for the
	// given devices.
	PrimeParameters(ctx context.Context, deviceIDs []string) (map[string]normalize.Payload, error)

	// PrimeActivity fetches the activity snapshot (counters, runtimes).
	// Diagnostics-grade data: a failure here never fails the prime.
	PrimeActivity(ctx context.Context, deviceIDs []string) (map[string]normalize.Payload, error)
}

// EventKind classifies transport events.
type EventKind string

// Transport event kinds.
const (
	EventConnected    EventKind = "connected"
	EventFrame        EventKind = "frame"
	EventDisconnected EventKind = "disconnected"
)

// TransportEvent is one event from the push transport.
type TransportEvent struct {
	Kind EventKind

	// Device is the source module of a frame event.
	Device string

	// Payload is the raw delta of a frame event.
	Payload normalize.Payload

	// Err is the disconnect reason of a disconnected event.
	Err error
}

// Session identifies one push subscription attempt.
type Session struct {
	// Token is a fresh identifier minted per prime cycle.
	Token string

	// Devices is the device set the session covers.
	Devices []string
}

// Transport is the push collaborator: a persistent realtime connection
// delivering raw delta frames. Reconnect timing and framing belong to the
// implementation; the gateway only reacts to disconnected events by
// re-priming.
type Transport interface {
	// Open establishes (or reuses) the connection for a session.
	Open(ctx context.Context, session Session) error

	// SubscribeDevices requests delta delivery for the given devices and
	// returns the confirmed set. Confirmation of a device that was never
	// requested is a protocol invariant violation handled by the gateway.
	SubscribeDevices(ctx context.Context, deviceIDs []string) ([]string, error)

	// Events returns the event stream. The channel is owned by the
	// transport and stays valid across reconnects.
	Events() <-chan TransportEvent

	// Close releases the connection.
	Close() error
}

// Consumer is a long-lived bus subscriber managed by the gateway, such as
// the materialized store or the telemetry history sink. Run must subscribe
// exactly once and then apply records until the bus closes or the context
// is cancelled.
type Consumer interface {
	Run(ctx context.Context, b *bus.Bus) error
}
