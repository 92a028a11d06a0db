package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/gray-sync-core/internal/gateway"
	"github.com/nerrad567/gray-sync-core/internal/infrastructure/config"
	"github.com/nerrad567/gray-sync-core/internal/normalize"
)

// eventBuffer bounds the transport event channel. Frames arriving while the
// gateway is mid-transition queue here.
const eventBuffer = 256

// Transport delivers device delta frames over MQTT. It implements the
// gateway's push transport: each synchronized device has its own delta
// topic (graysync/delta/{device}) carrying JSON payload objects.
//
// The underlying client auto-reconnects at the TCP level, but the gateway
// still observes every drop through a disconnected event and runs its own
// re-prime cycle. The broker has no replay, so that cycle is what restores
// missed state.
type Transport struct {
	cfg    config.MQTTConfig
	logger Logger

	mu      sync.Mutex
	client  *Client
	session gateway.Session
	closed  bool

	events chan gateway.TransportEvent
	done   chan struct{}
}

// NewTransport creates an MQTT-backed push transport. The connection is not
// established until Open is called.
func NewTransport(cfg config.MQTTConfig, logger Logger) *Transport {
	return &Transport{
		cfg:    cfg,
		logger: logger,
		events: make(chan gateway.TransportEvent, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Open connects to the broker for the given session. Calling Open on an
// already-open transport replaces the session; the broker connection is
// reused.
func (t *Transport) Open(_ context.Context, session gateway.Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrNotConnected
	}
	t.session = session

	if t.client != nil {
		return nil
	}

	client, err := Connect(t.cfg)
	if err != nil {
		return err
	}
	if t.logger != nil {
		client.SetLogger(t.logger)
	}

	client.SetOnConnect(func() {
		t.emit(gateway.TransportEvent{Kind: gateway.EventConnected})
	})
	client.SetOnDisconnect(func(err error) {
		t.emit(gateway.TransportEvent{Kind: gateway.EventDisconnected, Err: err})
	})

	t.client = client
	return nil
}

// SubscribeDevices requests delta delivery for each device and returns the
// devices the broker confirmed. A device whose subscription fails is simply
// absent from the confirmed set; the error is returned only when no device
// could be armed.
func (t *Transport) SubscribeDevices(_ context.Context, deviceIDs []string) ([]string, error) {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return nil, ErrNotConnected
	}

	var (
		confirmed []string
		lastErr   error
	)
	for _, id := range deviceIDs {
		topic := Topics{}.DeviceDelta(id)
		if err := client.Subscribe(topic, byte(t.cfg.QoS), t.frameHandler); err != nil {
			lastErr = err
			if t.logger != nil {
				t.logger.Warn("delta subscription failed", "device", id, "error", err)
			}
			continue
		}
		confirmed = append(confirmed, id)
	}

	if len(confirmed) == 0 && lastErr != nil {
		return nil, fmt.Errorf("%w: no device subscriptions confirmed: %w", ErrSubscribeFailed, lastErr)
	}
	return confirmed, nil
}

// Events returns the stream the gateway consumes.
func (t *Transport) Events() <-chan gateway.TransportEvent {
	return t.events
}

// Close releases the broker connection and ends the event stream.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	client := t.client
	t.client = nil
	t.mu.Unlock()

	close(t.done)
	if client != nil {
		return client.Close()
	}
	return nil
}

// frameHandler decodes one delta frame. The device is the final topic
// segment; the payload is a JSON object of slot entries.
func (t *Transport) frameHandler(topic string, payload []byte) error {
	device := deviceFromTopic(topic)
	if device == "" {
		return fmt.Errorf("%w: no device in topic %q", ErrInvalidTopic, topic)
	}

	var p normalize.Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding delta frame for %s: %w", device, err)
	}

	t.emit(gateway.TransportEvent{Kind: gateway.EventFrame, Device: device, Payload: p})
	return nil
}

// emit delivers an event unless the transport is closed. A full channel
// blocks until the gateway catches up; frames are never dropped here.
func (t *Transport) emit(ev gateway.TransportEvent) {
	select {
	case <-t.done:
	case t.events <- ev:
	}
}

// deviceFromTopic extracts the device identifier from a delta topic.
// Expects graysync/delta/{device}.
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefix || parts[1] != "delta" {
		return ""
	}
	return parts[2]
}
