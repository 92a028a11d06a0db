package influxdb

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-sync-core/internal/bus"
	"github.com/nerrad567/gray-sync-core/internal/record"
)

// The sink is exercised against a disconnected client: writes become
// no-ops, which is exactly the degraded mode the engine runs in when
// history is unavailable. The pipeline mechanics are what is under test.

func TestHistorySinkDrainsUntilBusCloses(t *testing.T) {
	b := bus.New()
	sink := NewHistorySink(&Client{}, nil)

	done := make(chan error, 1)
	go func() { done <- sink.Run(context.Background(), b) }()

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(time.Second)
	for b.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sink never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	records := []record.Record{
		{Device: "ctl-1", Pool: "P4", Channel: "v", Index: 1, Value: record.Float(20.5)},
		{Device: "ctl-1", Pool: "P4", Channel: "s", Index: 1, Value: record.String("on")},
		{Device: "ctl-1", Pool: "P4", Channel: "m", Index: 1, Value: record.None()},
	}
	for _, r := range records {
		if _, err := b.Publish(r); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	b.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on bus close", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not stop after bus close")
	}
}

func TestHistorySinkStopsOnContextCancel(t *testing.T) {
	b := bus.New()
	defer b.Close()
	sink := NewHistorySink(&Client{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx, b) }()

	deadline := time.Now().Add(time.Second)
	for b.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sink never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run() error = nil, want context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sink did not stop after cancellation")
	}
}
