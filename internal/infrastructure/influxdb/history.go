package influxdb

import (
	"context"

	"github.com/nerrad567/gray-sync-core/internal/bus"
	"github.com/nerrad567/gray-sync-core/internal/record"
)

// Logger is the minimal logging interface the sink needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// HistorySink records synchronized slot values as time-series points. It
// runs as a bus consumer: every numeric value that flows through the sync
// engine becomes a point in the slot_values measurement.
//
// Non-numeric and absent values are skipped; history is a numeric record,
// the materialized store remains the source for strings and booleans.
type HistorySink struct {
	client *Client
	logger Logger
}

// NewHistorySink creates a history sink over an open InfluxDB client.
func NewHistorySink(client *Client, logger Logger) *HistorySink {
	return &HistorySink{client: client, logger: logger}
}

// Run consumes the bus until the subscription ends or the context is
// cancelled, then flushes pending points.
func (s *HistorySink) Run(ctx context.Context, b *bus.Bus) error {
	sub, err := b.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Cancel()
	defer s.client.Flush()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-sub.Records():
			if !ok {
				return nil
			}
			s.store(rec)
		}
	}
}

// store writes one record if it carries a numeric value.
func (s *HistorySink) store(rec record.Record) {
	v, ok := rec.Value.Float64()
	if !ok {
		if s.logger != nil && rec.Value.Present() {
			s.logger.Debug("skipping non-numeric value",
				"device", rec.Device, "key", rec.Key().String())
		}
		return
	}
	s.client.WriteSlotValue(rec.Device, rec.Key(), rec.Seq, v)
}
