// Package influxdb provides InfluxDB connectivity for Gray Sync Core.
//
// It wraps the official influxdb-client-go v2 library with Gray Sync-specific
// patterns for connection management, history recording, and health monitoring.
//
// # Purpose
//
// This package records the history of synchronized telemetry: the
// HistorySink consumes the update bus and turns every numeric slot value
// into a point in the slot_values measurement, tagged by device and slot
// identity.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "graysync",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	sink := influxdb.NewHistorySink(client, logger)
//	// attach sink as a bus consumer
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
