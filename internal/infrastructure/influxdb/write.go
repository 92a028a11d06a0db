package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-sync-core/internal/record"
)

// WriteSlotValue writes one canonical slot value to InfluxDB.
//
// This is the primary method for recording synchronized telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: The device the value belongs to (e.g., "ctl-1")
//   - key: The slot identity (pool, channel, index)
//   - seq: The bus sequence number that carried the value
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteSlotValue("ctl-1", key, 42, 20.5)
func (c *Client) WriteSlotValue(deviceID string, key record.Key, seq uint64, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"slot_values",
		map[string]string{
			"device_id": deviceID,
			"pool":      key.Pool,
			"channel":   key.Channel,
			"idx":       strconv.Itoa(key.Index),
		},
		map[string]interface{}{
			"value": value,
			"seq":   int64(seq), //nolint:gosec // sequence fits well within int64
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
