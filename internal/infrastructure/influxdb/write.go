package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names for bridge telemetry.
const (
	measurementEntityState    = "entity_state"
	measurementCommandLatency = "command_latency"
	measurementCloudRefresh   = "cloud_refresh"
)

// WriteEntityState records an entity state change.
//
// Called after every decoded status update (cloud refresh or UDP push)
// and after every optimistic command echo.
//
// Parameters:
//   - deviceID: Vendor device ID (serial:module:smap)
//   - entityType: Entity kind (switch, fan, light, cover)
//   - fields: State fields (e.g., "on": 1.0, "speed": 2.0, "brightness": 128.0)
func (c *Client) WriteEntityState(deviceID string, entityType string, fields map[string]any) {
	c.emit(measurementEntityState, map[string]string{
		"device_id": deviceID,
		"type":      entityType,
	}, fields)
}

// WriteCommandLatency records the round-trip time of a cloud command.
//
// Used for monitoring vendor API responsiveness and diagnosing slow commands.
//
// Parameters:
//   - deviceID: Vendor device ID
//   - verb: Cloud command verb (e.g., "set-status", "set-speed")
//   - duration: Round-trip time of the HTTP call
//   - success: Whether the vendor accepted the command
func (c *Client) WriteCommandLatency(deviceID string, verb string, duration time.Duration, success bool) {
	c.emit(measurementCommandLatency, map[string]string{
		"device_id": deviceID,
		"verb":      verb,
	}, map[string]any{
		"duration_ms": float64(duration.Milliseconds()),
		"success":     success,
	})
}

// WriteRefreshResult records the outcome of a cloud refresh cycle.
//
// Parameters:
//   - deviceCount: Number of devices returned by enumeration
//   - duration: Total refresh duration
//   - success: Whether the refresh completed without error
func (c *Client) WriteRefreshResult(deviceCount int, duration time.Duration, success bool) {
	c.emit(measurementCloudRefresh, map[string]string{}, map[string]any{
		"device_count": deviceCount,
		"duration_ms":  float64(duration.Milliseconds()),
		"success":      success,
	})
}

// emit queues one point on the non-blocking write API.
// Points written after Close are silently dropped.
func (c *Client) emit(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
