package influxdb

import "errors"

// Telemetry errors. Callers check these with errors.Is; main treats
// ErrDisabled as "run without telemetry" rather than a failure.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrNotConnected is returned when the client has been closed or
	// never connected.
	ErrNotConnected = errors.New("influxdb: client not connected")

	// ErrConnectionFailed is returned when the initial ping fails.
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)
