package telemetry

import "errors"

// Domain-specific errors for telemetry operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDisabled is returned when connecting with telemetry disabled
	// in configuration.
	ErrDisabled = errors.New("telemetry: influxdb is disabled in configuration")

	// ErrConnectionFailed is returned when the initial connection fails.
	ErrConnectionFailed = errors.New("telemetry: connection failed")

	// ErrNotConnected is returned for operations on a closed client.
	ErrNotConnected = errors.New("telemetry: client not connected")
)
