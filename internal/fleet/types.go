package fleet

import "time"

// Status is a device's liveness state.
type Status string

const (
	// StatusActive means the device has heartbeated within the timeout.
	StatusActive Status = "active"

	// StatusOffline means the sweep demoted the device for missing
	// heartbeats. The record is kept; a heartbeat revives it.
	StatusOffline Status = "offline"

	// StatusUnknown is returned for device ids not in the registry.
	StatusUnknown Status = "unknown"
)

// Device is one fleet member's registry record.
type Device struct {
	// ID is the opaque unique identifier, stable across reconnects.
	ID string `json:"device_id"`

	// Address is the last-known reachable network address (host:port).
	Address string `json:"address"`

	// Protocol is informational connection metadata (e.g. "mqtt").
	Protocol string `json:"protocol"`

	// Status is the current liveness state.
	Status Status `json:"status"`

	// LastHeartbeat is the timestamp of the last liveness signal.
	// Non-decreasing for the lifetime of the record.
	LastHeartbeat time.Time `json:"last_heartbeat"`

	// ConnectedAt is when the device first registered this session.
	ConnectedAt time.Time `json:"connected_at"`
}
