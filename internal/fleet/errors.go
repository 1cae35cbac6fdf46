package fleet

import "errors"

// Domain-specific errors for fleet operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDeviceNotRegistered is returned when a command targets a
	// device id the registry does not know.
	ErrDeviceNotRegistered = errors.New("fleet: device not registered")

	// ErrDeliveryFailed is returned when a device was reachable but
	// replied with a non-success status, or could not be reached at all.
	ErrDeliveryFailed = errors.New("fleet: command delivery failed")

	// ErrEmptyDeviceID is returned when a device id is required but empty.
	ErrEmptyDeviceID = errors.New("fleet: device id cannot be empty")
)
