package backend

import "errors"

// Domain-specific errors for backend operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRequestFailed is returned when the backend is unreachable or
	// replies with an unexpected status.
	ErrRequestFailed = errors.New("backend: request failed")

	// ErrBadImage is returned when an image payload cannot be decoded.
	ErrBadImage = errors.New("backend: image cannot be decoded")

	// ErrEmptyRegion is returned when a crop region has no area after
	// clamping to the image bounds.
	ErrEmptyRegion = errors.New("backend: crop region is empty")
)
