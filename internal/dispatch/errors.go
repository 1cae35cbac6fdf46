package dispatch

import "errors"

// Domain-specific errors for message dispatch.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrEmptyPattern is returned when subscribing with an empty topic pattern.
	ErrEmptyPattern = errors.New("dispatch: pattern cannot be empty")

	// ErrNilHandler is returned when subscribing with a nil handler.
	ErrNilHandler = errors.New("dispatch: handler cannot be nil")

	// ErrUnknownCommand is returned by the control handler for commands
	// outside the registered vocabulary. The command is still acknowledged
	// on the reply topic with an error status.
	ErrUnknownCommand = errors.New("dispatch: unknown command")

	// ErrMalformedCommand is returned when a control payload cannot be
	// decoded or carries no command field.
	ErrMalformedCommand = errors.New("dispatch: malformed command payload")
)
