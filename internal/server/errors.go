package server

import (
	"errors"
	"fmt"
)

// Errors for server operations.
var (
	// ErrServerRunning is returned when starting a listening server.
	ErrServerRunning = errors.New("server already listening")

	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrUnknownCommand is wrapped by ProtocolError for unrecognized names.
	ErrUnknownCommand = errors.New("comando desconhecido")
)

// ProtocolError reports a malformed or unrecognized command.
type ProtocolError struct {
	Command string
	Reason  string
	Err     error
}

// Error renders the error the way it is sent to clients.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("[%s]: %s", e.Command, e.Reason)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// OperationError reports an engine failure while handling a command.
type OperationError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	return e.Command + ": " + e.Err.Error()
}

// Unwrap returns the engine error.
func (e *OperationError) Unwrap() error {
	return e.Err
}
