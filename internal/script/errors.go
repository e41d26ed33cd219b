package script

import "errors"

// Errors for engine operations.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrExecutorClosed is returned when attempting to use a closed executor.
	ErrExecutorClosed = errors.New("lua executor is closed")

	// ErrQueueFull is returned when an asynchronous call cannot be queued.
	ErrQueueFull = errors.New("lua executor queue full")

	// ErrRunning is returned when inspecting while the program executes.
	ErrRunning = errors.New("program is running")

	// ErrUndefinedVariable is returned when a name resolves to nothing.
	ErrUndefinedVariable = errors.New("undefined variable")

	// ErrAlreadyLaunched is returned when a second program is launched.
	ErrAlreadyLaunched = errors.New("program already launched")

	// ErrNotStarted is returned when the engine has not been started.
	ErrNotStarted = errors.New("engine not started")
)

// SyntaxError reports a program that failed to parse.
type SyntaxError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return "syntax error in " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the parser error.
func (e *SyntaxError) Unwrap() error {
	return e.Err
}
