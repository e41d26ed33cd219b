package debug

import (
	"errors"
	"fmt"
)

// Errors for breakpoint validation and session transitions.
var (
	// ErrFileNotOpen is returned when a breakpoint names a file the engine has not opened.
	ErrFileNotOpen = errors.New("file not open")

	// ErrLineOutOfRange is returned when a breakpoint line is outside the file.
	ErrLineOutOfRange = errors.New("line out of range")

	// ErrBusy is returned when a stepping command arrives while another one is in flight.
	ErrBusy = errors.New("execution already in progress")

	// ErrNotStarted is returned when stepping before a program was launched.
	ErrNotStarted = errors.New("program not started")

	// ErrTerminated is returned when stepping after the program finished.
	ErrTerminated = errors.New("program terminated")
)

// ValidationError describes a rejected breakpoint.
type ValidationError struct {
	Path string
	Line int
	Err  error // ErrFileNotOpen or ErrLineOutOfRange
}

func (e *ValidationError) Error() string {
	if errors.Is(e.Err, ErrLineOutOfRange) {
		return fmt.Sprintf("breakpoint %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("breakpoint %s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
