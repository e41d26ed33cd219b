package server

import (
	"context"

	"github.com/dshills/depurador/internal/debug"
)

// Engine is the execution engine the protocol drives.
//
// Blocking operations take a context; stepping methods return once the
// program has paused again or terminated.
type Engine interface {
	debug.FileLookup

	// Breakpoints returns the registry the engine consults while running.
	Breakpoints() *debug.Registry

	// ExecuteLine evaluates one line of source in the paused frame.
	ExecuteLine(ctx context.Context, src string) ([]any, error)

	// ReadVariable resolves a single name.
	ReadVariable(ctx context.Context, name string) (any, error)

	// Variables lists the variables visible at the current scope.
	Variables(ctx context.Context) ([]debug.Variable, error)

	// ScopeStack returns the frames from the global frame outward in.
	ScopeStack(ctx context.Context) ([]debug.Frame, error)

	StepIn(ctx context.Context) error
	StepOver(ctx context.Context) error
	StepOut(ctx context.Context) error
	Continue(ctx context.Context) error

	// SetOutputFunc installs the callback receiving program output.
	SetOutputFunc(fn func(string))
}
