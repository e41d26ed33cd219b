package debug

import (
	"fmt"
	"sync"
)

// State represents the execution state of a debug session.
type State int

const (
	// StateIdle is the initial state before a program is launched.
	StateIdle State = iota
	// StateRunning is when the program runs until the next breakpoint.
	StateRunning
	// StateSteppingIn is when the program runs until the next statement.
	StateSteppingIn
	// StateSteppingOver is when the program runs until the next statement in the same or an outer scope.
	StateSteppingOver
	// StateSteppingOut is when the program runs until the current scope returns.
	StateSteppingOut
	// StatePaused is when the program is stopped after a step.
	StatePaused
	// StatePausedAtBreakpoint is when the program is stopped on a breakpoint.
	StatePausedAtBreakpoint
	// StateTerminated is when the program has finished or failed.
	StateTerminated
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSteppingIn:
		return "stepping-in"
	case StateSteppingOver:
		return "stepping-over"
	case StateSteppingOut:
		return "stepping-out"
	case StatePaused:
		return "paused"
	case StatePausedAtBreakpoint:
		return "paused-at-breakpoint"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Executing reports whether the program is currently executing code.
func (s State) Executing() bool {
	switch s {
	case StateRunning, StateSteppingIn, StateSteppingOver, StateSteppingOut:
		return true
	}
	return false
}

// Stopped reports whether the program is paused.
func (s State) Stopped() bool {
	return s == StatePaused || s == StatePausedAtBreakpoint
}

// Command is an execution control request.
type Command int

const (
	// CommandStepIn executes one statement, entering called functions.
	CommandStepIn Command = iota
	// CommandStepOver executes one statement of the current scope.
	CommandStepOver
	// CommandStepOut runs until the current scope returns.
	CommandStepOut
	// CommandContinue runs until the next breakpoint or program end.
	CommandContinue
)

// String returns a string representation of the command.
func (c Command) String() string {
	switch c {
	case CommandStepIn:
		return "step-in"
	case CommandStepOver:
		return "step-over"
	case CommandStepOut:
		return "step-out"
	case CommandContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// target returns the state a command moves a paused session to.
func (c Command) target() State {
	switch c {
	case CommandStepIn:
		return StateSteppingIn
	case CommandStepOver:
		return StateSteppingOver
	case CommandStepOut:
		return StateSteppingOut
	default:
		return StateRunning
	}
}

// Session is the stepping state machine shared by the engine and the
// protocol handlers.
type Session struct {
	mu       sync.Mutex
	state    State
	onChange func(old, new State)
}

// NewSession creates a session in StateIdle.
func NewSession() *Session {
	return &Session{state: StateIdle}
}

// OnChange sets a callback invoked after every state change.
// The callback runs with no session lock held.
func (s *Session) OnChange(fn func(old, new State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BreakpointActive reports whether execution is parked at a breakpoint.
func (s *Session) BreakpointActive() bool {
	return s.State() == StatePausedAtBreakpoint
}

// Launch moves an idle session to SteppingIn (stop on entry) or Running.
func (s *Session) Launch(stopOnEntry bool) error {
	next := StateRunning
	if stopOnEntry {
		next = StateSteppingIn
	}

	return s.transition(func(cur State) error {
		if cur != StateIdle {
			return fmt.Errorf("launch from %s: %w", cur, ErrBusy)
		}
		return nil
	}, next)
}

// Begin applies an execution command to a paused session and returns the
// new state.
func (s *Session) Begin(cmd Command) (State, error) {
	next := cmd.target()
	err := s.transition(func(cur State) error {
		switch {
		case cur.Stopped():
			return nil
		case cur.Executing():
			return fmt.Errorf("%s while %s: %w", cmd, cur, ErrBusy)
		case cur == StateIdle:
			return ErrNotStarted
		default:
			return ErrTerminated
		}
	}, next)
	if err != nil {
		return s.State(), err
	}
	return next, nil
}

// Pause stops an executing session.
func (s *Session) Pause(atBreakpoint bool) error {
	next := StatePaused
	if atBreakpoint {
		next = StatePausedAtBreakpoint
	}

	return s.transition(func(cur State) error {
		if !cur.Executing() {
			return fmt.Errorf("pause from %s: invalid transition", cur)
		}
		return nil
	}, next)
}

// Terminate marks the program as finished.
func (s *Session) Terminate() {
	_ = s.transition(func(State) error { return nil }, StateTerminated)
}

// transition moves to next when check accepts the current state.
func (s *Session) transition(check func(cur State) error, next State) error {
	s.mu.Lock()
	cur := s.state
	if err := check(cur); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil && cur != next {
		fn(cur, next)
	}
	return nil
}
