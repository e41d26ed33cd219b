package debug

import (
	"errors"
	"sync"
	"testing"
)

func TestSession_InitialState(t *testing.T) {
	s := NewSession()
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}
	if s.BreakpointActive() {
		t.Error("expected no active breakpoint")
	}
}

func TestSession_Launch(t *testing.T) {
	s := NewSession()
	if err := s.Launch(true); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if s.State() != StateSteppingIn {
		t.Errorf("expected stepping-in after stop-on-entry launch, got %s", s.State())
	}
	if err := s.Launch(true); !errors.Is(err, ErrBusy) {
		t.Errorf("expected second launch to fail with ErrBusy, got %v", err)
	}

	s2 := NewSession()
	_ = s2.Launch(false)
	if s2.State() != StateRunning {
		t.Errorf("expected running, got %s", s2.State())
	}
}

func TestSession_BeginFromPaused(t *testing.T) {
	tests := []struct {
		cmd  Command
		want State
	}{
		{CommandStepIn, StateSteppingIn},
		{CommandStepOver, StateSteppingOver},
		{CommandStepOut, StateSteppingOut},
		{CommandContinue, StateRunning},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			s := NewSession()
			_ = s.Launch(false)
			_ = s.Pause(false)

			got, err := s.Begin(tt.cmd)
			if err != nil {
				t.Fatalf("Begin failed: %v", err)
			}
			if got != tt.want || s.State() != tt.want {
				t.Errorf("Begin(%s) = %s, expected %s", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestSession_BeginClearsBreakpointFlag(t *testing.T) {
	s := NewSession()
	_ = s.Launch(false)
	_ = s.Pause(true)
	if !s.BreakpointActive() {
		t.Fatal("expected active breakpoint after Pause(true)")
	}

	if _, err := s.Begin(CommandContinue); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if s.BreakpointActive() {
		t.Error("expected breakpoint flag cleared by Begin")
	}
}

func TestSession_BeginRejected(t *testing.T) {
	idle := NewSession()
	if _, err := idle.Begin(CommandStepIn); !errors.Is(err, ErrNotStarted) {
		t.Errorf("idle: expected ErrNotStarted, got %v", err)
	}

	running := NewSession()
	_ = running.Launch(false)
	if _, err := running.Begin(CommandStepOver); !errors.Is(err, ErrBusy) {
		t.Errorf("running: expected ErrBusy, got %v", err)
	}

	done := NewSession()
	_ = done.Launch(false)
	done.Terminate()
	if _, err := done.Begin(CommandContinue); !errors.Is(err, ErrTerminated) {
		t.Errorf("terminated: expected ErrTerminated, got %v", err)
	}
}

func TestSession_PauseRequiresExecution(t *testing.T) {
	s := NewSession()
	if err := s.Pause(false); err == nil {
		t.Error("expected Pause from idle to fail")
	}

	_ = s.Launch(true)
	if err := s.Pause(false); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := s.Pause(false); err == nil {
		t.Error("expected Pause while paused to fail")
	}
}

func TestSession_OnChange(t *testing.T) {
	s := NewSession()

	var changes [][2]State
	s.OnChange(func(old, new State) {
		changes = append(changes, [2]State{old, new})
	})

	_ = s.Launch(true)
	_ = s.Pause(false)
	s.Terminate()

	want := [][2]State{
		{StateIdle, StateSteppingIn},
		{StateSteppingIn, StatePaused},
		{StatePaused, StateTerminated},
	}
	if len(changes) != len(want) {
		t.Fatalf("expected %d changes, got %v", len(want), changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %v, expected %v", i, changes[i], want[i])
		}
	}
}

// Two clients stepping at the same time: exactly one wins, the other is
// told the engine is busy. The race is detected, not prevented upstream.
func TestSession_ConcurrentBeginDetected(t *testing.T) {
	s := NewSession()
	_ = s.Launch(false)
	_ = s.Pause(false)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Begin(CommandStepOver)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, busy int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrBusy):
			busy++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || busy != 7 {
		t.Errorf("expected 1 winner and 7 busy, got %d and %d", ok, busy)
	}
}

func TestState_String(t *testing.T) {
	if StatePausedAtBreakpoint.String() != "paused-at-breakpoint" {
		t.Errorf("unexpected string %q", StatePausedAtBreakpoint.String())
	}
	if State(99).String() != "unknown" {
		t.Error("expected unknown for out-of-range state")
	}
}
