package script

import (
	"errors"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestNewState_PrintRouted(t *testing.T) {
	var got []string
	s, err := NewState(WithPrint(func(msg string) { got = append(got, msg) }))
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}
	defer s.Close()

	if err := s.L.DoString(`print("a", 1, nil, true)`); err != nil {
		t.Fatalf("DoString failed: %v", err)
	}
	if len(got) != 1 || got[0] != "a\t1\tnil\ttrue" {
		t.Errorf("print output = %q", got)
	}
}

func TestNewState_OSLibraries(t *testing.T) {
	tests := []struct {
		name   string
		system bool
		want   bool
	}{
		{"hidden", false, false},
		{"opened", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewState(WithOSLibraries(tt.system))
			if err != nil {
				t.Fatalf("NewState failed: %v", err)
			}
			defer s.Close()

			hasOS := s.L.GetGlobal("os") != lua.LNil
			if hasOS != tt.want {
				t.Errorf("os present = %v, expected %v", hasOS, tt.want)
			}
			if s.L.GetGlobal("dofile") != lua.LNil {
				t.Error("dofile should always be removed")
			}
		})
	}
}

func TestState_Close(t *testing.T) {
	s, err := NewState()
	if err != nil {
		t.Fatalf("NewState failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !s.IsClosed() {
		t.Error("expected closed state")
	}
	if err := s.Close(); !errors.Is(err, ErrStateClosed) {
		t.Errorf("second Close: expected ErrStateClosed, got %v", err)
	}
}
