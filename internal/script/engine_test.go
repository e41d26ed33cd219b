package script

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/depurador/internal/debug"
)

const sumProgram = `local function soma(a, b)
  local r = a + b
  return r
end
local x = 10
local y = soma(x, 5)
print(y)
total = y * 2
`

func writeProgram(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "programa.lua")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write program: %v", err)
	}
	return path
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, context.Context) {
	t.Helper()
	e, err := NewEngine(opts...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	e.Start(ctx)
	t.Cleanup(func() {
		_ = e.Close()
		cancel()
	})
	return e, ctx
}

func currentLine(t *testing.T, e *Engine, ctx context.Context) int {
	t.Helper()
	frames, err := e.ScopeStack(ctx)
	if err != nil {
		t.Fatalf("ScopeStack failed: %v", err)
	}
	visible := debug.Visible(frames)
	if len(visible) == 0 {
		t.Fatal("no visible frames")
	}
	st, ok := visible[0].CurrentStatement()
	if !ok {
		t.Fatal("top frame has no current statement")
	}
	return st.Line
}

func TestEngine_StopOnEntry(t *testing.T) {
	e, ctx := newTestEngine(t)
	path := writeProgram(t, sumProgram)

	if err := e.Launch(ctx, path); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if e.Session().State() != debug.StatePaused {
		t.Fatalf("expected paused after launch, got %s", e.Session().State())
	}
	if line := currentLine(t, e, ctx); line != 1 {
		t.Errorf("expected to stop at line 1, got %d", line)
	}

	if _, ok := e.OpenFile(debug.HashPath(path)); !ok {
		t.Error("expected launched file in the open file table")
	}
}

func TestEngine_Stepping(t *testing.T) {
	e, ctx := newTestEngine(t)
	var mu sync.Mutex
	var output []string
	e.SetOutputFunc(func(msg string) {
		mu.Lock()
		output = append(output, msg)
		mu.Unlock()
	})

	if err := e.Launch(ctx, writeProgram(t, sumProgram)); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	steps := []struct {
		name string
		run  func(context.Context) error
		line int
	}{
		{"over local function", e.StepOver, 5},
		{"over x", e.StepOver, 6},
		{"into soma", e.StepIn, 2},
		{"over r", e.StepOver, 3},
		{"out of soma", e.StepOut, 7},
	}
	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if line := currentLine(t, e, ctx); line != s.line {
			t.Fatalf("%s: expected line %d, got %d", s.name, s.line, line)
		}
	}

	if err := e.Continue(ctx); err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if e.Session().State() != debug.StateTerminated {
		t.Errorf("expected terminated, got %s", e.Session().State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(output) != 1 || output[0] != "15" {
		t.Errorf("output = %v, expected [15]", output)
	}
}

func TestEngine_ScopeStackInsideCall(t *testing.T) {
	e, ctx := newTestEngine(t)
	if err := e.Launch(ctx, writeProgram(t, sumProgram)); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	for _, step := range []func(context.Context) error{e.StepOver, e.StepOver, e.StepIn} {
		if err := step(ctx); err != nil {
			t.Fatalf("step failed: %v", err)
		}
	}

	frames, err := e.ScopeStack(ctx)
	if err != nil {
		t.Fatalf("ScopeStack failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected global, main and soma frames, got %d", len(frames))
	}
	if frames[0].Signature != "<global>" || frames[1].Signature != "<principal>" || frames[2].Signature != "soma" {
		t.Errorf("signatures = %q %q %q", frames[0].Signature, frames[1].Signature, frames[2].Signature)
	}

	mainStmt, _ := frames[1].CurrentStatement()
	if mainStmt.Line != 6 {
		t.Errorf("main frame should be at line 6, got %d", mainStmt.Line)
	}
	var lines []int
	for _, st := range frames[2].Statements {
		lines = append(lines, st.Line)
	}
	if len(lines) != 2 || lines[0] != 2 || lines[1] != 3 {
		t.Errorf("soma frame statements = %v, expected [2 3]", lines)
	}
	for _, st := range frames[1].Statements {
		if st.Line == 2 || st.Line == 3 {
			t.Errorf("main frame lists soma's statement at line %d", st.Line)
		}
	}
}

func TestEngine_Variables(t *testing.T) {
	e, ctx := newTestEngine(t)
	if err := e.Launch(ctx, writeProgram(t, sumProgram)); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	for _, step := range []func(context.Context) error{e.StepOver, e.StepOver, e.StepIn} {
		if err := step(ctx); err != nil {
			t.Fatalf("step failed: %v", err)
		}
	}

	vars, err := e.Variables(ctx)
	if err != nil {
		t.Fatalf("Variables failed: %v", err)
	}
	want := []debug.Variable{
		{Name: "a", Type: "number", Value: "10"},
		{Name: "b", Type: "number", Value: "5"},
	}
	if len(vars) != len(want) {
		t.Fatalf("Variables = %+v, expected %+v", vars, want)
	}
	for i := range want {
		if vars[i] != want[i] {
			t.Errorf("variable %d = %+v, expected %+v", i, vars[i], want[i])
		}
	}
}

func TestEngine_ExecuteLine(t *testing.T) {
	e, ctx := newTestEngine(t)
	if err := e.Launch(ctx, writeProgram(t, sumProgram)); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	for _, step := range []func(context.Context) error{e.StepOver, e.StepOver, e.StepOver} {
		if err := step(ctx); err != nil {
			t.Fatalf("step failed: %v", err)
		}
	}

	results, err := e.ExecuteLine(ctx, "2 + 2")
	if err != nil || len(results) != 1 || results[0] != int64(4) {
		t.Fatalf("ExecuteLine(2 + 2) = %v, %v", results, err)
	}

	results, err = e.ExecuteLine(ctx, "y + 1")
	if err != nil || len(results) != 1 || results[0] != int64(16) {
		t.Errorf("ExecuteLine(y + 1) = %v, %v", results, err)
	}

	results, err = e.ExecuteLine(ctx, "x = 99")
	if err != nil || len(results) != 0 {
		t.Errorf("ExecuteLine(x = 99) = %v, %v", results, err)
	}
	if v, err := e.ReadVariable(ctx, "x"); err != nil || v != int64(99) {
		t.Errorf("local x after assignment = %v, %v", v, err)
	}

	if _, err := e.ExecuteLine(ctx, "nil + 1"); err == nil {
		t.Error("expected runtime error from evaluation")
	}
	if _, err := e.ExecuteLine(ctx, "+++"); err == nil {
		t.Error("expected syntax error from evaluation")
	}
}

func TestEngine_EvaluationIgnoresBreakpoints(t *testing.T) {
	e, ctx := newTestEngine(t)
	path := writeProgram(t, sumProgram)
	if err := e.Launch(ctx, path); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	for _, step := range []func(context.Context) error{e.StepOver, e.StepOver} {
		if err := step(ctx); err != nil {
			t.Fatalf("step failed: %v", err)
		}
	}
	bp, err := e.Breakpoints().Validate(e, path, 3)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	e.Breakpoints().Add(bp)

	results, err := e.ExecuteLine(ctx, "soma(2, 3)")
	if err != nil || len(results) != 1 || results[0] != int64(5) {
		t.Fatalf("ExecuteLine(soma(2, 3)) = %v, %v", results, err)
	}
	if got := e.Session().State(); got != debug.StatePaused {
		t.Errorf("state after evaluation = %s, expected paused", got)
	}
	if line := currentLine(t, e, ctx); line != 6 {
		t.Errorf("evaluation moved the program to line %d", line)
	}

	if err := e.Continue(ctx); err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if got := e.Session().State(); got != debug.StatePausedAtBreakpoint {
		t.Fatalf("state = %s, expected paused at breakpoint", got)
	}
	if line := currentLine(t, e, ctx); line != 3 {
		t.Errorf("expected breakpoint at line 3, got %d", line)
	}
}

func TestEngine_ReadVariable(t *testing.T) {
	e, ctx := newTestEngine(t, WithStopOnEntry(false))
	if err := e.Launch(ctx, writeProgram(t, sumProgram)); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	waitDone(t, e)

	v, err := e.ReadVariable(ctx, "total")
	if err != nil || v != int64(30) {
		t.Errorf("ReadVariable(total) = %v, %v", v, err)
	}

	if _, err := e.ReadVariable(ctx, "nada"); !errors.Is(err, ErrUndefinedVariable) {
		t.Errorf("expected ErrUndefinedVariable, got %v", err)
	}

	vars, err := e.Variables(ctx)
	if err != nil {
		t.Fatalf("Variables failed: %v", err)
	}
	if len(vars) != 1 || vars[0].Name != "total" || vars[0].Value != "30" {
		t.Errorf("Variables after finish = %+v", vars)
	}
}

func TestEngine_Breakpoint(t *testing.T) {
	e, ctx := newTestEngine(t, WithStopOnEntry(false))
	path := writeProgram(t, sumProgram)

	if _, err := e.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	bp, err := e.Breakpoints().Validate(e, path, 3)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	e.Breakpoints().Add(bp)

	if err := e.Launch(ctx, path); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	waitState(t, e, debug.StatePausedAtBreakpoint)

	if line := currentLine(t, e, ctx); line != 3 {
		t.Errorf("expected breakpoint at line 3, got %d", line)
	}
	if v, err := e.ReadVariable(ctx, "r"); err != nil || v != int64(15) {
		t.Errorf("r = %v, %v", v, err)
	}

	if err := e.Continue(ctx); err != nil {
		t.Fatalf("Continue failed: %v", err)
	}
	if e.Session().State() != debug.StateTerminated {
		t.Errorf("expected terminated, got %s", e.Session().State())
	}
}

func TestEngine_RuntimeErrorReported(t *testing.T) {
	e, ctx := newTestEngine(t)
	path := writeProgram(t, "local t = nil\nprint(t.x)\n")

	if err := e.Launch(ctx, path); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	err := e.Continue(ctx)
	if err == nil || !strings.Contains(err.Error(), "attempt to index") {
		t.Fatalf("expected runtime error, got %v", err)
	}
	if e.Err() == nil {
		t.Error("expected Err to keep the program error")
	}

	if err := e.StepIn(ctx); !errors.Is(err, debug.ErrTerminated) {
		t.Errorf("expected ErrTerminated after the program ended, got %v", err)
	}
}

func TestEngine_InspectWhileRunning(t *testing.T) {
	e, ctx := newTestEngine(t, WithStopOnEntry(false))
	if err := e.Launch(ctx, writeProgram(t, "while true do end\n")); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	if _, err := e.ExecuteLine(ctx, "1"); !errors.Is(err, ErrRunning) {
		t.Errorf("expected ErrRunning, got %v", err)
	}
	if err := e.StepOver(ctx); !errors.Is(err, debug.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("program did not stop after Close")
	}
}

func TestEngine_LaunchTwice(t *testing.T) {
	e, ctx := newTestEngine(t)
	path := writeProgram(t, sumProgram)
	if err := e.Launch(ctx, path); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := e.Launch(ctx, path); !errors.Is(err, ErrAlreadyLaunched) {
		t.Errorf("expected ErrAlreadyLaunched, got %v", err)
	}
}

func TestEngine_SyntaxErrorOnLaunch(t *testing.T) {
	e, ctx := newTestEngine(t)
	err := e.Launch(ctx, writeProgram(t, "local = 1\n"))

	var synErr *SyntaxError
	if !errors.As(err, &synErr) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
	if e.Session().State() != debug.StateTerminated {
		t.Errorf("expected terminated, got %s", e.Session().State())
	}
}

func TestEngine_NoSystemLibrariesByDefault(t *testing.T) {
	e, ctx := newTestEngine(t)

	results, err := e.ExecuteLine(ctx, "io == nil and os == nil and dofile == nil")
	if err != nil || len(results) != 1 || results[0] != true {
		t.Errorf("expected io, os and dofile hidden, got %v, %v", results, err)
	}
}

func TestEngine_SystemLibrariesOption(t *testing.T) {
	e, ctx := newTestEngine(t, WithSystemLibraries(true))

	results, err := e.ExecuteLine(ctx, "io ~= nil and os ~= nil and dofile == nil")
	if err != nil || len(results) != 1 || results[0] != true {
		t.Errorf("expected io and os opened with dofile hidden, got %v, %v", results, err)
	}
}

func waitState(t *testing.T, e *Engine, want debug.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if e.Session().State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, state is %s", want, e.Session().State())
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("program did not finish")
	}
}
