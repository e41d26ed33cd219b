package server

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/depurador/internal/debug"
)

var errUndefined = errors.New("undefined variable: x")

// fakeEngine is an in-memory Engine. Stepping in pushes a "soma" frame
// onto the stack.
type fakeEngine struct {
	mu      sync.Mutex
	files   map[debug.FileHash]debug.OpenFile
	bps     *debug.Registry
	session *debug.Session
	frames  []debug.Frame
	vars    []debug.Variable
	output  func(string)

	// block, when set, holds StepOver until it is closed.
	block   chan struct{}
	entered chan struct{}
	stepErr error
}

const fakePath = "/tmp/programa.lua"

var fakeLines = []string{
	"local function soma(a, b)",
	"  return a + b",
	"end",
	"print(soma(1, 2))",
}

func newFakeEngine() *fakeEngine {
	hash := debug.HashPath(fakePath)
	e := &fakeEngine{
		files: map[debug.FileHash]debug.OpenFile{
			hash: {Hash: hash, Path: fakePath, Lines: fakeLines},
		},
		bps:     debug.NewRegistry(),
		session: debug.NewSession(),
		frames: []debug.Frame{
			{Signature: "<global>"},
			{
				Statements: []debug.Statement{{File: hash, Line: 1}, {File: hash, Line: 4}},
				Current:    1,
				Signature:  "<principal>",
			},
		},
		vars: []debug.Variable{{Name: "a", Type: "number", Value: "1"}},
	}
	_ = e.session.Launch(true)
	_ = e.session.Pause(false)
	return e
}

func (e *fakeEngine) OpenFile(hash debug.FileHash) (debug.OpenFile, bool) {
	f, ok := e.files[hash]
	return f, ok
}

func (e *fakeEngine) Breakpoints() *debug.Registry {
	return e.bps
}

func (e *fakeEngine) ExecuteLine(_ context.Context, src string) ([]any, error) {
	switch src {
	case "2 + 2":
		return []any{int64(4)}, nil
	case "x = 1":
		return nil, nil
	case "erro()":
		return nil, errors.New(`<string>:1: falhou & parou`)
	}
	return nil, errors.New("attempt to perform arithmetic on a nil value")
}

func (e *fakeEngine) ReadVariable(_ context.Context, name string) (any, error) {
	if name == "a" {
		return int64(1), nil
	}
	return nil, errUndefined
}

func (e *fakeEngine) Variables(context.Context) ([]debug.Variable, error) {
	return e.vars, nil
}

func (e *fakeEngine) ScopeStack(context.Context) ([]debug.Frame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]debug.Frame, len(e.frames))
	copy(out, e.frames)
	return out, nil
}

func (e *fakeEngine) StepIn(context.Context) error {
	if _, err := e.session.Begin(debug.CommandStepIn); err != nil {
		return err
	}
	e.mu.Lock()
	hash := debug.HashPath(fakePath)
	e.frames = append(e.frames, debug.Frame{
		Statements: []debug.Statement{{File: hash, Line: 2}},
		Signature:  "soma",
	})
	e.mu.Unlock()
	return e.session.Pause(false)
}

func (e *fakeEngine) StepOver(ctx context.Context) error {
	if _, err := e.session.Begin(debug.CommandStepOver); err != nil {
		return err
	}
	if e.entered != nil {
		close(e.entered)
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := e.session.Pause(false); err != nil {
		return err
	}
	return e.stepErr
}

func (e *fakeEngine) StepOut(context.Context) error {
	if _, err := e.session.Begin(debug.CommandStepOut); err != nil {
		return err
	}
	return e.session.Pause(false)
}

func (e *fakeEngine) Continue(context.Context) error {
	if _, err := e.session.Begin(debug.CommandContinue); err != nil {
		return err
	}
	e.session.Terminate()
	return nil
}

func (e *fakeEngine) SetOutputFunc(fn func(string)) {
	e.mu.Lock()
	e.output = fn
	e.mu.Unlock()
}

func (e *fakeEngine) emit(msg string) {
	e.mu.Lock()
	fn := e.output
	e.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}
