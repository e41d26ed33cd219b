package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dshills/depurador/internal/debug"
	"github.com/dshills/depurador/internal/logging"
	lua "github.com/yuin/gopher-lua"
)

// maxDepth bounds stack walks.
const maxDepth = 1 << 16

// Engine runs one debuggee program and controls its execution.
type Engine struct {
	state       *State
	exec        *Executor
	bridge      *Bridge
	session     *debug.Session
	breakpoints *debug.Registry
	logger      *logging.Logger

	stopOnEntry     bool
	systemLibraries bool
	queueSize       int

	filesMu  sync.RWMutex
	files    map[debug.FileHash]*Program
	bySource map[string]*Program
	programs []*Program

	outputMu sync.RWMutex
	output   func(string)

	// builtins are the globals present before any program ran.
	builtins map[string]bool

	ctx     context.Context
	cancel  context.CancelFunc
	runDone chan struct{}

	// mu orders session transitions with the resume and stopped channels.
	mu          sync.Mutex
	launched    bool
	resume      chan struct{}
	stopped     chan struct{}
	done        chan struct{}
	runErr      error
	pausedDepth int

	// stepDepth is written under mu before resume is closed and read by the
	// program goroutine after it wakes.
	stepDepth int

	closeOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithStopOnEntry pauses before the first statement when enabled.
func WithStopOnEntry(enabled bool) Option {
	return func(e *Engine) {
		e.stopOnEntry = enabled
	}
}

// WithSystemLibraries exposes io and os to programs.
func WithSystemLibraries(enabled bool) Option {
	return func(e *Engine) {
		e.systemLibraries = enabled
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithQueueSize sets the executor queue size.
func WithQueueSize(n int) Option {
	return func(e *Engine) {
		e.queueSize = n
	}
}

// NewEngine creates an engine. Start must be called before use.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		bridge:      NewBridge(),
		session:     debug.NewSession(),
		breakpoints: debug.NewRegistry(),
		logger:      logging.Nop(),
		stopOnEntry: true,
		files:       make(map[debug.FileHash]*Program),
		bySource:    make(map[string]*Program),
		builtins:    make(map[string]bool),
		runDone:     make(chan struct{}),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithComponent("engine")

	state, err := NewState(
		WithPrint(e.emit),
		WithOSLibraries(e.systemLibraries),
	)
	if err != nil {
		return nil, fmt.Errorf("create lua state: %w", err)
	}
	e.state = state

	L := state.L
	L.SetGlobal(stepFunc, L.NewFunction(e.step))
	L.G.Global.ForEach(func(k, _ lua.LValue) {
		if s, ok := k.(lua.LString); ok {
			e.builtins[string(s)] = true
		}
	})

	e.exec = NewExecutor(L, e.queueSize)

	e.session.OnChange(func(old, new debug.State) {
		e.logger.Debug("session %s -> %s", old, new)
	})

	return e, nil
}

// Start runs the executor goroutine. Cancelling ctx aborts the program.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.state.L.SetContext(e.ctx)
	go func() {
		defer close(e.runDone)
		e.exec.Run(e.ctx)
	}()
}

// Session returns the stepping state machine.
func (e *Engine) Session() *debug.Session {
	return e.session
}

// Breakpoints returns the breakpoint registry consulted on every step.
func (e *Engine) Breakpoints() *debug.Registry {
	return e.breakpoints
}

// SetOutputFunc sets the callback receiving program output.
func (e *Engine) SetOutputFunc(fn func(string)) {
	e.outputMu.Lock()
	e.output = fn
	e.outputMu.Unlock()
}

func (e *Engine) emit(msg string) {
	e.outputMu.RLock()
	fn := e.output
	e.outputMu.RUnlock()

	if fn == nil {
		e.logger.Debug("output dropped: %s", msg)
		return
	}
	fn(msg)
}

// OpenFile implements debug.FileLookup.
func (e *Engine) OpenFile(hash debug.FileHash) (debug.OpenFile, bool) {
	e.filesMu.RLock()
	defer e.filesMu.RUnlock()

	p, ok := e.files[hash]
	if !ok {
		return debug.OpenFile{}, false
	}
	return p.OpenFile(), true
}

// Load instruments the file at path and adds it to the open file table.
// Loading an already open path returns the existing program.
func (e *Engine) Load(path string) (*Program, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	e.filesMu.Lock()
	defer e.filesMu.Unlock()

	if p, ok := e.bySource[abs]; ok {
		return p, nil
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read program: %w", err)
	}

	p, err := Instrument(len(e.programs), abs, src)
	if err != nil {
		return nil, err
	}
	e.programs = append(e.programs, p)
	e.files[p.Hash] = p
	e.bySource[p.Path] = p
	return p, nil
}

func (e *Engine) program(index int) *Program {
	e.filesMu.RLock()
	defer e.filesMu.RUnlock()
	if index < 0 || index >= len(e.programs) {
		return nil
	}
	return e.programs[index]
}

func (e *Engine) programBySource(source string) *Program {
	e.filesMu.RLock()
	defer e.filesMu.RUnlock()
	return e.bySource[source]
}

// Launch loads the program at path and starts running it.
// With stop on entry the call returns once the first statement is reached.
func (e *Engine) Launch(ctx context.Context, path string) error {
	if e.ctx == nil {
		return ErrNotStarted
	}

	e.mu.Lock()
	if e.launched {
		e.mu.Unlock()
		return ErrAlreadyLaunched
	}
	e.launched = true
	e.mu.Unlock()

	p, err := e.Load(path)
	if err != nil {
		e.finish(err)
		return err
	}

	e.mu.Lock()
	if err := e.session.Launch(e.stopOnEntry); err != nil {
		e.mu.Unlock()
		return err
	}
	stopped := e.stopped
	e.mu.Unlock()

	e.logger.Info("launching %s (%d statements)", p.Path, len(p.Statements))

	if err := e.exec.ExecuteAsync(func(L *lua.LState) error {
		e.run(L, p)
		return nil
	}); err != nil {
		e.finish(err)
		return err
	}

	if !e.stopOnEntry {
		return nil
	}
	select {
	case <-stopped:
		return e.terminalError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the instrumented chunk on the executor goroutine.
func (e *Engine) run(L *lua.LState, p *Program) {
	fn, err := L.Load(strings.NewReader(p.Source), p.Path)
	if err == nil {
		L.Push(fn)
		err = L.PCall(0, 0, nil)
	}
	e.finish(err)
}

// finish records the program result and releases anyone waiting on it.
func (e *Engine) finish(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-e.done:
		return
	default:
	}

	e.runErr = err
	e.session.Terminate()
	closeChan(e.stopped)
	close(e.done)

	switch {
	case err == nil:
		e.logger.Info("program finished")
	case errors.Is(err, context.Canceled), e.ctx != nil && e.ctx.Err() != nil:
		e.logger.Debug("program aborted: %v", err)
	default:
		e.logger.Warn("program failed: %s", errorMessage(err))
	}
}

// Done is closed when the program has finished.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Err returns the error the program ended with, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runErr
}

func (e *Engine) terminalError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.State() == debug.StateTerminated && e.runErr != nil {
		return fmt.Errorf("program failed: %s", errorMessage(e.runErr))
	}
	return nil
}

// step is called by instrumented code before each line.
func (e *Engine) step(L *lua.LState) int {
	p := e.program(L.CheckInt(1))
	line := L.CheckInt(2)
	if p == nil {
		return 0
	}

	atBreakpoint := e.breakpoints.Has(p.Hash, line)
	depth := callDepth(L)
	if !e.shouldStop(depth, atBreakpoint) {
		return 0
	}

	e.pause(depth, atBreakpoint)
	return 0
}

func (e *Engine) shouldStop(depth int, atBreakpoint bool) bool {
	switch e.session.State() {
	case debug.StateSteppingIn:
		return true
	case debug.StateSteppingOver:
		return atBreakpoint || depth <= e.stepDepth
	case debug.StateSteppingOut:
		return atBreakpoint || depth < e.stepDepth
	case debug.StateRunning:
		return atBreakpoint
	}
	return false
}

// pause parks the program and serves inspection calls until resumed.
func (e *Engine) pause(depth int, atBreakpoint bool) {
	e.mu.Lock()
	if err := e.session.Pause(atBreakpoint); err != nil {
		e.mu.Unlock()
		e.logger.Warn("pause rejected: %v", err)
		return
	}
	e.pausedDepth = depth
	resume := make(chan struct{})
	e.resume = resume
	closeChan(e.stopped)
	e.mu.Unlock()

	if err := e.exec.ServeUntil(e.ctx, resume); err != nil {
		// Cancellation unwinds the program through the VM context.
		e.logger.Debug("pause interrupted: %v", err)
	}
}

// StepIn runs to the next statement, entering calls.
func (e *Engine) StepIn(ctx context.Context) error {
	return e.resumeWith(ctx, debug.CommandStepIn)
}

// StepOver runs to the next statement of the current or an outer scope.
func (e *Engine) StepOver(ctx context.Context) error {
	return e.resumeWith(ctx, debug.CommandStepOver)
}

// StepOut runs until the current scope returns.
func (e *Engine) StepOut(ctx context.Context) error {
	return e.resumeWith(ctx, debug.CommandStepOut)
}

// Continue runs until a breakpoint or the end of the program.
func (e *Engine) Continue(ctx context.Context) error {
	return e.resumeWith(ctx, debug.CommandContinue)
}

func (e *Engine) resumeWith(ctx context.Context, cmd debug.Command) error {
	e.mu.Lock()
	if _, err := e.session.Begin(cmd); err != nil {
		e.mu.Unlock()
		return err
	}
	e.stepDepth = e.pausedDepth
	stopped := make(chan struct{})
	e.stopped = stopped
	close(e.resume)
	e.mu.Unlock()

	select {
	case <-stopped:
		return e.terminalError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts the program and releases the interpreter.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
			<-e.runDone
		}
		e.exec.Close()
		e.finish(context.Canceled)
		err = e.state.Close()
	})
	return err
}

// callDepth counts the active call frames.
func callDepth(L *lua.LState) int {
	depth := 0
	for depth < maxDepth {
		if _, ok := L.GetStack(depth); !ok {
			break
		}
		depth++
	}
	return depth
}

func closeChan(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// errorMessage returns the Lua error text without the Go wrapping.
func errorMessage(err error) string {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) && apiErr.Object != nil {
		return apiErr.Object.String()
	}
	return err.Error()
}
