package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// call is a Lua operation queued for the executor goroutine.
type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Executor serializes all Lua operations through a single goroutine.
//
// The program itself runs as one long call. When it pauses, the step function
// calls ServeUntil, which keeps dispatching queued calls from inside the
// suspended program until it is told to resume.
type Executor struct {
	L      *lua.LState
	queue  chan *call
	closed atomic.Bool
	done   chan struct{}

	closeOnce sync.Once
}

// NewExecutor creates an Executor for L.
func NewExecutor(L *lua.LState, queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Executor{
		L:     L,
		queue: make(chan *call, queueSize),
		done:  make(chan struct{}),
	}
}

// Run processes queued calls until ctx is cancelled or Close is called.
// It must run on the goroutine that owns the Lua state.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.drainQueue(ctx.Err())
			return
		case <-e.done:
			e.drainQueue(ErrExecutorClosed)
			return
		case c := <-e.queue:
			e.dispatch(c)
		}
	}
}

// ServeUntil dispatches queued calls until stop is closed.
// It is only valid from inside a call already running on the executor.
func (e *Executor) ServeUntil(ctx context.Context, stop <-chan struct{}) error {
	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return ErrExecutorClosed
		case c := <-e.queue:
			e.dispatch(c)
		}
	}
}

func (e *Executor) dispatch(c *call) {
	err := e.executeCall(c)
	select {
	case c.result <- err:
	default:
	}
	close(c.result)
}

// executeCall runs a single operation with panic recovery.
func (e *Executor) executeCall(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			case string:
				err = errors.New(v)
			default:
				err = fmt.Errorf("lua panic: %v", v)
			}
		}
	}()
	return c.fn(e.L)
}

func (e *Executor) drainQueue(err error) {
	for {
		select {
		case c := <-e.queue:
			select {
			case c.result <- err:
			default:
			}
			close(c.result)
		default:
			return
		}
	}
}

// Execute runs fn on the executor goroutine and waits for it.
func (e *Executor) Execute(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- c:
	}

	select {
	case <-ctx.Done():
		// Already queued; it still runs but nobody waits for it.
		return ctx.Err()
	case err, ok := <-c.result:
		if !ok {
			return ErrExecutorClosed
		}
		return err
	}
}

// ExecuteAsync queues fn without waiting for completion.
func (e *Executor) ExecuteAsync(fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}

	select {
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the executor. Queued calls fail with ErrExecutorClosed.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// IsClosed reports whether Close has been called.
func (e *Executor) IsClosed() bool {
	return e.closed.Load()
}
