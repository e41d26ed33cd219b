// Package app wires the depurador components together and manages the
// process lifecycle: configuration, logging, the script engine, and the
// protocol server.
package app

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/depurador/internal/config"
	"github.com/dshills/depurador/internal/logging"
	"github.com/dshills/depurador/internal/script"
	"github.com/dshills/depurador/internal/server"
)

// shutdownTimeout bounds how long Run waits for the server to drain.
const shutdownTimeout = 5 * time.Second

// Application is the central coordinator for the debugger host.
type Application struct {
	mu sync.Mutex

	id     string
	opts   Options
	config *config.Config
	logger *logging.Logger
	engine *script.Engine
	server *server.Server
	subs   []*config.Subscription

	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// Options configures the application.
type Options struct {
	// ConfigPath is the TOML or YAML configuration file.
	ConfigPath string

	// Program is the script to debug.
	Program string

	// Overrides are command-line settings keyed by config path,
	// such as "server.port" or "engine.stop_on_entry".
	Overrides map[string]any

	// Watch enables live reload of the configuration file.
	Watch bool

	// LogOutput replaces stderr as the log destination.
	LogOutput io.Writer

	// Environ replaces os.Environ for the environment config layer.
	Environ []string
}

// New creates a new Application with the given options.
func New(opts Options) (*Application, error) {
	app := &Application{
		id:   uuid.New().String(),
		opts: opts,
		done: make(chan struct{}),
	}
	if err := newBootstrapper(app, opts).bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// Run starts the server, launches the program, and blocks until ctx is
// cancelled or Shutdown is called. The server keeps serving after the
// program ends so clients can inspect its final state.
func (app *Application) Run(ctx context.Context) error {
	if app.opts.Program == "" {
		return ErrNoProgram
	}
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer app.Shutdown()

	app.engine.Start(ctx)
	if err := app.server.Start(ctx); err != nil {
		return &ComponentError{Component: "server", Action: "start", Err: err}
	}

	if err := app.engine.Launch(ctx, app.opts.Program); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return &ComponentError{Component: "engine", Action: "launch", Err: err}
	}

	go app.watchProgram()

	select {
	case <-ctx.Done():
		app.logger.Info("interrupted: %v", ctx.Err())
	case <-app.done:
	}
	return nil
}

// watchProgram logs how the program ended.
func (app *Application) watchProgram() {
	select {
	case <-app.engine.Done():
	case <-app.done:
		return
	}
	if err := app.engine.Err(); err != nil && !errors.Is(err, context.Canceled) {
		app.logger.Warn("program ended with error: %v", err)
		return
	}
	app.logger.Info("program finished")
}

// Shutdown stops the server, the engine, and the config watcher.
// It is safe to call more than once.
func (app *Application) Shutdown() {
	app.stopOnce.Do(func() {
		close(app.done)
		app.shutdown()
	})
}

// shutdown performs cleanup in reverse initialization order.
func (app *Application) shutdown() {
	app.mu.Lock()
	subs := app.subs
	app.subs = nil
	app.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		if err := app.server.Shutdown(); err != nil {
			app.logger.Warn("server shutdown: %v", err)
		}
	}()
	select {
	case <-finished:
	case <-time.After(shutdownTimeout):
		app.logger.Warn("server shutdown timed out after %s", shutdownTimeout)
	}

	if err := app.engine.Close(); err != nil {
		app.logger.Debug("engine close: %v", err)
	}
	app.config.Close()
	app.logger.Info("session ended")
}

// IsRunning returns true once Run has started.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// ID returns the session identifier attached to every log line.
func (app *Application) ID() string {
	return app.id
}

// Config returns the configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

// Logger returns the root logger.
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// Engine returns the script engine.
func (app *Application) Engine() *script.Engine {
	return app.engine
}

// Server returns the protocol server.
func (app *Application) Server() *server.Server {
	return app.server
}

// Addr returns the server's listen address, or nil before Run.
func (app *Application) Addr() net.Addr {
	return app.server.Addr()
}
