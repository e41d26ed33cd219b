package app

import (
	"context"
	"sort"

	"github.com/dshills/depurador/internal/config"
	"github.com/dshills/depurador/internal/logging"
	"github.com/dshills/depurador/internal/script"
	"github.com/dshills/depurador/internal/server"
)

// bootstrapper handles component initialization with proper cleanup on failure.
type bootstrapper struct {
	app       *Application
	opts      Options
	initOrder []string
}

// newBootstrapper creates a new bootstrapper for the application.
func newBootstrapper(app *Application, opts Options) *bootstrapper {
	return &bootstrapper{
		app:       app,
		opts:      opts,
		initOrder: make([]string, 0, 4),
	}
}

// bootstrap initializes all components in dependency order.
// On failure, it cleans up already-initialized components.
func (b *bootstrapper) bootstrap() error {
	steps := []func() error{
		b.initConfig,
		b.initLogger,
		b.initEngine,
		b.initServer,
		b.initSubscriptions,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.cleanup()
			return err
		}
	}
	return nil
}

// initConfig loads the layered configuration and applies flag overrides.
func (b *bootstrapper) initConfig() error {
	opts := []config.Option{config.WithWatcher(b.opts.Watch)}
	if b.opts.ConfigPath != "" {
		opts = append(opts, config.WithFile(b.opts.ConfigPath))
	}
	if b.opts.Environ != nil {
		opts = append(opts, config.WithEnviron(b.opts.Environ))
	}

	cfg := config.New(opts...)
	if err := cfg.Load(context.Background()); err != nil {
		cfg.Close()
		return &InitError{Component: "config", Err: err}
	}
	b.app.config = cfg
	b.initOrder = append(b.initOrder, "config")

	// Apply overrides in a stable order so errors are reproducible.
	paths := make([]string, 0, len(b.opts.Overrides))
	for path := range b.opts.Overrides {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := cfg.Set(path, b.opts.Overrides[path]); err != nil {
			return &InitError{Component: "config", Err: err}
		}
	}
	return nil
}

// initLogger builds the root logger; every line carries the session id.
func (b *bootstrapper) initLogger() error {
	lc := logging.DefaultConfig()
	lc.Level = logging.ParseLevel(b.app.config.Logging().Level)
	if b.opts.LogOutput != nil {
		lc.Output = b.opts.LogOutput
	}
	b.app.logger = logging.New(lc).WithField("session", b.app.id)
	b.app.config.SetLogger(b.app.logger)
	return nil
}

// initEngine creates the script engine from the engine section.
func (b *bootstrapper) initEngine() error {
	ec := b.app.config.Engine()
	engine, err := script.NewEngine(
		script.WithStopOnEntry(ec.StopOnEntry),
		script.WithSystemLibraries(ec.SystemLibraries),
		script.WithQueueSize(ec.QueueSize),
		script.WithLogger(b.app.logger),
	)
	if err != nil {
		return &InitError{Component: "engine", Err: err}
	}
	b.app.engine = engine
	b.initOrder = append(b.initOrder, "engine")
	return nil
}

// initServer creates the protocol server from the server section.
func (b *bootstrapper) initServer() error {
	sc, err := serverConfig(b.app.config.Server())
	if err != nil {
		return &InitError{Component: "server", Err: err}
	}
	b.app.server = server.New(b.app.engine, sc, b.app.logger)
	b.initOrder = append(b.initOrder, "server")
	return nil
}

// initSubscriptions hot-applies settings that can change while running.
func (b *bootstrapper) initSubscriptions() error {
	b.app.subs = subscribe(b.app.config, b.app.logger, b.app.server)
	return nil
}

// cleanup performs cleanup in reverse initialization order.
// Called when bootstrap fails partway through.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		switch b.initOrder[i] {
		case "config":
			b.app.config.Close()
		case "engine":
			_ = b.app.engine.Close()
		case "server":
			_ = b.app.server.Shutdown()
		}
	}
}

// serverConfig converts the config section into the server's settings.
func serverConfig(sc config.ServerConfig) (server.Config, error) {
	policy, err := server.ParseUnknownCommandPolicy(sc.UnknownCommands)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Host:            sc.Host,
		Port:            sc.Port,
		SendQueue:       sc.SendQueue,
		MaxLineBytes:    sc.MaxLineBytes,
		WriteTimeout:    sc.WriteTimeout,
		UnknownCommands: policy,
	}, nil
}
