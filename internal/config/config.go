package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/depurador/internal/logging"
)

// DefaultDebounce is how long config file changes must settle before a reload.
const DefaultDebounce = 100 * time.Millisecond

// Config provides unified access to the depurador configuration.
// It manages loading, validation, live reloading, and change notification.
type Config struct {
	mu sync.Mutex

	layers   *layerSet
	notifier *notifier
	watcher  *Watcher
	logger   atomic.Pointer[logging.Logger]

	path     string
	environ  []string
	watch    bool
	debounce time.Duration
	loaded   bool
}

// Option configures a Config instance.
type Option func(*Config)

// WithFile sets the TOML or YAML config file. A missing file is not an error.
func WithFile(path string) Option {
	return func(c *Config) {
		c.path = path
	}
}

// WithWatcher enables file watching for live reload.
func WithWatcher(enable bool) Option {
	return func(c *Config) {
		c.watch = enable
	}
}

// WithDebounce sets the quiet period before a changed file is reloaded.
func WithDebounce(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithEnviron replaces os.Environ as the source of the environment layer.
func WithEnviron(environ []string) Option {
	return func(c *Config) {
		c.environ = environ
	}
}

// WithLogger sets the logger used for reload and watcher reports.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Config) {
		c.SetLogger(logger)
	}
}

// New creates a new Config instance with the given options.
func New(opts ...Option) *Config {
	c := &Config{
		layers:   newLayerSet(),
		notifier: newNotifier(),
		debounce: DefaultDebounce,
	}
	c.SetLogger(logging.Nop())
	for _, opt := range opts {
		opt(c)
	}
	if c.environ == nil {
		c.environ = os.Environ()
	}
	return c
}

// SetLogger replaces the logger used for reload and watcher reports.
func (c *Config) SetLogger(logger *logging.Logger) {
	if logger != nil {
		c.logger.Store(logger.WithComponent("config"))
	}
}

func (c *Config) log() *logging.Logger {
	return c.logger.Load()
}

// Load loads configuration from all sources and validates the result.
// With watching enabled it also starts the file watcher.
func (c *Config) Load(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.layers.put(&Layer{Source: SourceBuiltin, Data: defaultConfig()})

	if c.path != "" {
		data, err := LoadFile(c.path)
		if err != nil {
			return err
		}
		if data != nil {
			c.layers.put(&Layer{Source: SourceFile, Path: c.path, Data: data})
			c.log().Debug("loaded config file %s", c.path)
		} else {
			c.log().Debug("config file %s not found, using defaults", c.path)
		}
	}

	if env := LoadEnv(c.environ); len(env) > 0 {
		c.layers.put(&Layer{Source: SourceEnv, Data: env})
	}

	if err := validate(c.layers.merge()); err != nil {
		return err
	}

	if c.watch && c.path != "" && c.watcher == nil {
		w, err := NewWatcher(c.path, c.debounce, c.handleFileChange)
		if err != nil {
			return fmt.Errorf("watching %s: %w", c.path, err)
		}
		w.OnError(func(err error) {
			c.log().Warn("config watcher: %v", err)
		})
		c.watcher = w
	}
	c.loaded = true
	return nil
}

// Close stops the file watcher.
func (c *Config) Close() {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()

	if w != nil {
		w.Stop()
	}
}

// Path returns the config file path, if any.
func (c *Config) Path() string {
	return c.path
}

// Sources lists the loaded layers, lowest priority first.
func (c *Config) Sources() []Source {
	return c.layers.sources()
}

// Get returns the value at the given path from the merged configuration.
func (c *Config) Get(path string) (any, bool) {
	return getPath(c.layers.merge(), path)
}

// Merged returns the fully merged configuration.
func (c *Config) Merged() map[string]any {
	return c.layers.merge()
}

// GetString returns a string value at the given path.
func (c *Config) GetString(path string) (string, error) {
	v, ok := c.Get(path)
	if !ok {
		return "", ErrSettingNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
	}
	return s, nil
}

// GetInt returns an integer value at the given path.
func (c *Config) GetInt(path string) (int, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	return toInt(path, v)
}

// GetBool returns a boolean value at the given path.
func (c *Config) GetBool(path string) (bool, error) {
	v, ok := c.Get(path)
	if !ok {
		return false, ErrSettingNotFound
	}
	b, ok := v.(bool)
	if !ok {
		return false, &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
	}
	return b, nil
}

// GetDuration returns a duration at the given path. Strings use
// time.ParseDuration syntax; bare numbers are seconds.
func (c *Config) GetDuration(path string) (time.Duration, error) {
	v, ok := c.Get(path)
	if !ok {
		return 0, ErrSettingNotFound
	}
	return toDuration(path, v)
}

// Set sets a value in the command-line layer and notifies observers
// of any effective change.
func (c *Config) Set(path string, value any) error {
	c.mu.Lock()

	before := c.layers.merge()
	args := c.layers.get(SourceArgs)
	data := make(map[string]any)
	if args != nil {
		data = cloneMap(args.Data)
	}
	if err := setPath(data, path, value); err != nil {
		c.mu.Unlock()
		return err
	}
	c.layers.put(&Layer{Source: SourceArgs, Data: data})

	after := c.layers.merge()
	if c.loaded {
		if err := validate(after); err != nil {
			c.restore(SourceArgs, args)
			c.mu.Unlock()
			return err
		}
	}
	c.mu.Unlock()

	c.notifier.deliver(diff(before, after, SourceArgs))
	return nil
}

// Reload re-reads the config file. An invalid file leaves the previous
// configuration in effect and returns the error.
func (c *Config) Reload() error {
	c.mu.Lock()

	if c.path == "" {
		c.mu.Unlock()
		return nil
	}
	data, err := LoadFile(c.path)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	before := c.layers.merge()
	previous := c.layers.get(SourceFile)
	if data == nil {
		c.layers.remove(SourceFile)
	} else {
		c.layers.put(&Layer{Source: SourceFile, Path: c.path, Data: data})
	}
	after := c.layers.merge()
	if err := validate(after); err != nil {
		c.restore(SourceFile, previous)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	c.notifier.deliver(diff(before, after, SourceFile))
	return nil
}

// restore puts back the previous layer for source, or removes it.
func (c *Config) restore(source Source, previous *Layer) {
	if previous == nil {
		c.layers.remove(source)
		return
	}
	c.layers.put(previous)
}

// Subscribe registers an observer for all configuration changes.
func (c *Config) Subscribe(observer Observer) *Subscription {
	return c.notifier.subscribe("", observer)
}

// SubscribePath registers an observer for changes at or below path.
func (c *Config) SubscribePath(path string, observer Observer) *Subscription {
	return c.notifier.subscribe(path, observer)
}

// handleFileChange handles file change events from the watcher.
func (c *Config) handleFileChange(event Event) {
	c.log().Info("config file %s: %s", event.Op, event.Path)
	if err := c.Reload(); err != nil {
		c.log().Error("reloading config: %v", err)
	}
}

// defaultConfig returns the default configuration values.
func defaultConfig() map[string]any {
	return map[string]any{
		"server": map[string]any{
			"host":             "",
			"port":             7777,
			"unknown_commands": "report",
			"send_queue":       256,
			"max_line_bytes":   1 << 20,
			"write_timeout":    "10s",
		},
		"engine": map[string]any{
			"stop_on_entry":    true,
			"system_libraries": false,
			"queue_size":       64,
		},
		"logging": map[string]any{
			"level": "info",
		},
	}
}

func toInt(path string, v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case uint64:
		return int(val), nil
	case float64:
		if val == float64(int(val)) {
			return int(val), nil
		}
	}
	return 0, &TypeError{Path: path, Expected: "int", Actual: typeName(v)}
}

func toDuration(path string, v any) (time.Duration, error) {
	switch val := v.(type) {
	case time.Duration:
		return val, nil
	case string:
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, &ValidationError{Path: path, Value: val, Message: "invalid duration"}
		}
		return d, nil
	case int, int64, float64:
		n, err := toInt(path, val)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Second, nil
	}
	return 0, &TypeError{Path: path, Expected: "duration", Actual: typeName(v)}
}

// typeName returns the type name for error messages.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case int, int64, uint64:
		return "int"
	case float64:
		return "float64"
	case bool:
		return "bool"
	case []any:
		return "[]any"
	case map[string]any:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}
