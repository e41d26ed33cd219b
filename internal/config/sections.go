package config

import (
	"errors"
	"time"

	"github.com/dshills/depurador/internal/logging"
)

// Section accessor methods return snapshot structs. Mutating the returned
// struct does not modify the underlying configuration.

// ServerConfig holds the TCP protocol server settings.
type ServerConfig struct {
	// Host is the listen address; empty listens on all interfaces.
	Host string
	// Port is the TCP port (default 7777).
	Port int
	// UnknownCommands is "report" or "ignore".
	UnknownCommands string
	// SendQueue is the per-connection outbound queue length.
	SendQueue int
	// MaxLineBytes bounds a single command line.
	MaxLineBytes int
	// WriteTimeout bounds a single socket write.
	WriteTimeout time.Duration
}

// EngineConfig holds the script engine settings.
type EngineConfig struct {
	// StopOnEntry pauses before the first statement of the program.
	StopOnEntry bool
	// SystemLibraries opens the io and os libraries to the program.
	SystemLibraries bool
	// QueueSize bounds the executor's pending calls.
	QueueSize int
}

// LoggingConfig holds the logger settings.
type LoggingConfig struct {
	Level string
}

// Server returns the server settings.
func (c *Config) Server() ServerConfig {
	return ServerConfig{
		Host:            c.getStringOr("server.host", ""),
		Port:            c.getIntOr("server.port", 7777),
		UnknownCommands: c.getStringOr("server.unknown_commands", "report"),
		SendQueue:       c.getIntOr("server.send_queue", 256),
		MaxLineBytes:    c.getIntOr("server.max_line_bytes", 1<<20),
		WriteTimeout:    c.getDurationOr("server.write_timeout", 10*time.Second),
	}
}

// Engine returns the script engine settings.
func (c *Config) Engine() EngineConfig {
	return EngineConfig{
		StopOnEntry:     c.getBoolOr("engine.stop_on_entry", true),
		SystemLibraries: c.getBoolOr("engine.system_libraries", false),
		QueueSize:       c.getIntOr("engine.queue_size", 64),
	}
}

// Logging returns the logger settings.
func (c *Config) Logging() LoggingConfig {
	return LoggingConfig{
		Level: c.getStringOr("logging.level", "info"),
	}
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	return validate(c.layers.merge())
}

// validate checks every known setting present in merged and joins the failures.
func validate(merged map[string]any) error {
	var errs []error
	check := func(path string, fn func(v any) error) {
		v, ok := getPath(merged, path)
		if !ok {
			return
		}
		if err := fn(v); err != nil {
			errs = append(errs, err)
		}
	}
	intIn := func(path string, lo, hi int) func(any) error {
		return func(v any) error {
			n, err := toInt(path, v)
			if err != nil {
				return err
			}
			if n < lo || n > hi {
				return &ValidationError{Path: path, Value: v, Message: "out of range"}
			}
			return nil
		}
	}
	isBool := func(path string) func(any) error {
		return func(v any) error {
			if _, ok := v.(bool); !ok {
				return &TypeError{Path: path, Expected: "bool", Actual: typeName(v)}
			}
			return nil
		}
	}
	isString := func(path string) func(any) error {
		return func(v any) error {
			if _, ok := v.(string); !ok {
				return &TypeError{Path: path, Expected: "string", Actual: typeName(v)}
			}
			return nil
		}
	}

	check("server.host", isString("server.host"))
	check("server.port", intIn("server.port", 0, 65535))
	check("server.unknown_commands", func(v any) error {
		s, ok := v.(string)
		if !ok || (s != "report" && s != "ignore") {
			return &ValidationError{Path: "server.unknown_commands", Value: v, Message: `must be "report" or "ignore"`}
		}
		return nil
	})
	check("server.send_queue", intIn("server.send_queue", 1, 1<<20))
	check("server.max_line_bytes", intIn("server.max_line_bytes", 64, 1<<30))
	check("server.write_timeout", func(v any) error {
		d, err := toDuration("server.write_timeout", v)
		if err != nil {
			return err
		}
		if d <= 0 {
			return &ValidationError{Path: "server.write_timeout", Value: v, Message: "must be positive"}
		}
		return nil
	})
	check("engine.stop_on_entry", isBool("engine.stop_on_entry"))
	check("engine.system_libraries", isBool("engine.system_libraries"))
	check("engine.queue_size", intIn("engine.queue_size", 1, 1<<20))
	check("logging.level", func(v any) error {
		s, ok := v.(string)
		if !ok || !logging.ValidLevel(s) {
			return &ValidationError{Path: "logging.level", Value: v, Message: "unknown level"}
		}
		return nil
	})

	return errors.Join(errs...)
}

func (c *Config) getStringOr(path, def string) string {
	if s, err := c.GetString(path); err == nil {
		return s
	}
	return def
}

func (c *Config) getIntOr(path string, def int) int {
	if n, err := c.GetInt(path); err == nil {
		return n
	}
	return def
}

func (c *Config) getBoolOr(path string, def bool) bool {
	if b, err := c.GetBool(path); err == nil {
		return b
	}
	return def
}

func (c *Config) getDurationOr(path string, def time.Duration) time.Duration {
	if d, err := c.GetDuration(path); err == nil {
		return d
	}
	return def
}
