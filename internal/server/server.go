package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/dshills/depurador/internal/logging"
)

// DefaultPort is the protocol's well-known port.
const DefaultPort = 7777

// State is the server lifecycle state.
type State int

const (
	// StateStopped means no listener is open.
	StateStopped State = iota
	// StateListening means connections are being accepted.
	StateListening
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	default:
		return "unknown"
	}
}

// Config configures the server.
type Config struct {
	// Host is the listen address; empty listens on all interfaces.
	Host string
	// Port is the TCP port. Zero picks a free port.
	Port int
	// SendQueue is the per-connection outbound queue length.
	SendQueue int
	// MaxLineBytes bounds a single command line.
	MaxLineBytes int
	// WriteTimeout bounds a single socket write.
	WriteTimeout time.Duration
	// UnknownCommands selects how unrecognized commands are answered.
	UnknownCommands UnknownCommandPolicy
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Port:         DefaultPort,
		SendQueue:    256,
		MaxLineBytes: 1 << 20,
		WriteTimeout: 10 * time.Second,
	}
}

// Address returns the listen address.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server accepts debugger clients and dispatches their commands.
type Server struct {
	cfg        Config
	engine     Engine
	dispatcher *Dispatcher
	conns      *Manager
	logger     *logging.Logger

	mu       sync.Mutex
	state    State
	listener net.Listener
	cancel   context.CancelFunc
	readers  sync.WaitGroup
}

// New creates a stopped server for engine.
func New(engine Engine, cfg Config, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultConfig().MaxLineBytes
	}

	s := &Server{
		cfg:        cfg,
		engine:     engine,
		dispatcher: NewDispatcher(engine, logger),
		conns:      NewManager(cfg.SendQueue, cfg.WriteTimeout, logger),
		logger:     logger.WithComponent("server"),
	}
	s.dispatcher.SetUnknownCommandPolicy(cfg.UnknownCommands)
	return s
}

// Start binds the engine output to Broadcast and starts listening.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateListening {
		return ErrServerRunning
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address(), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.listener = ln
	s.cancel = cancel
	s.state = StateListening
	s.conns.Open()
	s.engine.SetOutputFunc(func(msg string) { s.Broadcast(msg) })

	s.readers.Add(1)
	go func() {
		defer s.readers.Done()
		s.acceptLoop(ctx, ln)
	}()

	s.logger.Info("listening on %s", ln.Addr())
	return nil
}

// Addr returns the listener address, or nil when stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// State returns the lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connections returns the number of connected clients.
func (s *Server) Connections() int {
	return s.conns.Len()
}

// Broadcast sends program output to every client.
func (s *Server) Broadcast(msg string) {
	n := s.conns.Broadcast(msg)
	s.logger.Debug("output delivered to %d clients", n)
}

// SetUnknownCommandPolicy changes how unrecognized commands are answered.
func (s *Server) SetUnknownCommandPolicy(p UnknownCommandPolicy) {
	s.dispatcher.SetUnknownCommandPolicy(p)
	s.logger.Info("unknown command policy set to %s", p)
}

// UnknownCommandPolicy returns how unrecognized commands are answered.
func (s *Server) UnknownCommandPolicy() UnknownCommandPolicy {
	return s.dispatcher.UnknownCommandPolicy()
}

// Shutdown says goodbye to every client, closes all sockets and the
// listener, and waits for connection goroutines. It is idempotent.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	ln := s.listener
	s.listener = nil
	s.cancel()
	s.mu.Unlock()

	s.engine.SetOutputFunc(nil)

	var err error
	if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = fmt.Errorf("close listener: %w", cerr)
	}
	s.conns.CloseAll()
	s.readers.Wait()

	s.logger.Info("stopped")
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		c := s.conns.Add(nc)
		if c == nil {
			return
		}

		s.readers.Add(1)
		go func() {
			defer s.readers.Done()
			s.serve(ctx, c)
		}()
	}
}

// serve reads and dispatches the commands of one connection in order.
func (s *Server) serve(ctx context.Context, c *Conn) {
	defer s.conns.Remove(c.ID())

	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 0, 4096), s.cfg.MaxLineBytes)

	for scanner.Scan() {
		cmd, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}

		reply := s.dispatcher.DispatchTo(ctx, cmd, func(text string) {
			_ = c.Send(ctx, text)
		})
		if text := reply.String(); text != "" {
			if err := c.Send(ctx, text); err != nil {
				return
			}
		}
		if reply.Close {
			c.Hangup()
			<-c.Done()
			return
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-c.Done():
		default:
			c.logger.Warn("read failed: %v", err)
		}
	}
}
