package server

import (
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/depurador/internal/logging"
)

// Frame texts written outside command replies.
const (
	outputFrame   = "Enviando mensagem de saída\n--- mensagem-saida ---\n"
	shutdownFrame = "--- finalizando ---\n"
)

// Manager tracks the open connections.
type Manager struct {
	mu     sync.RWMutex
	conns  map[uint64]*Conn
	closed bool

	nextID  atomic.Uint64
	writers sync.WaitGroup

	queueSize    int
	writeTimeout time.Duration
	logger       *logging.Logger
}

// NewManager creates a connection manager.
func NewManager(queueSize int, writeTimeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		conns:        make(map[uint64]*Conn),
		queueSize:    queueSize,
		writeTimeout: writeTimeout,
		logger:       logger.WithComponent("conn"),
	}
}

// Add registers nc under a fresh ID and starts its writer.
// It returns nil, closing nc, when the manager has been closed.
func (m *Manager) Add(nc net.Conn) *Conn {
	c := newConn(m.nextID.Add(1), nc, m.queueSize, m.writeTimeout, m.logger)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = nc.Close()
		return nil
	}
	m.conns[c.id] = c
	m.writers.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.writers.Done()
		c.writeLoop()
	}()

	c.logger.Info("client connected")
	return c
}

// Remove deregisters and closes the connection with id.
func (m *Manager) Remove(id uint64) {
	m.mu.Lock()
	c, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()

	if ok {
		c.Close()
		c.logger.Info("client disconnected")
	}
}

// Get returns the connection with id.
func (m *Manager) Get(id uint64) (*Conn, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	return c, ok
}

// Len returns the number of registered connections.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Broadcast sends program output to every connection and returns how many
// accepted it. Full queues drop the message.
func (m *Manager) Broadcast(msg string) int {
	frame := outputFrame + msg + "\n"

	delivered := 0
	for _, c := range m.snapshot() {
		if c.TrySend(frame) {
			delivered++
			continue
		}
		c.logger.Warn("send queue full, output dropped")
	}
	return delivered
}

// Open allows new connections after CloseAll.
func (m *Manager) Open() {
	m.mu.Lock()
	m.closed = false
	m.mu.Unlock()
}

// CloseAll sends the shutdown frame to every connection, hangs them up and
// waits for their writers to finish.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	conns := make([]*Conn, 0, len(m.conns))
	for id, c := range m.conns {
		conns = append(conns, c)
		delete(m.conns, id)
	}
	m.mu.Unlock()

	for _, c := range conns {
		if !c.TrySend(shutdownFrame) {
			c.logger.Warn("send queue full, closing without shutdown frame")
		}
		c.Hangup()
	}
	m.writers.Wait()
}

// snapshot returns the connections ordered by ID.
func (m *Manager) snapshot() []*Conn {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].id < conns[j].id })
	return conns
}
