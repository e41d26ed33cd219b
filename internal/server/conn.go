package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/dshills/depurador/internal/logging"
)

// Conn is one client connection with its own outbound queue.
type Conn struct {
	id     uint64
	nc     net.Conn
	remote string
	logger *logging.Logger

	writeTimeout time.Duration
	send         chan string
	hangup       chan struct{}
	done         chan struct{}
	writerDone   chan struct{}

	hangupOnce sync.Once
	closeOnce  sync.Once
}

func newConn(id uint64, nc net.Conn, queueSize int, writeTimeout time.Duration, logger *logging.Logger) *Conn {
	if queueSize <= 0 {
		queueSize = 256
	}
	remote := nc.RemoteAddr().String()
	return &Conn{
		id:           id,
		nc:           nc,
		remote:       remote,
		logger:       logger.WithFields(map[string]any{"conn": id, "remote": remote}),
		writeTimeout: writeTimeout,
		send:         make(chan string, queueSize),
		hangup:       make(chan struct{}),
		done:         make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr returns the client address.
func (c *Conn) RemoteAddr() string {
	return c.remote
}

// Send queues msg, waiting while the queue is full.
func (c *Conn) Send(ctx context.Context, msg string) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	case <-c.hangup:
		return ErrConnectionClosed
	default:
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- msg:
		return nil
	}
}

// TrySend queues msg without waiting. It reports whether msg was queued.
func (c *Conn) TrySend(msg string) bool {
	select {
	case <-c.done:
		return false
	case <-c.hangup:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hangup closes the connection once every queued message is written.
func (c *Conn) Hangup() {
	c.hangupOnce.Do(func() {
		close(c.hangup)
	})
}

// Close closes the connection immediately.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.nc.Close()
	})
}

// Done is closed when the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// writeLoop drains the send queue until the connection closes.
func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	defer c.Close()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if !c.write(msg) {
				return
			}
		case <-c.hangup:
			for {
				select {
				case msg := <-c.send:
					if !c.write(msg) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Conn) write(msg string) bool {
	if c.writeTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.nc.Write([]byte(msg)); err != nil {
		select {
		case <-c.done:
		default:
			c.logger.Warn("write failed: %v", err)
		}
		return false
	}
	return true
}
