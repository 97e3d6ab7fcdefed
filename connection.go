/*
Package redkv: client connection management.

This file provides the Connection type and its lifecycle: TCP wrapping,
state tracking, and the growable read buffer that lets the pure Parse
function (protocol.go) sit behind a real, partial-read-prone net.Conn.

Connection Lifecycle:
1. Connection creation and initialization (StateNew)
2. Active command processing (StateActive)
3. Idle waiting between commands (StateIdle)
4. Graceful termination and cleanup (StateClosed)

Thread Safety:
The Connection type is designed for concurrent access with proper
synchronization: atomic state, a mutex around lastUsed, and sync.Once
for cleanup. The read buffer itself is only ever touched by the single
goroutine running the connection's command loop, so it needs no lock.
*/
package redkv

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Connection represents a client connection to the server.
type Connection struct {
	id        string             // unique per-connection identity, used in shutdown errors
	conn      net.Conn           // underlying network connection
	writer    *bufio.Writer      // buffered writer for response batching
	server    *Server            // parent server reference
	state     atomic.Int32       // current connection state (atomic)
	closeOnce sync.Once          // ensures single cleanup execution
	ctx       context.Context    // connection context for cancellation
	cancel    context.CancelFunc // context cancellation function
	mu        sync.RWMutex       // protects lastUsed
	lastUsed  time.Time          // last activity timestamp for idle detection

	buf    []byte // growable read buffer; buf[pos:] holds unconsumed bytes
	pos    int
	readN  [4096]byte // scratch read window, avoids a per-Read allocation
}

func newConnection(netConn net.Conn, server *Server) *Connection {
	ctx, cancel := context.WithCancel(server.ctx)
	return &Connection{
		id:       uuid.NewString(),
		conn:     netConn,
		writer:   bufio.NewWriter(netConn),
		server:   server,
		ctx:      ctx,
		cancel:   cancel,
		lastUsed: time.Now(),
	}
}

// ID returns the connection's unique identity, stable for its lifetime.
func (c *Connection) ID() string { return c.id }

// readFrame blocks until a complete RESP Value has been read from the
// connection, growing its internal buffer across as many conn.Read
// calls as needed. It returns a *MalformedError unchanged so the
// caller can decide to close the connection; ErrIncomplete never
// escapes this method.
func (c *Connection) readFrame() (Value, error) {
	for {
		if c.pos < len(c.buf) {
			v, n, err := Parse(c.buf[c.pos:])
			if err == nil {
				c.pos += n
				c.compact()
				return v, nil
			}
			if !isIncomplete(err) {
				return Value{}, err
			}
		}

		n, err := c.conn.Read(c.readN[:])
		if n > 0 {
			c.buf = append(c.buf, c.readN[:n]...)
		}
		if err != nil {
			return Value{}, err
		}
	}
}

func isIncomplete(err error) bool {
	return err == ErrIncomplete
}

// compact drops already-consumed bytes once they grow past a small
// threshold, so a long-lived connection doesn't retain every byte it
// has ever read.
func (c *Connection) compact() {
	if c.pos == 0 {
		return
	}
	if c.pos < 4096 && c.pos < len(c.buf)/2 {
		return
	}
	remaining := len(c.buf) - c.pos
	copy(c.buf, c.buf[c.pos:])
	c.buf = c.buf[:remaining]
	c.pos = 0
}

// writeValue serializes v and flushes it to the connection.
func (c *Connection) writeValue(v Value) error {
	if _, err := c.writer.Write(Serialize(v)); err != nil {
		return err
	}
	return c.writer.Flush()
}

// touch records command activity, used by the idle checker to decide
// when to transition StateActive -> StateIdle.
func (c *Connection) touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

func (c *Connection) idleSince() time.Duration {
	c.mu.RLock()
	last := c.lastUsed
	c.mu.RUnlock()
	return time.Since(last)
}

// setState updates the connection state and triggers the server's
// connection state hook if configured.
func (c *Connection) setState(state ConnState) {
	c.state.Store(int32(state))
	if c.server.ConnStateHook != nil {
		c.server.ConnStateHook(c.conn, state)
	}
}

// Close performs thread-safe connection cleanup exactly once, regardless
// of how many times it's called.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// GetState returns the current connection state.
func (c *Connection) GetState() ConnState {
	return ConnState(c.state.Load())
}

// RemoteAddr returns the remote network address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local network address.
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}
