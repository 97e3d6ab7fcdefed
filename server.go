/*
Package redkv: server lifecycle.

This file owns the TCP listener, the goroutine-per-connection accept
loop, and graceful shutdown. Each connection parses RESP frames off its
own growable buffer (connection.go), looks up a handler by command name,
runs it through the middleware chain, and writes the response back.

Architecture:
The server uses a goroutine-per-connection model with shared state
protected by appropriate synchronization primitives. Each client
connection runs in its own goroutine, enabling high concurrency while
keeping the keyspace's own locking the only real point of contention.
*/
package redkv

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// NewServer creates a new server instance with production defaults and
// an empty, unshared keyspace. Call Listen/Serve (or ListenAndServe) to
// start accepting connections.
func NewServer(address string) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		Address:        address,
		ReadTimeout:    0, // no read deadline: idle connections stay open
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxConnections: 1000,
		Config:         &Config{},
		Keyspace:       NewKeyspace(),
		handlers:       make(map[string]CommandHandler),
		chain:          NewMiddlewareChain(),
		activeConns:    make(map[*Connection]struct{}),
		ctx:            ctx,
		cancel:         cancel,
		Log:            NewLogger(LogOptions{Stdout: true, Level: "info"}),
	}

	server.registerDefaultHandlers()
	server.startIdleChecker()

	return server
}

// RegisterCommand registers a command handler under name, case-insensitively.
func (s *Server) RegisterCommand(name string, handler CommandHandler) error {
	if name == "" || handler == nil {
		return errors.New("redkv: empty command name or nil handler")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[strings.ToUpper(name)] = handler
	return nil
}

// RegisterCommandFunc is the functional-literal convenience form of RegisterCommand.
func (s *Server) RegisterCommandFunc(name string, handler func(*Connection, *Command) Value) error {
	if name == "" || handler == nil {
		return errors.New("redkv: empty command name or nil handler")
	}
	return s.RegisterCommand(name, CommandHandlerFunc(handler))
}

// Use appends a middleware to the server's chain. Call before Serve;
// middlewares added first see the request first and the response last.
func (s *Server) Use(m Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain.Add(m)
}

// UseFunc is the functional-literal convenience form of Use.
func (s *Server) UseFunc(f func(conn *Connection, cmd *Command, next CommandHandler) Value) {
	s.Use(MiddlewareFunc(f))
}

// Listen binds the configured address, choosing TLS or plain TCP based
// on TLSConfig. Idempotent.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	var err error
	if s.TLSConfig != nil {
		s.listener, err = tls.Listen("tcp", s.Address, s.TLSConfig)
	} else {
		s.listener, err = net.Listen("tcp", s.Address)
	}
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.Address)
	}

	s.Log.Infof("listening on %s", s.Address)
	return nil
}

// Serve accepts connections until Shutdown is called, handling each on
// its own goroutine. It enforces MaxConnections after Accept to avoid a
// TOCTOU race against concurrently-closing connections.
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	defer s.listener.Close()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return nil
			}
			s.Log.Errorf("accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go func(netConn net.Conn) {
			defer s.wg.Done()

			if s.MaxConnections > 0 && s.connCount.Add(1) > int64(s.MaxConnections) {
				s.connCount.Add(-1)
				connectionsRejected.Inc()
				netConn.Close()
				s.Log.Warnf("connection limit reached, rejecting %s", netConn.RemoteAddr())
				return
			}
			connectionsActive.Inc()

			s.handleConnectionInternal(netConn)

			s.connCount.Add(-1)
			connectionsActive.Dec()
		}(conn)
	}
}

// ListenAndServe is a convenience wrapper around Listen followed by Serve.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown stops accepting connections, closes every active connection,
// runs registered shutdown hooks, and waits for all connection
// goroutines to exit or ctx to expire, whichever comes first. Errors
// encountered closing individual connections are aggregated rather than
// abandoning the rest of the shutdown sequence.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.cancel()

	var result *multierror.Error

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close listener"))
		}
	}

	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.activeConns))
	for conn := range s.activeConns {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "close connection %s", conn.ID()))
		}
	}

	s.mu.Lock()
	hooks := append([]func(){}, s.onShutdown...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		result = multierror.Append(result, ctx.Err())
	case <-done:
	}

	return result.ErrorOrNil()
}

// handleConnectionInternal owns one client connection end to end:
// bookkeeping on entry/exit, the read-dispatch-write loop, and timeout
// enforcement.
func (s *Server) handleConnectionInternal(netConn net.Conn) {
	conn := newConnection(netConn, s)
	conn.state.Store(int32(StateNew))

	s.mu.Lock()
	s.activeConns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.activeConns, conn)
		s.mu.Unlock()
	}()

	if s.ConnStateHook != nil {
		s.ConnStateHook(netConn, StateNew)
	}
	conn.setState(StateActive)

	for {
		select {
		case <-conn.ctx.Done():
			return
		default:
		}

		if s.ReadTimeout > 0 {
			if err := netConn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
				s.Log.Errorf("set read deadline for %s: %v", netConn.RemoteAddr(), err)
				return
			}
		}

		frame, err := conn.readFrame()
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.Log.Infof("closing connection %s: %v", netConn.RemoteAddr(), err)
			}
			return
		}

		cmd, err := ExtractCommand(frame)
		if err != nil {
			s.writeTimed(conn, errReply("ERR %v", err))
			continue
		}

		conn.touch()
		s.setConnectionActive(conn)

		response := s.handleCommand(conn, cmd)

		if !s.writeTimed(conn, response) {
			return
		}
	}
}

func (s *Server) writeTimed(conn *Connection, v Value) bool {
	if s.WriteTimeout > 0 {
		if err := conn.conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
			return false
		}
	}
	if err := conn.writeValue(v); err != nil {
		s.Log.Errorf("write to %s: %v", conn.RemoteAddr(), err)
		return false
	}
	return true
}

// handleCommand looks up the handler for cmd.Name and runs it through
// the middleware chain, recovering from a handler panic so that one bad
// command never takes the whole connection down uncontrolled.
func (s *Server) handleCommand(conn *Connection, cmd *Command) (result Value) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Errorf("panic in command handler %q: %v", cmd.Name, r)
			commandsTotal.WithLabelValues(cmd.Name, "panic").Inc()
			result = errReply("ERR internal error")
		}
	}()

	if cmd == nil || cmd.Name == "" {
		return errReply("ERR empty command")
	}

	name := strings.ToUpper(cmd.Name)
	s.mu.RLock()
	handler, exists := s.handlers[name]
	chain := s.chain
	s.mu.RUnlock()

	if !exists {
		commandsTotal.WithLabelValues(name, "unknown").Inc()
		return errReply("ERR unknown command '%s'", cmd.Name)
	}

	result = chain.Execute(conn, cmd, handler)
	outcome := "ok"
	if result.Kind == KindSimpleString && result.IsError {
		outcome = "error"
	}
	commandsTotal.WithLabelValues(name, outcome).Inc()
	return result
}

// OnShutdown registers a function to run during Shutdown, after
// connections are closed but before waiting on in-flight goroutines.
func (s *Server) OnShutdown(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShutdown = append(s.onShutdown, f)
}

// GetActiveConnections returns the number of currently open connections.
func (s *Server) GetActiveConnections() int64 {
	return s.connCount.Load()
}

// IsShutdown reports whether the server has begun shutting down.
func (s *Server) IsShutdown() bool {
	return s.inShutdown.Load()
}

// TriggerIdleCheck runs one idle-connection sweep immediately; exported
// for tests that don't want to wait on the ticker.
func (s *Server) TriggerIdleCheck() {
	s.checkIdleConnections()
}

func (s *Server) startIdleChecker() {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.checkIdleConnections()
			}
		}
	}()
}

func (s *Server) checkIdleConnections() {
	if s.IdleTimeout <= 0 {
		return
	}

	s.mu.RLock()
	conns := make([]*Connection, 0, len(s.activeConns))
	for conn := range s.activeConns {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		if ConnState(conn.state.Load()) == StateActive && conn.idleSince() > s.IdleTimeout {
			conn.setState(StateIdle)
			s.Log.Infof("connection %s marked idle", conn.RemoteAddr())
		}
	}
}

func (s *Server) setConnectionActive(conn *Connection) {
	if ConnState(conn.state.Load()) == StateIdle {
		conn.setState(StateActive)
		if s.ConnStateHook != nil {
			s.ConnStateHook(conn.conn, StateActive)
		}
	}
}
