// Package sockettest provides stream socket servers for tests of socket
// clients, in the manner of net/http/httptest.
package sockettest

import (
	"context"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Handler is the interface for handling accepted connections.
// The server closes the connection after Handle returns.
type Handler interface {
	Handle(conn net.Conn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(conn net.Conn)

// Handle implements Handler.
func (f HandlerFunc) Handle(conn net.Conn) {
	f(conn)
}

// Server accepts connections on a unix or TCP listener and dispatches each
// one to a handler in its own goroutine.
type Server struct {
	listener net.Listener
	logger   *slog.Logger
	cleanup  func()

	mu       sync.Mutex
	shutdown bool
	conns    map[net.Conn]struct{}
	accepted int

	handlers errgroup.Group
}

// Listen creates a server bound to address on network ("unix" or "tcp").
func Listen(network, address string) (*Server, error) {
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s %s", network, address)
	}

	return &Server{
		listener: listener,
		logger:   slog.Default(),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// StartUnix starts a server on a fresh unix socket and closes it when the
// test ends. The socket lives in a short temporary directory to stay within
// the platform's path length limit.
func StartUnix(tb testing.TB, handler Handler) *Server {
	tb.Helper()

	dir, err := os.MkdirTemp("", "sockettest")
	if err != nil {
		tb.Fatalf("create socket dir: %v", err)
	}

	s, err := Listen("unix", filepath.Join(dir, "s.sock"))
	if err != nil {
		os.RemoveAll(dir)
		tb.Fatalf("listen: %v", err)
	}
	s.cleanup = func() { os.RemoveAll(dir) }

	s.start(tb, handler)
	return s
}

// StartTCP starts a server on a loopback port and closes it when the test ends.
func StartTCP(tb testing.TB, handler Handler) *Server {
	tb.Helper()

	s, err := Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}

	s.start(tb, handler)
	return s
}

func (s *Server) start(tb testing.TB, handler Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx, handler)
	}()

	tb.Cleanup(func() {
		cancel()
		s.Close()
		<-done
	})
}

// Serve accepts connections until the context is canceled or Close is
// called. It returns ctx.Err() after a cancellation and nil after Close.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.logger.Debug("test server started", "addr", s.listener.Addr())

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		s.listener.Close()
	})
	defer stop()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				s.logger.Debug("test server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			return errors.Wrap(err, "accept")
		}

		s.logger.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		if !s.dispatch(conn, handler) {
			conn.Close()
			return ctx.Err()
		}
	}
}

// dispatch starts the handler for conn unless the server is shutting down.
// Handlers are started under the lock so Close never waits on a group that
// is still growing.
func (s *Server) dispatch(conn net.Conn, handler Handler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return false
	}
	s.conns[conn] = struct{}{}
	s.accepted++

	s.handlers.Go(func() error {
		defer s.untrack(conn)
		handler.Handle(conn)
		return nil
	})
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	conn.Close()
}

// Close stops accepting, closes every open connection and waits for the
// handlers to return. Safe to call multiple times.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	err := s.listener.Close()
	for _, c := range conns {
		c.Close()
	}
	s.handlers.Wait()

	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}

	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Network returns "unix" or "tcp".
func (s *Server) Network() string {
	return s.listener.Addr().Network()
}

// Address returns the socket path or "host:port" clients should dial.
func (s *Server) Address() string {
	return s.listener.Addr().String()
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accepted
}

// Open returns the number of connections whose handler is still running.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}
