// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"context"
	"net"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Server accepts connections, wraps each in a Session, and dispatches
// through a single shared ServiceRegistry and WorkerPool. One goroutine
// per connection runs that Session's read loop (the "N-thread I/O
// reactor" of spec.md §4.1 maps onto Go's goroutine scheduler rather than
// an explicit fixed thread count), while CPU-bound handler work is
// confined to the WorkerPool regardless of how many connections are open.
type Server struct {
	Registry *ServiceRegistry
	Pool     *WorkerPool

	log     *logrus.Entry
	metrics *metrics

	sessionOpts []SessionOption

	mu       sync.Mutex
	sessions map[*Session]struct{}
	listener net.Listener
	closed   bool
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithServerLogger attaches a base logger used for accept-loop and
// per-session log lines. The default is logrus.StandardLogger().
func WithServerLogger(l *logrus.Logger) ServerOption {
	return func(s *Server) { s.log = l.WithField("component", "rpcframe.Server") }
}

// WithMetricsRegistry registers the server's prometheus collectors with
// reg. A nil reg (the default) leaves metrics unregistered but still
// collected in-process.
func WithMetricsRegistry(reg prometheus.Registerer) ServerOption {
	return func(s *Server) { s.metrics = newMetrics(reg) }
}

// WithSessionOptions forwards opts to every Session the server creates,
// letting a caller turn on compression, encryption or a session logger
// uniformly across all accepted connections.
func WithSessionOptions(opts ...SessionOption) ServerOption {
	return func(s *Server) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// NewServer constructs a Server around registry (already populated via
// Register) and a worker pool sized poolSize.
func NewServer(registry *ServiceRegistry, poolSize int, opts ...ServerOption) *Server {
	s := &Server{
		Registry: registry,
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.StandardLogger().WithField("component", "rpcframe.Server")
	}
	if s.metrics == nil {
		s.metrics = noopMetrics()
	}
	registry.SetLogger(s.log.Logger)
	s.Pool = NewWorkerPool(poolSize, WithPoolLogger(s.log.Logger), withPoolMetrics(s.metrics))
	return s
}

// Serve accepts connections from ln until ln.Accept fails or Shutdown is
// called, wrapping each in a Session started on its own goroutine. It
// always returns a non-nil error: ErrServerClosed after a call to
// Shutdown, or the Accept error otherwise, mirroring net/http.Serve.
func (s *Server) Serve(ln net.Listener) error {
	defer ln.Close()
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrServerClosed
			}
			return err
		}
		sess := s.newSession(conn)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			continue
		}
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()
		go sess.Start()
	}
}

func (s *Server) newSession(conn net.Conn) *Session {
	opts := append([]SessionOption{
		withSessionMetrics(s.metrics),
		WithOnClose(s.forgetSession),
	}, s.sessionOpts...)
	return NewSession(conn, s.Registry, s.Pool, opts...)
}

func (s *Server) forgetSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Shutdown marks the server closed (so a racing Accept returns
// ErrServerClosed), closes the listener and every live session's
// connection, then waits up to ctx's deadline for each session's read and
// write loops to finish draining. The wait fans out across sessions with
// golang.org/x/sync/errgroup, the same worker fan-out/join shape
// WorkerPool.Shutdown uses; per-session errors are aggregated with
// github.com/hashicorp/go-multierror, mirroring how docker-compose's
// supervisor folds many subsystem shutdown errors into one.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	live := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		live = append(live, sess)
	}
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range live {
		sess := sess
		g.Go(func() error {
			sess.teardown()
			return sess.awaitClosed(gctx)
		})
	}
	s.Pool.Shutdown()

	var merr *multierror.Error
	if err := g.Wait(); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}
