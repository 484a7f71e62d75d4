package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ServerConfig carries the per-connection timeouts.
type ServerConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server accepts TCP connections and hands each one to the worker pool as
// a Session job. When the pool queue is full the connection is answered
// with 503 and closed.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	pool     *Pool
	handler  http.Handler
	cfg      ServerConfig
	log      *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	closeCh chan struct{}
	once    sync.Once

	mu       sync.Mutex
	sessions map[uint64]*Session
}

func NewServer(bindAddr string, pool *Pool, handler http.Handler, cfg ServerConfig, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		listener: ln,
		pool:     pool,
		handler:  handler,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		closeCh:  make(chan struct{}),
		sessions: make(map[uint64]*Session),
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine until Shutdown.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}

		id := s.nextID.Add(1)
		sess := NewSession(conn, id, s.cfg.ReadTimeout, s.cfg.WriteTimeout, s.log)
		s.track(sess)

		s.log.Debug("connection accepted", zap.Uint64("session", id), zap.String("ip", sess.IP))

		err = s.pool.TrySubmit(func() {
			defer s.untrack(sess)
			sess.Serve(s.ctx, s.handler)
		})
		if err != nil {
			s.log.Warn("worker pool saturated, rejecting connection",
				zap.Uint64("session", id), zap.Error(err))
			go func() {
				defer s.untrack(sess)
				sess.Reject(http.StatusServiceUnavailable)
			}()
		}
	}
}

func (s *Server) track(sess *Session) {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
}

func (s *Server) untrack(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
}

// Sessions returns the number of connections accepted and not yet done.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops accepting, cancels every in-flight request and closes the
// open connections. Workers return to the pool as their handlers unwind.
func (s *Server) Shutdown() error {
	var err error
	s.once.Do(func() {
		close(s.closeCh)
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, fmt.Errorf("close listener: %w", cerr))
		}
		s.cancel()

		s.mu.Lock()
		open := make([]*Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			open = append(open, sess)
		}
		s.mu.Unlock()
		for _, sess := range open {
			if cerr := sess.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = multierr.Append(err, fmt.Errorf("close session %d: %w", sess.ID, cerr))
			}
		}
		if len(open) > 0 {
			s.log.Info("closed open connections", zap.Int("count", len(open)))
		}
	})
	return err
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
