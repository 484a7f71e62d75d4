package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const rejectLinger = 250 * time.Millisecond

// Session serves one HTTP request on one accepted connection. It runs
// entirely on a pool worker and is its own http.ResponseWriter, so a
// stream holds exactly that worker until the peer goes away. Every
// response is sent with "Connection: close".
type Session struct {
	ID   uint64
	IP   string
	conn net.Conn

	br *bufio.Reader
	bw *bufio.Writer

	header      http.Header
	status      int
	wroteHeader bool
	hijacked    bool

	cancel    context.CancelFunc
	watchOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool

	readTimeout  time.Duration
	writeTimeout time.Duration

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, readTimeout, writeTimeout time.Duration, log *zap.Logger) *Session {
	return &Session{
		ID:           id,
		IP:           conn.RemoteAddr().String(),
		conn:         conn,
		br:           bufio.NewReader(conn),
		bw:           bufio.NewWriterSize(conn, 8<<10),
		header:       make(http.Header),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
}

// Serve reads one request and dispatches it to h. The request context is
// derived from ctx and is cancelled when the peer closes a stream. The read
// deadline covers the head and the body; it is lifted only when the
// response turns into a stream or the connection is hijacked.
func (s *Session) Serve(ctx context.Context, h http.Handler) {
	defer s.Close()

	if s.readTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	req, err := http.ReadRequest(s.br)
	if err != nil {
		if !errors.Is(err, io.EOF) && !s.closed.Load() {
			s.log.Debug("read request failed", zap.Error(err))
			s.Reject(http.StatusBadRequest)
		}
		return
	}
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	req = req.WithContext(ctx)
	req.RemoteAddr = s.IP

	start := time.Now()
	s.dispatch(h, req)
	if s.hijacked {
		s.log.Debug("connection hijacked", zap.String("path", req.URL.Path))
		return
	}
	if err := s.finish(); err != nil && !s.closed.Load() {
		s.log.Debug("response write failed", zap.Error(err))
	}
	s.log.Debug("request served",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", s.status),
		zap.Duration("took", time.Since(start)))
}

func (s *Session) dispatch(h http.Handler, req *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("handler panic recovered", zap.String("path", req.URL.Path), zap.Any("panic", rec))
			if !s.wroteHeader && !s.hijacked {
				s.WriteHeader(http.StatusInternalServerError)
			}
		}
	}()
	h.ServeHTTP(s, req)
	if req.Body != nil {
		req.Body.Close()
	}
}

// Header implements http.ResponseWriter.
func (s *Session) Header() http.Header { return s.header }

// WriteHeader implements http.ResponseWriter. The header block is buffered
// until the first Write or Flush.
func (s *Session) WriteHeader(code int) {
	if s.wroteHeader || s.hijacked {
		return
	}
	s.wroteHeader = true
	s.status = code

	fmt.Fprintf(s.bw, "HTTP/1.1 %d %s\r\n", code, http.StatusText(code))
	s.header.Set("Connection", "close")
	if s.header.Get("Date") == "" {
		s.header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	s.header.Write(s.bw)
	s.bw.WriteString("\r\n")
}

// Write implements http.ResponseWriter. Bodies are delimited by the
// connection close.
func (s *Session) Write(p []byte) (int, error) {
	if s.hijacked {
		return 0, http.ErrHijacked
	}
	if !s.wroteHeader {
		if s.header.Get("Content-Type") == "" {
			s.header.Set("Content-Type", http.DetectContentType(p))
		}
		s.WriteHeader(http.StatusOK)
	}
	return s.bw.Write(p)
}

// Flush implements http.Flusher.
func (s *Session) Flush() { s.FlushError() }

// FlushError pushes buffered output to the peer. The first flush marks the
// response as a stream and starts watching the peer for close.
func (s *Session) FlushError() error {
	if s.hijacked {
		return http.ErrHijacked
	}
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	s.watchOnce.Do(func() {
		s.conn.SetReadDeadline(time.Time{})
		go s.watchPeer()
	})
	return s.bw.Flush()
}

// SetWriteDeadline is used through http.ResponseController by streaming
// handlers.
func (s *Session) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// SetReadDeadline is used through http.ResponseController.
func (s *Session) SetReadDeadline(t time.Time) error { return s.conn.SetReadDeadline(t) }

// Hijack implements http.Hijacker for protocol upgrades.
func (s *Session) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if s.hijacked {
		return nil, nil, http.ErrHijacked
	}
	if s.wroteHeader {
		return nil, nil, errors.New("net: hijack after response started")
	}
	s.hijacked = true
	s.conn.SetDeadline(time.Time{})
	return s.conn, bufio.NewReadWriter(s.br, s.bw), nil
}

// watchPeer waits for the peer to close a streaming connection and
// cancels the request so the handler stops writing. Anything the peer
// sends after the request is discarded.
func (s *Session) watchPeer() {
	var buf [512]byte
	for {
		if _, err := s.br.Read(buf[:]); err != nil {
			break
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) finish() error {
	if !s.wroteHeader {
		s.header.Set("Content-Length", "0")
		s.WriteHeader(http.StatusOK)
	}
	return s.bw.Flush()
}

// Reject answers with an empty status response and closes the connection.
// Used before a request has been dispatched.
func (s *Session) Reject(code int) {
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	fmt.Fprintf(s.conn, "HTTP/1.1 %d %s\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		code, http.StatusText(code))
	s.lingerClose()
}

// lingerClose half-closes and discards what the peer still sends before
// closing, so unread request bytes do not turn the close into a reset that
// destroys the response in flight.
func (s *Session) lingerClose() {
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	s.conn.SetReadDeadline(time.Now().Add(rejectLinger))
	io.Copy(io.Discard, io.LimitReader(s.conn, 64<<10))
	s.Close()
}

// Close closes the connection. Safe to call from any goroutine; only the
// first call reports an error.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
	})
	return err
}

func (s *Session) IsClosed() bool { return s.closed.Load() }

// Status returns the response status once written, 0 before.
func (s *Session) Status() int { return s.status }

var _ interface {
	http.ResponseWriter
	http.Flusher
	http.Hijacker
} = (*Session)(nil)
