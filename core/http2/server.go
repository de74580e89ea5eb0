// Package http2 serves HTTP/2 connections (h2c prior knowledge) handed over
// by the HTTP/1 connection loop once it has seen the client preface.
package http2

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/logger"
)

// Dispatcher produces the response for one request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *http.Request) *http.Response
}

// Config contains HTTP/2 server configuration
type Config struct {
	MaxConcurrentStreams uint32
	MaxReadFrameSize     uint32
	IdleTimeout          time.Duration
	// MaxBodySize caps request bodies; <= 0 disables the cap.
	MaxBodySize int64
}

// Server multiplexes streams of HTTP/2 connections onto a Dispatcher.
type Server struct {
	h2    *http2.Server
	base  *nethttp.Server
	limit int64
	log   *slog.Logger

	conns   atomic.Int64
	streams atomic.Uint64
}

// NewServer creates a new HTTP/2 server
func NewServer(cfg Config, log *slog.Logger) (*Server, error) {
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = 250
	}
	if cfg.MaxReadFrameSize == 0 {
		cfg.MaxReadFrameSize = 1 << 20 // 1MB
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		h2: &http2.Server{
			MaxConcurrentStreams: cfg.MaxConcurrentStreams,
			MaxReadFrameSize:     cfg.MaxReadFrameSize,
			IdleTimeout:          cfg.IdleTimeout,
		},
		limit: cfg.MaxBodySize,
		log:   log.With(logger.Component("http2")),
	}
	// The base server is never started; it carries the shutdown hook that
	// makes open connections send GOAWAY.
	s.base = &nethttp.Server{ErrorLog: slog.NewLogLogger(s.log.Handler(), slog.LevelWarn)}
	if err := http2.ConfigureServer(s.base, s.h2); err != nil {
		return nil, err
	}
	return s, nil
}

// IsPreface reports whether b starts with the HTTP/2 client connection preface.
func IsPreface(b []byte) bool {
	return bytes.HasPrefix(b, []byte(http2.ClientPreface))
}

// PrefaceLen is the length of the client connection preface.
const PrefaceLen = len(http2.ClientPreface)

// ServeConn serves c until the client goes away or the server shuts down. br
// holds bytes already read from c, including the preface. Request contexts
// outlive ctx so streams in flight at shutdown can finish.
func (s *Server) ServeConn(ctx context.Context, c net.Conn, br *bufio.Reader, d Dispatcher) {
	s.conns.Add(1)
	defer s.conns.Add(-1)

	s.h2.ServeConn(&bufferedConn{Conn: c, r: br}, &http2.ServeConnOpts{
		Context:    context.WithoutCancel(ctx),
		BaseConfig: s.base,
		Handler:    s.handler(d),
	})
}

func (s *Server) handler(d Dispatcher) nethttp.Handler {
	return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		s.streams.Add(1)
		req := http.FromStd(r, s.limit)
		resp := d.Dispatch(r.Context(), req)
		if err := http.WriteStd(r.Context(), w, resp); err != nil {
			s.log.Debug("write response", logger.Error(err), logger.Path(req.Path()))
		}
	})
}

// Shutdown sends GOAWAY to every open connection. It does not wait for
// streams to finish; connection goroutines return once they have.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.base.Shutdown(ctx)
}

// Stats reports open connections and streams served so far.
func (s *Server) Stats() (conns int64, streams uint64) {
	return s.conns.Load(), s.streams.Load()
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}
