package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/http2"
	"github.com/searchktools/conduit/core/logger"
	"github.com/searchktools/conduit/core/observability"
	"github.com/searchktools/conduit/core/pools"
)

// Dispatcher produces the response for one request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *http.Request) *http.Response
}

// Engine accepts connections and serves HTTP/1.x on each of them in its own
// goroutine, handing h2c connections to the HTTP/2 server when enabled.
type Engine struct {
	dispatcher   Dispatcher
	cfg          Config
	log          *slog.Logger
	metrics      *observability.Metrics
	errorHandler http.ErrorHandler
	buffers      *pools.BufioPool
	h2           *http2.Server

	started  atomic.Bool
	active   atomic.Int64
	served   atomic.Uint64
	rejected atomic.Uint64

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[*conn]struct{}
}

// NewEngine creates an engine serving d.
func NewEngine(d Dispatcher, opts ...Option) *Engine {
	return newEngine(d, newOptions(opts))
}

func newEngine(d Dispatcher, o *options) *Engine {
	e := &Engine{
		dispatcher:   d,
		cfg:          o.cfg,
		log:          o.log.With(logger.Component("engine")),
		metrics:      o.metrics,
		errorHandler: o.errorHandler,
		buffers:      pools.NewBufioPool(o.cfg.ReadBufferSize, o.cfg.WriteBufferSize),
		conns:        make(map[*conn]struct{}),
	}
	if o.cfg.HTTP2 {
		h2, err := http2.NewServer(http2.Config{
			IdleTimeout: o.cfg.IdleTimeout,
			MaxBodySize: o.cfg.bodyLimit(),
		}, o.log)
		if err != nil {
			e.log.Error("http2 disabled", logger.Error(err))
		} else {
			e.h2 = h2
		}
	}
	return e
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (e *Engine) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := Listen(ctx, addr, e.cfg.ReusePort)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return e.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or accepting fails.
// It then stops accepting, lets in-flight requests finish, closes idle
// connections and returns once every connection goroutine has exited.
// An engine serves once; later calls return ErrServerClosed.
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	if !e.started.CompareAndSwap(false, true) {
		ln.Close()
		return ErrServerClosed
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	e.log.Info("server listening", logger.Addr(ln.Addr().String()))

	var (
		acceptErr error
		tempDelay time.Duration
	)
	for {
		rw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = backoff(tempDelay)
				e.log.Warn("accept failed, retrying", logger.Error(err), slog.Duration("delay", tempDelay))
				time.Sleep(tempDelay)
				continue
			}
			acceptErr = fmt.Errorf("accept: %w", err)
			ln.Close()
			break
		}
		tempDelay = 0

		n := e.active.Add(1)
		if max := e.cfg.MaxConnections; max > 0 && n > int64(max) {
			e.active.Add(-1)
			e.rejected.Add(1)
			e.metrics.ConnRejected()
			e.log.Debug("connection limit reached", logger.RemoteAddr(rw.RemoteAddr().String()))
			rw.Close()
			continue
		}
		e.metrics.ConnOpened()

		c := e.newConn(rw)
		e.wg.Go(func() {
			c.serve(ctx)
		})
	}

	e.log.Info("server draining", slog.Int64("connections", e.active.Load()))
	if err := e.drain(); err != nil {
		return errors.Join(acceptErr, err)
	}
	e.log.Info("server stopped")
	return acceptErr
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

// drain waits for connection goroutines. Idle HTTP/1 connections wake up on
// their own through the context; HTTP/2 connections get GOAWAY.
func (e *Engine) drain() error {
	if e.h2 != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := e.h2.Shutdown(ctx); err != nil {
			e.log.Debug("http2 shutdown", logger.Error(err))
		}
		cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	if e.cfg.ShutdownTimeout <= 0 {
		<-done
		return nil
	}

	timer := time.NewTimer(e.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		e.mu.Lock()
		for c := range e.conns {
			c.rwc.Close()
		}
		e.mu.Unlock()
		<-done
		return ErrShutdownTimeout
	}
}

func (e *Engine) newConn(rw net.Conn) *conn {
	c := &conn{
		engine: e,
		rwc:    rw,
		remote: rw.RemoteAddr().String(),
		br:     e.buffers.GetReader(rw),
		bw:     e.buffers.GetWriter(rw),
	}
	e.mu.Lock()
	e.conns[c] = struct{}{}
	e.mu.Unlock()
	return c
}

func (e *Engine) release(c *conn) {
	e.mu.Lock()
	delete(e.conns, c)
	e.mu.Unlock()
	e.active.Add(-1)
	e.metrics.ConnClosed()
}

// ActiveConnections returns the number of connections being served.
func (e *Engine) ActiveConnections() int64 {
	return e.active.Load()
}
