package core

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/http2"
	"github.com/searchktools/conduit/core/logger"
)

type connState int32

const (
	stateIdle     connState = iota // waiting for the next request
	stateActive                    // reading, dispatching or writing
	stateDraining                  // shutdown caught the connection idle
	stateHijacked                  // owned by an upgrade or HTTP/2
)

// conn is one accepted connection served by a single goroutine.
type conn struct {
	engine *Engine
	rwc    net.Conn
	remote string
	br     *bufio.Reader
	bw     *bufio.Writer
	state  atomic.Int32

	// dirty is set when something other than this goroutine may still
	// touch br or bw; they are then not returned to the pool.
	dirty bool
}

func (c *conn) setState(s connState) {
	c.state.Store(int32(s))
}

func (c *conn) serve(ctx context.Context) {
	e := c.engine
	defer func() {
		if v := recover(); v != nil {
			e.log.Error("connection panic",
				logger.RemoteAddr(c.remote),
				slog.Any("panic", v),
				slog.String("stack", string(debug.Stack())),
			)
		}
		c.close()
	}()

	// Wake an idle connection blocked waiting for a request.
	stop := context.AfterFunc(ctx, func() {
		if c.state.CompareAndSwap(int32(stateIdle), int32(stateDraining)) {
			c.rwc.SetReadDeadline(aLongTimeAgo)
		}
	})
	defer stop()

	for first := true; ; first = false {
		if !c.awaitRequest(ctx, first) {
			return
		}
		if first && e.h2 != nil && c.isHTTP2Preface() {
			c.setState(stateHijacked)
			c.rwc.SetDeadline(time.Time{})
			e.metrics.Upgraded("h2c")
			e.h2.ServeConn(ctx, c.rwc, c.br, e.dispatcher)
			return
		}
		if !c.serveRequest(ctx) {
			return
		}
	}
}

// awaitRequest blocks until the first byte of a request is available. It
// returns false when the peer went away, the idle timeout expired or the
// server is shutting down.
func (c *conn) awaitRequest(ctx context.Context, first bool) bool {
	cfg := c.engine.cfg
	timeout := cfg.IdleTimeout
	if first && cfg.RequestTimeout > 0 {
		timeout = cfg.RequestTimeout
	}
	if timeout > 0 {
		c.rwc.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.rwc.SetReadDeadline(time.Time{})
	}
	c.setState(stateIdle)
	if ctx.Err() != nil {
		return false
	}
	if _, err := c.br.Peek(1); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrDeadlineExceeded) {
			c.engine.log.Debug("read failed", logger.RemoteAddr(c.remote), logger.Error(err))
		}
		return false
	}
	return c.state.CompareAndSwap(int32(stateIdle), int32(stateActive))
}

func (c *conn) isHTTP2Preface() bool {
	b, err := c.br.Peek(3)
	if err != nil || string(b) != "PRI" {
		return false
	}
	b, err = c.br.Peek(http2.PrefaceLen)
	return err == nil && http2.IsPreface(b)
}

// serveRequest reads, dispatches and answers one request. It reports whether
// the connection may carry another one.
func (c *conn) serveRequest(ctx context.Context) bool {
	e := c.engine
	if e.cfg.RequestTimeout > 0 {
		c.rwc.SetReadDeadline(time.Now().Add(e.cfg.RequestTimeout))
	} else {
		c.rwc.SetReadDeadline(time.Time{})
	}

	req, err := http.ReadRequest(c.br, e.cfg.bodyLimit())
	if err != nil {
		e.log.Debug("malformed request", logger.RemoteAddr(c.remote), logger.Error(err))
		resp := e.errorHandler.Handle(err)
		if resp == nil {
			resp = http.DefaultErrorHandler{}.Handle(err)
		}
		c.write(ctx, resp, http.WriteOptions{Proto11: true, Close: true})
		return false
	}
	req.RemoteAddr = c.remote
	e.served.Add(1)

	// In-flight requests survive shutdown; only the wait for the next one
	// is interrupted.
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	req.SetContext(reqCtx)

	resp := e.dispatcher.Dispatch(reqCtx, req)
	if resp == nil {
		resp = http.NoContent()
	}

	opts := http.OptionsFor(req)
	body := req.Body()
	if body.Detached() {
		c.dirty = true
		opts.Close = true
	}
	if !e.cfg.KeepAlive || ctx.Err() != nil {
		opts.Close = true
	}

	if resp.Kind() == http.BodyUpgrade {
		c.upgrade(ctx, req, resp, opts)
		return false
	}

	if !opts.Close && !body.Discard(maxPostHandlerReadBytes) {
		opts.Close = true
	}
	if e.cfg.WriteTimeout > 0 && resp.Kind() != http.BodyStream {
		c.rwc.SetWriteDeadline(time.Now().Add(e.cfg.WriteTimeout))
	} else {
		c.rwc.SetWriteDeadline(time.Time{})
	}
	if !c.write(reqCtx, resp, opts) {
		return false
	}
	return !opts.Close
}

func (c *conn) write(ctx context.Context, resp *http.Response, opts http.WriteOptions) bool {
	err := http.WriteResponse(ctx, c.bw, resp, opts)
	if err == nil {
		err = c.bw.Flush()
	}
	if err != nil {
		c.engine.log.Debug("write failed", logger.RemoteAddr(c.remote), logger.Error(err))
		return false
	}
	return true
}

// upgrade hands the socket to the response's upgrade function. The function
// runs on this goroutine and its context ends when the server shuts down.
func (c *conn) upgrade(ctx context.Context, req *http.Request, resp *http.Response, opts http.WriteOptions) {
	fn, writeHead := resp.UpgradeHandler()
	if writeHead && !c.write(ctx, resp, opts) {
		return
	}
	c.setState(stateHijacked)
	c.dirty = true
	c.rwc.SetDeadline(time.Time{})

	protocol := resp.Header.Get(HeaderUpgrade)
	if protocol == "" {
		protocol = req.Header.Get(HeaderUpgrade)
	}
	c.engine.metrics.Upgraded(protocol)
	if fn != nil {
		fn(ctx, &http.Upgraded{Conn: c.rwc, Reader: c.br, Writer: c.bw, Request: req})
	}
}

func (c *conn) close() {
	c.rwc.Close()
	if !c.dirty {
		c.engine.buffers.PutReader(c.br)
		c.engine.buffers.PutWriter(c.bw)
	}
	c.engine.release(c)
}
