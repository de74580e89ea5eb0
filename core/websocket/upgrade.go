// Package websocket serves WebSocket connections on top of connection
// takeover, using gorilla/websocket for the handshake and framing, and fans
// messages out to clients and rooms through a Hub.
package websocket

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/logger"
)

// OpCode is a data message type.
type OpCode int

const (
	OpText   OpCode = websocket.TextMessage
	OpBinary OpCode = websocket.BinaryMessage
)

// Message is a complete data message.
type Message struct {
	OpCode  OpCode
	Payload []byte
}

// Config configures the handshake.
type Config struct {
	ReadBufferSize    int
	WriteBufferSize   int
	HandshakeTimeout  time.Duration
	Subprotocols      []string
	EnableCompression bool
	// CheckOrigin returns false to reject a handshake. Nil accepts requests
	// whose Origin matches their Host.
	CheckOrigin func(r *nethttp.Request) bool
}

// Upgrader accepts WebSocket handshakes.
type Upgrader struct {
	up  websocket.Upgrader
	log *slog.Logger
}

// NewUpgrader creates an upgrader.
func NewUpgrader(cfg Config, log *slog.Logger) *Upgrader {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Upgrader{
		up: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			HandshakeTimeout:  cfg.HandshakeTimeout,
			Subprotocols:      cfg.Subprotocols,
			EnableCompression: cfg.EnableCompression,
			CheckOrigin:       cfg.CheckOrigin,
		},
		log: log.With(logger.Component("websocket")),
	}
}

// ErrNotWebSocket is returned by Accept for requests that do not ask for a
// WebSocket upgrade.
var ErrNotWebSocket = http.BadRequest("WebSocket upgrade required")

// Accept returns a response that takes over the connection, completes the
// handshake and runs fn. The connection is closed when fn returns, and ctx
// ends when the server shuts down.
func (u *Upgrader) Accept(req *http.Request, fn func(ctx context.Context, conn *websocket.Conn)) (*http.Response, error) {
	std := req.Std()
	if !websocket.IsWebSocketUpgrade(std) {
		return nil, ErrNotWebSocket
	}
	return http.Hijack(func(ctx context.Context, raw *http.Upgraded) {
		w := &hijacker{raw: raw, header: make(nethttp.Header)}
		conn, err := u.up.Upgrade(w, std, nil)
		if err != nil {
			u.log.Debug("handshake failed", logger.Error(err), logger.RemoteAddr(req.RemoteAddr))
			w.reject(ctx)
			return
		}
		defer conn.Close()
		fn(ctx, conn)
	}), nil
}

// hijacker is the ResponseWriter gorilla sees. A successful handshake
// hijacks it; a failed one leaves an error response to send.
type hijacker struct {
	raw      *http.Upgraded
	header   nethttp.Header
	status   int
	body     []byte
	hijacked bool
}

func (w *hijacker) Header() nethttp.Header {
	return w.header
}

func (w *hijacker) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *hijacker) Write(p []byte) (int, error) {
	if w.hijacked {
		return 0, nethttp.ErrHijacked
	}
	w.WriteHeader(nethttp.StatusOK)
	w.body = append(w.body, p...)
	return len(p), nil
}

func (w *hijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.hijacked {
		return nil, nil, errors.New("websocket: connection already hijacked")
	}
	w.hijacked = true
	return w.raw.Conn, bufio.NewReadWriter(w.raw.Reader, w.raw.Writer), nil
}

func (w *hijacker) reject(ctx context.Context) {
	if w.hijacked || w.status == 0 {
		return
	}
	resp := http.Blob(w.status, w.header.Get("Content-Type"), w.body)
	for k, vs := range w.header {
		resp.Header[k] = vs
	}
	if err := http.WriteResponse(ctx, w.raw.Writer, resp, http.WriteOptions{Proto11: true, Close: true}); err == nil {
		w.raw.Writer.Flush()
	}
}
