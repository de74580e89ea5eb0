package http

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"net"
	nethttp "net/http"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// UpgradeFunc takes over a connection detached from HTTP framing. ctx is
// cancelled when the server starts shutting down; the function owns the
// connection until it returns, after which the server closes it.
type UpgradeFunc func(ctx context.Context, conn *Upgraded)

// Upgraded is a raw duplex connection. Reads go through Reader so bytes the
// HTTP parser already buffered are not lost.
type Upgraded struct {
	net.Conn
	Reader *bufio.Reader
	Writer *bufio.Writer

	// Request is the request that asked for the upgrade.
	Request *Request
}

func (u *Upgraded) Read(p []byte) (int, error) {
	return u.Reader.Read(p)
}

type upgrade struct {
	fn        UpgradeFunc
	writeHead bool
}

// Upgrade returns a 101 Switching Protocols response for protocol. The
// connection writes the response head and then hands the socket to fn.
func Upgrade(protocol string, fn UpgradeFunc) *Response {
	r := NewResponse(nethttp.StatusSwitchingProtocols)
	r.Header.Set("Upgrade", protocol)
	r.Header.Set("Connection", "Upgrade")
	r.kind = BodyUpgrade
	r.upgrade = &upgrade{fn: fn, writeHead: true}
	return r
}

// Hijack hands the socket to fn without writing anything; fn performs its own
// handshake. Libraries that speak net/http (gorilla/websocket) use this form.
func Hijack(fn UpgradeFunc) *Response {
	r := NewResponse(nethttp.StatusSwitchingProtocols)
	r.kind = BodyUpgrade
	r.upgrade = &upgrade{fn: fn}
	return r
}

// UpgradeHandler returns the takeover function and whether the server must
// write the 101 head first.
func (r *Response) UpgradeHandler() (UpgradeFunc, bool) {
	if r.upgrade == nil {
		return nil, false
	}
	return r.upgrade.fn, r.upgrade.writeHead
}

// WebSocketAccept computes the Sec-WebSocket-Accept value for a client key.
func WebSocketAccept(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
