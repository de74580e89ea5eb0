package core

import (
	"context"
	"net"
	"time"
)

// Listen opens a TCP listener with SO_REUSEADDR set, and SO_REUSEPORT when
// reusePort is true on platforms that support it. Accepted connections get
// TCP keep-alive probes.
func Listen(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{
		Control:   controlSocket(reusePort),
		KeepAlive: 30 * time.Second,
	}
	return lc.Listen(ctx, "tcp", addr)
}
