// Package logger builds the slog loggers used across the server and provides
// attribute helpers. Helpers return an empty Attr for zero values, so
// log.Info("msg", logger.Error(err)) needs no nil check.
package logger

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// New creates a logger writing to w. format is "json" or "text"; level is one
// of debug, info, warn, error (default info).
func New(format, level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Error creates an attribute for a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component tags records with the subsystem that emitted them.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Method creates an attribute for the HTTP method.
func Method(m string) slog.Attr {
	if m == "" {
		return slog.Attr{}
	}
	return slog.String("method", m)
}

// Path creates an attribute for the request path.
func Path(p string) slog.Attr {
	if p == "" {
		return slog.Attr{}
	}
	return slog.String("path", p)
}

// Pattern creates an attribute for the matched route pattern.
func Pattern(p string) slog.Attr {
	if p == "" {
		return slog.Attr{}
	}
	return slog.String("pattern", p)
}

// Status creates an attribute for the response status code.
func Status(code int) slog.Attr {
	if code == 0 {
		return slog.Attr{}
	}
	return slog.Int("status", code)
}

// Latency creates an attribute for a request duration.
func Latency(d time.Duration) slog.Attr {
	return slog.Duration("latency", d)
}

// RemoteAddr creates an attribute for the peer address.
func RemoteAddr(addr string) slog.Attr {
	if addr == "" {
		return slog.Attr{}
	}
	return slog.String("remote_addr", addr)
}

// RequestID creates an attribute for the request identifier.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Addr creates an attribute for a listen address.
func Addr(addr string) slog.Attr {
	return slog.String("addr", addr)
}
