package core

import (
	"log/slog"
	"time"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/logger"
	"github.com/searchktools/conduit/core/observability"
)

// DefaultMaxBodySize is the request body cap applied when none is configured.
const DefaultMaxBodySize = 64 << 10

// Config holds the engine limits. Zero durations and a zero connection limit
// disable the corresponding check.
type Config struct {
	// MaxBodySize caps request bodies. Negative disables the cap.
	MaxBodySize int64
	// RequestTimeout bounds reading a request once its first byte arrived.
	RequestTimeout time.Duration
	// HandlerTimeout bounds producing a response; exceeding it yields 504.
	HandlerTimeout time.Duration
	// IdleTimeout bounds the wait for the next request on a kept-alive connection.
	IdleTimeout time.Duration
	// WriteTimeout bounds writing a buffered response.
	WriteTimeout time.Duration
	// ShutdownTimeout bounds the drain after shutdown begins; connections
	// still open afterwards are closed.
	ShutdownTimeout time.Duration
	MaxConnections  int
	KeepAlive       bool
	// HTTP2 enables h2c with prior knowledge on the same listener.
	HTTP2     bool
	ReusePort bool

	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:     DefaultMaxBodySize,
		IdleTimeout:     60 * time.Second,
		KeepAlive:       true,
		ReadBufferSize:  8 << 10,
		WriteBufferSize: 8 << 10,
	}
}

func (c Config) bodyLimit() int64 {
	switch {
	case c.MaxBodySize < 0:
		return 0
	case c.MaxBodySize == 0:
		return DefaultMaxBodySize
	}
	return c.MaxBodySize
}

type options struct {
	cfg          Config
	log          *slog.Logger
	metrics      *observability.Metrics
	metricsPath  string
	errorHandler http.ErrorHandler
	autoOptions  bool
}

func newOptions(opts []Option) *options {
	o := &options{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.Discard()
	}
	if o.errorHandler == nil {
		o.errorHandler = http.DefaultErrorHandler{}
	}
	return o
}

// Option configures an application and its engine.
type Option func(*options)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

func WithMaxBodySize(n int64) Option {
	return func(o *options) { o.cfg.MaxBodySize = n }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.RequestTimeout = d }
}

func WithHandlerTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.HandlerTimeout = d }
}

func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.IdleTimeout = d }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.ShutdownTimeout = d }
}

func WithMaxConnections(n int) Option {
	return func(o *options) { o.cfg.MaxConnections = n }
}

func WithKeepAlive(enabled bool) Option {
	return func(o *options) { o.cfg.KeepAlive = enabled }
}

func WithHTTP2(enabled bool) Option {
	return func(o *options) { o.cfg.HTTP2 = enabled }
}

// WithBufferSizes sets the per-connection read and write buffer sizes.
func WithBufferSizes(read, write int) Option {
	return func(o *options) {
		o.cfg.ReadBufferSize = read
		o.cfg.WriteBufferSize = write
	}
}

// WithLogger sets the logger for engine events. Requests are not logged
// unless the Logger middleware is installed.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records metrics into m. When path is not empty the
// application also serves m on GET path.
func WithMetrics(m *observability.Metrics, path string) Option {
	return func(o *options) {
		o.metrics = m
		o.metricsPath = path
	}
}

// WithAutoOptions answers OPTIONS requests to paths that have routes but no
// OPTIONS route. The request runs through the global middleware, so CORS
// can handle preflights; otherwise it gets 204 with an Allow header.
func WithAutoOptions(enabled bool) Option {
	return func(o *options) { o.autoOptions = enabled }
}

// WithErrorHandler sets the handler that renders errors into responses.
func WithErrorHandler(eh http.ErrorHandler) Option {
	return func(o *options) { o.errorHandler = eh }
}
