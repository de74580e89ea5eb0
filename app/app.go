// Package app wires a configured server: logging, metrics, standard
// middleware and signal-driven graceful shutdown around a core.Builder.
package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchktools/conduit/config"
	"github.com/searchktools/conduit/core"
	"github.com/searchktools/conduit/core/logger"
	"github.com/searchktools/conduit/core/middleware"
	"github.com/searchktools/conduit/core/observability"
)

// App is a configured application instance.
type App[S any] struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observability.Metrics
	routes  *core.Builder[S]
}

// Option customizes New.
type Option func(*settings)

type settings struct {
	out io.Writer
}

// WithLogOutput sends logs to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(s *settings) { s.out = w }
}

// New creates an application around state. Request IDs and access logging
// are always installed; CORS and rate limiting only when configured. With
// CORS origins set, OPTIONS requests to routed paths are answered by the
// CORS middleware even without an OPTIONS route.
func New[S any](cfg *config.Config, state S, opts ...Option) *App[S] {
	s := &settings{out: os.Stderr}
	for _, opt := range opts {
		opt(s)
	}
	log := logger.New(cfg.Logging.Format, cfg.Logging.Level, s.out)

	coreOpts := []core.Option{
		core.WithConfig(cfg.Server.Core()),
		core.WithLogger(log),
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		coreOpts = append(coreOpts, core.WithAutoOptions(true))
	}
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
		coreOpts = append(coreOpts, core.WithMetrics(metrics, cfg.Metrics.Path))
	}

	routes := core.New(state, coreOpts...).Layer(
		middleware.RequestID[S](""),
		middleware.Logger[S](log.With(logger.Component("access"))),
	)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		routes.Layer(middleware.CORS[S](middleware.CORSConfig{AllowOrigins: cfg.CORS.AllowedOrigins}))
	}
	if cfg.RateLimit.RPS > 0 {
		routes.Layer(middleware.RateLimit[S](middleware.RateLimitConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		}))
	}

	return &App[S]{cfg: cfg, log: log, metrics: metrics, routes: routes}
}

// Routes returns the builder for route registration.
func (a *App[S]) Routes() *core.Builder[S] {
	return a.routes
}

func (a *App[S]) Logger() *slog.Logger {
	return a.log
}

// Metrics returns nil when metrics are disabled.
func (a *App[S]) Metrics() *observability.Metrics {
	return a.metrics
}

// Run listens on the configured address and serves until ctx is cancelled
// or SIGINT/SIGTERM arrives, then shuts down gracefully.
func (a *App[S]) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := core.Listen(ctx, a.cfg.Server.Addr, a.cfg.Server.ReusePort)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve builds the route table and serves ln until ctx is done.
func (a *App[S]) Serve(ctx context.Context, ln net.Listener) error {
	built, err := a.routes.Build()
	if err != nil {
		ln.Close()
		return err
	}
	for _, r := range built.Routes() {
		a.log.Debug("route registered", logger.Method(r.Method), logger.Pattern(r.Pattern))
	}
	a.log.Info("application starting",
		slog.Int("routes", len(built.Routes())),
		slog.Bool("http2", a.cfg.Server.HTTP2),
		slog.Bool("metrics", a.metrics != nil),
	)

	if err := built.Serve(ctx, ln); err != nil {
		a.log.Error("server failed", logger.Error(err))
		return err
	}
	return nil
}
