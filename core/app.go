package core

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/searchktools/conduit/core/extensions"
	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/logger"
	"github.com/searchktools/conduit/core/middleware"
	"github.com/searchktools/conduit/core/observability"
	"github.com/searchktools/conduit/core/router"
)

// Builder collects routes, global middleware and options for an App. State
// is handed to every handler and middleware.
type Builder[S any] struct {
	state   S
	router  *router.Router[S]
	global  []middleware.Middleware[S]
	opts    []Option
	handler http.ErrorHandler
}

// New starts building an application around state.
func New[S any](state S, opts ...Option) *Builder[S] {
	return &Builder[S]{state: state, router: router.New[S](), opts: opts}
}

func (b *Builder[S]) Handle(method, path string, h middleware.Handler[S]) *Builder[S] {
	b.router.Handle(method, path, h)
	return b
}

func (b *Builder[S]) Get(path string, h middleware.HandlerFunc[S]) *Builder[S] {
	return b.Handle(http.MethodGet, path, h)
}

func (b *Builder[S]) Post(path string, h middleware.HandlerFunc[S]) *Builder[S] {
	return b.Handle(http.MethodPost, path, h)
}

func (b *Builder[S]) Put(path string, h middleware.HandlerFunc[S]) *Builder[S] {
	return b.Handle(http.MethodPut, path, h)
}

func (b *Builder[S]) Delete(path string, h middleware.HandlerFunc[S]) *Builder[S] {
	return b.Handle(http.MethodDelete, path, h)
}

func (b *Builder[S]) Patch(path string, h middleware.HandlerFunc[S]) *Builder[S] {
	return b.Handle(http.MethodPatch, path, h)
}

// Route registers a route carrying its own middleware.
func (b *Builder[S]) Route(rt *router.Route[S]) *Builder[S] {
	b.router.Route(rt)
	return b
}

// Nest mounts r under prefix.
func (b *Builder[S]) Nest(prefix string, r *router.Router[S]) *Builder[S] {
	b.router.Nest(prefix, r)
	return b
}

// Layer adds global middleware. Global middleware runs before router and
// route middleware on every matched route, whenever it was added.
func (b *Builder[S]) Layer(mws ...middleware.Middleware[S]) *Builder[S] {
	b.global = append(b.global, mws...)
	return b
}

// ErrorHandler sets the handler that renders errors. It takes precedence
// over WithErrorHandler.
func (b *Builder[S]) ErrorHandler(eh http.ErrorHandler) *Builder[S] {
	b.handler = eh
	return b
}

// Option appends options.
func (b *Builder[S]) Option(opts ...Option) *Builder[S] {
	b.opts = append(b.opts, opts...)
	return b
}

type compiledRoute[S any] struct {
	chain *middleware.Chain[S]
}

// Build flattens the routers, composes each route's chain and compiles the
// matcher. It fails on invalid, duplicate or ambiguous routes.
func (b *Builder[S]) Build() (*App[S], error) {
	o := newOptions(b.opts)
	if b.handler != nil {
		o.errorHandler = b.handler
	}

	routes := b.router
	if o.metrics != nil && o.metricsPath != "" {
		metrics := o.metrics.Handler()
		routes = router.New[S]().
			Get(o.metricsPath, func(req *http.Request, _ S) (*http.Response, error) {
				return http.ServeStd(metrics, req), nil
			}).
			Nest("/", b.router)
	}

	m := router.NewMatcher[*compiledRoute[S]]()
	for _, fr := range routes.Flatten("") {
		mws := make([]middleware.Middleware[S], 0, len(b.global)+len(fr.Middlewares))
		mws = append(append(mws, b.global...), fr.Middlewares...)
		rt := &compiledRoute[S]{chain: middleware.Build(mws, fr.Handler, o.errorHandler)}
		if err := m.Add(fr.Method, fr.Path, rt); err != nil {
			return nil, err
		}
	}

	a := &App[S]{
		state:        b.state,
		matcher:      m,
		options:      b.optionsRoute(o),
		errorHandler: o.errorHandler,
		cfg:          o.cfg,
		log:          o.log,
		metrics:      o.metrics,
	}
	a.engine = newEngine(a, o)
	return a, nil
}

// optionsRoute is the chain answering OPTIONS for paths without an OPTIONS
// route, or nil when WithAutoOptions is off.
func (b *Builder[S]) optionsRoute(o *options) *compiledRoute[S] {
	if !o.autoOptions {
		return nil
	}
	allow := middleware.HandlerFunc[S](func(*http.Request, S) (*http.Response, error) {
		return http.NoContent(), nil
	})
	return &compiledRoute[S]{chain: middleware.Build(b.global, allow, o.errorHandler)}
}

// App is a built application: an immutable route table plus the engine
// that serves it. Dispatch is safe for concurrent use.
type App[S any] struct {
	state        S
	matcher      *router.Matcher[*compiledRoute[S]]
	options      *compiledRoute[S]
	errorHandler http.ErrorHandler
	cfg          Config
	log          *slog.Logger
	metrics      *observability.Metrics
	engine       *Engine
}

// State returns the application state.
func (a *App[S]) State() S {
	return a.state
}

// Routes lists the registered routes.
func (a *App[S]) Routes() []router.RouteInfo {
	return a.matcher.Routes()
}

// Engine returns the engine serving the application.
func (a *App[S]) Engine() *Engine {
	return a.engine
}

// Serve accepts connections on ln until ctx is cancelled, then drains.
func (a *App[S]) Serve(ctx context.Context, ln net.Listener) error {
	return a.engine.Serve(ctx, ln)
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (a *App[S]) ListenAndServe(ctx context.Context, addr string) error {
	return a.engine.ListenAndServe(ctx, addr)
}

// Dispatch routes req and runs its chain. It always returns a response:
// routing failures, oversized bodies, timeouts and panics are rendered by
// the error handler.
func (a *App[S]) Dispatch(ctx context.Context, req *http.Request) *http.Response {
	start := time.Now()
	resp, pattern := a.dispatch(ctx, req)
	if resp == nil {
		resp = http.DefaultErrorHandler{}.Handle(http.Internal(""))
	}
	a.metrics.RecordRequest(req.Method, pattern, resp.Status, time.Since(start))
	return resp
}

func (a *App[S]) dispatch(ctx context.Context, req *http.Request) (*http.Response, string) {
	match, err := a.matcher.Find(req.Method, req.Path())
	if err != nil {
		var mna *router.MethodNotAllowedError
		if errors.As(err, &mna) {
			if req.Method == http.MethodOptions && a.options != nil {
				return a.answerOptions(ctx, req, mna.Allowed), ""
			}
			resp := a.handleError(http.MethodNotAllowed("Method not allowed"))
			resp.Header.Set(HeaderAllow, strings.Join(mna.Allowed, ", "))
			return resp, ""
		}
		return a.handleError(http.ErrNotFound), ""
	}

	if limit := a.cfg.bodyLimit(); limit > 0 && req.ContentLength > limit {
		return a.handleError(http.ErrPayloadTooLarge), match.Pattern
	}

	req.SetContext(ctx)
	req.SetParams(match.Params)
	req.SetPattern(match.Pattern)
	extensions.Insert(req.Extensions(), a.errorHandler)

	if a.cfg.HandlerTimeout <= 0 {
		return a.run(match.Value, req), match.Pattern
	}
	return a.runWithTimeout(ctx, match.Value, req), match.Pattern
}

func (a *App[S]) answerOptions(ctx context.Context, req *http.Request, allowed []string) *http.Response {
	req.SetContext(ctx)
	extensions.Insert(req.Extensions(), a.errorHandler)
	resp := a.run(a.options, req)
	if resp.Header.Get(HeaderAllow) == "" {
		methods := append(slices.Clone(allowed), http.MethodOptions)
		slices.Sort(methods)
		resp.Header.Set(HeaderAllow, strings.Join(methods, ", "))
	}
	return resp
}

func (a *App[S]) run(rt *compiledRoute[S], req *http.Request) (resp *http.Response) {
	defer func() {
		if v := recover(); v != nil {
			resp = a.handleError(&http.PanicError{Value: v, Stack: debug.Stack()})
		}
	}()
	return rt.chain.Run(req, a.state)
}

// runWithTimeout runs the chain in its own goroutine. On expiry the request
// context is cancelled, the body is detached from the connection and a late
// result is dropped.
func (a *App[S]) runWithTimeout(ctx context.Context, rt *compiledRoute[S], req *http.Request) *http.Response {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	req.SetContext(ctx)

	done := make(chan *http.Response, 1)
	go func() {
		done <- a.run(rt, req)
	}()

	timer := time.NewTimer(a.cfg.HandlerTimeout)
	defer timer.Stop()
	select {
	case resp := <-done:
		return resp
	case <-timer.C:
		req.Body().Detach()
		a.metrics.HandlerTimeout()
		a.log.Warn("handler timed out",
			logger.Method(req.Method),
			logger.Path(req.Path()),
			logger.Latency(a.cfg.HandlerTimeout),
		)
		return a.handleError(http.ErrHandlerTimeout)
	}
}

func (a *App[S]) handleError(err error) *http.Response {
	if resp := a.errorHandler.Handle(err); resp != nil {
		return resp
	}
	return http.DefaultErrorHandler{}.Handle(err)
}
