package router

import (
	"strings"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/middleware"
)

type mount[S any] struct {
	prefix string
	router *Router[S]
}

// Router accumulates routes, router-level middleware and nested routers.
// It is a builder: nothing is matched until the routes are flattened and
// compiled by the application.
type Router[S any] struct {
	routes      []*Route[S]
	middlewares []middleware.Middleware[S]
	children    []mount[S]
}

// New creates an empty router.
func New[S any]() *Router[S] {
	return &Router[S]{}
}

// Handle registers h for method and path.
func (r *Router[S]) Handle(method, path string, h middleware.Handler[S]) *Router[S] {
	return r.Route(NewRoute(method, path, h))
}

func (r *Router[S]) Get(path string, h middleware.HandlerFunc[S]) *Router[S] {
	return r.Handle(http.MethodGet, path, h)
}

func (r *Router[S]) Post(path string, h middleware.HandlerFunc[S]) *Router[S] {
	return r.Handle(http.MethodPost, path, h)
}

func (r *Router[S]) Put(path string, h middleware.HandlerFunc[S]) *Router[S] {
	return r.Handle(http.MethodPut, path, h)
}

func (r *Router[S]) Delete(path string, h middleware.HandlerFunc[S]) *Router[S] {
	return r.Handle(http.MethodDelete, path, h)
}

func (r *Router[S]) Patch(path string, h middleware.HandlerFunc[S]) *Router[S] {
	return r.Handle(http.MethodPatch, path, h)
}

func (r *Router[S]) Options(path string, h middleware.HandlerFunc[S]) *Router[S] {
	return r.Handle(http.MethodOptions, path, h)
}

// Route registers a route carrying its own middleware.
func (r *Router[S]) Route(rt *Route[S]) *Router[S] {
	r.routes = append(r.routes, rt)
	return r
}

// Layer adds middleware applied to every route of this router and of the
// routers nested in it, in the order given.
func (r *Router[S]) Layer(mws ...middleware.Middleware[S]) *Router[S] {
	r.middlewares = append(r.middlewares, mws...)
	return r
}

// Nest mounts child under prefix. The child's routes inherit this router's
// middleware ahead of their own.
func (r *Router[S]) Nest(prefix string, child *Router[S]) *Router[S] {
	r.children = append(r.children, mount[S]{prefix: prefix, router: child})
	return r
}

// RouteCount returns the number of routes including nested ones.
func (r *Router[S]) RouteCount() int {
	n := len(r.routes)
	for _, c := range r.children {
		n += c.router.RouteCount()
	}
	return n
}

// FlatRoute is a route with its full path and complete middleware list,
// outermost first.
type FlatRoute[S any] struct {
	Method      string
	Path        string
	Handler     middleware.Handler[S]
	Middlewares []middleware.Middleware[S]
}

// Flatten resolves nesting into a flat list. Routes of this router come
// first in registration order, followed by each nested router depth-first.
func (r *Router[S]) Flatten(prefix string) []FlatRoute[S] {
	return r.flatten(prefix, nil, make([]FlatRoute[S], 0, r.RouteCount()))
}

func (r *Router[S]) flatten(prefix string, inherited []middleware.Middleware[S], out []FlatRoute[S]) []FlatRoute[S] {
	mws := concat(inherited, r.middlewares)
	for _, rt := range r.routes {
		out = append(out, FlatRoute[S]{
			Method:      rt.method,
			Path:        JoinPath(prefix, rt.path),
			Handler:     rt.handler,
			Middlewares: concat(mws, rt.middlewares),
		})
	}
	for _, c := range r.children {
		out = c.router.flatten(JoinPath(prefix, c.prefix), mws, out)
	}
	return out
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// JoinPath joins a mount prefix and a route path with exactly one slash
// between them. A root path under a non-empty prefix yields the prefix.
func JoinPath(prefix, path string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix != "" && prefix[0] != '/' {
		prefix = "/" + prefix
	}
	path = "/" + strings.TrimLeft(path, "/")
	if path == "/" && prefix != "" {
		return prefix
	}
	return prefix + path
}
