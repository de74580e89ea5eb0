package router

import (
	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/middleware"
)

// Route is a single route with middleware that applies to it alone. Its
// middleware runs after global and router-level middleware.
type Route[S any] struct {
	method      string
	path        string
	handler     middleware.Handler[S]
	middlewares []middleware.Middleware[S]
}

// NewRoute creates a route for method and path.
func NewRoute[S any](method, path string, h middleware.Handler[S]) *Route[S] {
	return &Route[S]{method: method, path: path, handler: h}
}

// Get creates a GET route.
func Get[S any](path string, h middleware.HandlerFunc[S]) *Route[S] {
	return NewRoute[S](http.MethodGet, path, h)
}

// Post creates a POST route.
func Post[S any](path string, h middleware.HandlerFunc[S]) *Route[S] {
	return NewRoute[S](http.MethodPost, path, h)
}

// Layer appends route-specific middleware.
func (rt *Route[S]) Layer(mws ...middleware.Middleware[S]) *Route[S] {
	rt.middlewares = append(rt.middlewares, mws...)
	return rt
}

func (rt *Route[S]) Method() string { return rt.method }
func (rt *Route[S]) Path() string   { return rt.path }
