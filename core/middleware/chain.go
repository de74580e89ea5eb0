// Package middleware composes request handlers with the stages that wrap them.
//
// A chain is an immutable list of middleware plus a terminal handler. Each
// dispatch walks it by index: middleware i receives a Next that, when run,
// invokes middleware i+1 (or the handler). Errors and panics raised by a stage
// are converted into responses by the chain's error handler before they reach
// the stage outside it, so every middleware sees a well-formed response.
package middleware

import (
	"errors"
	"runtime/debug"
	"slices"
	"sync/atomic"

	"github.com/searchktools/conduit/core/http"
)

// ErrNextReused is reported when a middleware runs its continuation twice.
var ErrNextReused = errors.New("middleware: next invoked more than once")

// Handler is the terminal stage of a chain.
type Handler[S any] interface {
	Serve(req *http.Request, state S) (*http.Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[S any] func(req *http.Request, state S) (*http.Response, error)

func (f HandlerFunc[S]) Serve(req *http.Request, state S) (*http.Response, error) {
	return f(req, state)
}

// Middleware is one pipeline stage. Implementations are shared by every
// request and must keep no per-request state of their own.
type Middleware[S any] interface {
	Handle(req *http.Request, state S, next *Next[S]) (*http.Response, error)
}

// Func adapts a function to Middleware.
type Func[S any] func(req *http.Request, state S, next *Next[S]) (*http.Response, error)

func (f Func[S]) Handle(req *http.Request, state S, next *Next[S]) (*http.Response, error) {
	return f(req, state, next)
}

// Chain is an immutable middleware pipeline ending in a handler.
type Chain[S any] struct {
	middlewares []Middleware[S]
	handler     Handler[S]
	errors      http.ErrorHandler
}

// Build creates a chain. Middleware run in slice order; errors default to
// http.DefaultErrorHandler.
func Build[S any](middlewares []Middleware[S], handler Handler[S], errorHandler http.ErrorHandler) *Chain[S] {
	if errorHandler == nil {
		errorHandler = http.DefaultErrorHandler{}
	}
	return &Chain[S]{
		middlewares: slices.Clip(slices.Clone(middlewares)),
		handler:     handler,
		errors:      errorHandler,
	}
}

// Len returns the number of middleware in the chain.
func (c *Chain[S]) Len() int {
	return len(c.middlewares)
}

// Run dispatches req through the whole chain.
func (c *Chain[S]) Run(req *http.Request, state S) *http.Response {
	return c.invoke(0, req, state)
}

func (c *Chain[S]) invoke(i int, req *http.Request, state S) (resp *http.Response) {
	defer func() {
		if v := recover(); v != nil {
			resp = c.render(&http.PanicError{Value: v, Stack: debug.Stack()})
		}
	}()

	var err error
	if i < len(c.middlewares) {
		resp, err = c.middlewares[i].Handle(req, state, &Next[S]{chain: c, index: i + 1, state: state})
	} else {
		resp, err = c.handler.Serve(req, state)
	}
	if err != nil {
		return c.render(err)
	}
	if resp == nil {
		return http.NoContent()
	}
	return resp
}

// render converts err with the chain's error handler, falling back to the
// default handler when it produces no response.
func (c *Chain[S]) render(err error) *http.Response {
	if resp := c.errors.Handle(err); resp != nil {
		return resp
	}
	return http.DefaultErrorHandler{}.Handle(err)
}

// Next is the rest of the pipeline as seen from one middleware. It may be run
// at most once.
type Next[S any] struct {
	chain *Chain[S]
	index int
	state S
	used  atomic.Bool
}

// Run invokes the remaining stages and returns their response. A second call
// yields the error handler's rendering of ErrNextReused.
func (n *Next[S]) Run(req *http.Request) *http.Response {
	if !n.used.CompareAndSwap(false, true) {
		return n.chain.render(ErrNextReused)
	}
	return n.chain.invoke(n.index, req, n.state)
}

// ErrorHandler returns the handler that converts errors in this chain.
func (n *Next[S]) ErrorHandler() http.ErrorHandler {
	return n.chain.errors
}
