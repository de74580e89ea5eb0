package middleware

import (
	"strings"

	"github.com/searchktools/conduit/core/http"
)

// When runs mw only for requests matching pred; other requests go straight to
// the next stage.
func When[S any](pred func(*http.Request) bool, mw Middleware[S]) Middleware[S] {
	return Func[S](func(req *http.Request, state S, next *Next[S]) (*http.Response, error) {
		if pred(req) {
			return mw.Handle(req, state, next)
		}
		return next.Run(req), nil
	})
}

// Combine groups several middleware into one stage that runs them in order.
func Combine[S any](mws ...Middleware[S]) Middleware[S] {
	mws = append([]Middleware[S](nil), mws...)
	return Func[S](func(req *http.Request, state S, next *Next[S]) (*http.Response, error) {
		inner := &Chain[S]{
			middlewares: mws,
			handler: HandlerFunc[S](func(r *http.Request, _ S) (*http.Response, error) {
				return next.Run(r), nil
			}),
			errors: next.ErrorHandler(),
		}
		return inner.Run(req, state), nil
	})
}

// Method matches requests with the given method, for use with When.
func Method(method string) func(*http.Request) bool {
	return func(req *http.Request) bool {
		return req.Method == method
	}
}

// PathPrefix matches requests under prefix, for use with When.
func PathPrefix(prefix string) func(*http.Request) bool {
	return func(req *http.Request) bool {
		return strings.HasPrefix(req.Path(), prefix)
	}
}
