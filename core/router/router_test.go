package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/middleware"
	"github.com/searchktools/conduit/core/router"
)

type tag string

func (t tag) Handle(req *http.Request, state int, next *middleware.Next[int]) (*http.Response, error) {
	return next.Run(req), nil
}

func handler(req *http.Request, state int) (*http.Response, error) {
	return http.Text("ok"), nil
}

func names(mws []middleware.Middleware[int]) []string {
	out := make([]string, 0, len(mws))
	for _, mw := range mws {
		out = append(out, string(mw.(tag)))
	}
	return out
}

func TestFlattenNested(t *testing.T) {
	leaf := router.New[int]().
		Layer(tag("leaf")).
		Get("/detail", handler)

	mid := router.New[int]().
		Layer(tag("mid")).
		Get("/", handler).
		Nest("/inner", leaf)

	root := router.New[int]().
		Layer(tag("root")).
		Route(router.Get("/health", handler).Layer(tag("route"))).
		Nest("/api/", mid)

	flat := root.Flatten("")
	require.Len(t, flat, 3)
	assert.Equal(t, 3, root.RouteCount())

	assert.Equal(t, "/health", flat[0].Path)
	assert.Equal(t, []string{"root", "route"}, names(flat[0].Middlewares))

	assert.Equal(t, "/api", flat[1].Path)
	assert.Equal(t, []string{"root", "mid"}, names(flat[1].Middlewares))

	assert.Equal(t, "GET", flat[2].Method)
	assert.Equal(t, "/api/inner/detail", flat[2].Path)
	assert.Equal(t, []string{"root", "mid", "leaf"}, names(flat[2].Middlewares))
}

func TestFlattenLayerAfterRoutes(t *testing.T) {
	r := router.New[int]().Post("/a", handler).Layer(tag("late"))

	flat := r.Flatten("/v1")
	require.Len(t, flat, 1)
	assert.Equal(t, "/v1/a", flat[0].Path)
	assert.Equal(t, []string{"late"}, names(flat[0].Middlewares))
}

func TestFlattenDoesNotShareSlices(t *testing.T) {
	r := router.New[int]().Layer(tag("x")).Get("/a", handler).Get("/b", handler)
	flat := r.Flatten("")
	require.Len(t, flat, 2)

	flat[0].Middlewares = append(flat[0].Middlewares, tag("extra"))
	assert.Equal(t, []string{"x"}, names(flat[1].Middlewares))
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		prefix, path, want string
	}{
		{"", "/users", "/users"},
		{"", "/", "/"},
		{"/api", "/", "/api"},
		{"/api", "", "/api"},
		{"/api/", "/users", "/api/users"},
		{"/api", "users", "/api/users"},
		{"api", "/users", "/api/users"},
		{"/", "/users", "/users"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, router.JoinPath(tt.prefix, tt.path), "%q + %q", tt.prefix, tt.path)
	}
}
