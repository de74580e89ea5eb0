package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAdd(t *testing.T, m *Matcher[string], method, pattern string) {
	t.Helper()
	require.NoError(t, m.Add(method, pattern, method+" "+pattern))
}

func TestMatcherStatic(t *testing.T) {
	m := NewMatcher[string]()
	mustAdd(t, m, "GET", "/")
	mustAdd(t, m, "GET", "/users")
	mustAdd(t, m, "GET", "/users/list")

	tests := []struct {
		path    string
		pattern string
	}{
		{"/", "/"},
		{"/users", "/users"},
		{"/users/", "/users"},
		{"/users/list", "/users/list"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			match, err := m.Find("GET", tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.pattern, match.Pattern)
			assert.Equal(t, "GET "+tt.pattern, match.Value)
			assert.Empty(t, match.Params)
		})
	}
}

func TestMatcherParams(t *testing.T) {
	m := NewMatcher[string]()
	mustAdd(t, m, "GET", "/users/:id")
	mustAdd(t, m, "GET", "/users/:id/posts/:post")
	mustAdd(t, m, "GET", "/files/*path")

	match, err := m.Find("GET", "/users/42")
	require.NoError(t, err)
	assert.Equal(t, "/users/:id", match.Pattern)
	assert.Equal(t, map[string]string{"id": "42"}, match.Params)

	match, err = m.Find("GET", "/users/42/posts/7")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "42", "post": "7"}, match.Params)

	match, err = m.Find("GET", "/files/a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "/files/*path", match.Pattern)
	assert.Equal(t, "a/b/c.txt", match.Params["path"])

	_, err = m.Find("GET", "/files")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Find("GET", "/users/42/comments")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatcherSpecificity(t *testing.T) {
	m := NewMatcher[string]()
	mustAdd(t, m, "GET", "/users/:id")
	mustAdd(t, m, "GET", "/users/me")
	mustAdd(t, m, "GET", "/users/*rest")
	mustAdd(t, m, "GET", "/:section/:id")

	tests := []struct {
		path    string
		pattern string
	}{
		{"/users/me", "/users/me"},
		{"/users/42", "/users/:id"},
		{"/users/42/settings", "/users/*rest"},
		{"/orders/42", "/:section/:id"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			match, err := m.Find("GET", tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.pattern, match.Pattern)
		})
	}
}

func TestMatcherMethodNotAllowed(t *testing.T) {
	m := NewMatcher[string]()
	mustAdd(t, m, "GET", "/items/:id")
	mustAdd(t, m, "PUT", "/items/:id")
	mustAdd(t, m, "DELETE", "/items/special")

	_, err := m.Find("POST", "/items/special")
	var mna *MethodNotAllowedError
	require.ErrorAs(t, err, &mna)
	assert.Equal(t, []string{"DELETE", "GET", "PUT"}, mna.Allowed)

	_, err = m.Find("POST", "/items/1")
	require.ErrorAs(t, err, &mna)
	assert.Equal(t, []string{"GET", "PUT"}, mna.Allowed)

	// a less specific pattern still serves a method the specific one lacks
	match, err := m.Find("GET", "/items/special")
	require.NoError(t, err)
	assert.Equal(t, "/items/:id", match.Pattern)
}

func TestMatcherHeadFallsBackToGet(t *testing.T) {
	m := NewMatcher[string]()
	mustAdd(t, m, "GET", "/ping")

	match, err := m.Find("HEAD", "/ping")
	require.NoError(t, err)
	assert.Equal(t, "GET", match.Method)

	mustAdd(t, m, "HEAD", "/ping")
	match, err = m.Find("HEAD", "/ping")
	require.NoError(t, err)
	assert.Equal(t, "HEAD", match.Method)
	assert.Equal(t, "HEAD /ping", match.Value)
}

func TestMatcherBuildErrors(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
		method string
		err    error
	}{
		{"duplicate", "/a/:id", "/a/:id", "GET", ErrDuplicateRoute},
		{"duplicate trailing slash", "/a/b", "/a/b/", "GET", ErrDuplicateRoute},
		{"renamed param", "/a/:id", "/a/:name", "GET", ErrAmbiguousRoute},
		{"mirrored", "/:x/b", "/a/:y", "GET", ErrAmbiguousRoute},
		{"different method", "/a/:id", "/a/:id", "POST", nil},
		{"disjoint literals", "/:x/b", "/a/:y/c", "GET", nil},
		{"more specific", "/a/:id", "/a/b", "GET", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher[string]()
			require.NoError(t, m.Add("GET", tt.first, "first"))
			err := m.Add(tt.method, tt.second, "second")
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMatcherInvalidPatterns(t *testing.T) {
	for _, p := range []string{"", "users", "/a//b", "/a/:", "/a/*", "/a/*rest/b", "/a/:b:c"} {
		err := NewMatcher[int]().Add("GET", p, 0)
		assert.True(t, errors.Is(err, ErrInvalidPattern), "pattern %q: %v", p, err)
	}
}

func TestMatcherRoutes(t *testing.T) {
	m := NewMatcher[string]()
	mustAdd(t, m, "POST", "/b")
	mustAdd(t, m, "GET", "/b")
	mustAdd(t, m, "GET", "/a/:id")

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []RouteInfo{
		{Method: "GET", Pattern: "/a/:id"},
		{Method: "GET", Pattern: "/b"},
		{Method: "POST", Pattern: "/b"},
	}, m.Routes())
}
