package middleware_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/conduit/core/http"
	"github.com/searchktools/conduit/core/logger"
	"github.com/searchktools/conduit/core/middleware"
)

func run(mws []middleware.Middleware[struct{}], req *http.Request) *http.Response {
	h := middleware.HandlerFunc[struct{}](func(req *http.Request, _ struct{}) (*http.Response, error) {
		return http.Text(middleware.GetRequestID(req)), nil
	})
	return middleware.Build(mws, h, nil).Run(req, struct{}{})
}

func TestRequestID(t *testing.T) {
	mws := []middleware.Middleware[struct{}]{middleware.RequestID[struct{}]("")}

	resp := run(mws, http.NewRequest("GET", "/", nil))
	id := resp.Header.Get(middleware.DefaultRequestIDHeader)
	assert.Len(t, id, 36)
	assert.Equal(t, id, string(resp.Bytes()))

	req := http.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp = run(mws, req)
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestCORS(t *testing.T) {
	mws := []middleware.Middleware[struct{}]{middleware.CORS[struct{}](middleware.CORSConfig{
		AllowOrigins: []string{"https://app.example"},
		MaxAge:       time.Hour,
	})}

	preflight := http.NewRequest("OPTIONS", "/", nil)
	preflight.Header.Set("Origin", "https://app.example")
	preflight.Header.Set("Access-Control-Request-Method", "PUT")
	resp := run(mws, preflight)
	assert.Equal(t, 204, resp.Status)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "3600", resp.Header.Get("Access-Control-Max-Age"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PUT")

	other := http.NewRequest("GET", "/", nil)
	other.Header.Set("Origin", "https://evil.example")
	resp = run(mws, other)
	assert.Equal(t, 200, resp.Status)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	mws := []middleware.Middleware[struct{}]{middleware.RateLimit[struct{}](middleware.RateLimitConfig{RPS: 0.001, Burst: 2})}

	statuses := make([]int, 0, 3)
	for range 3 {
		statuses = append(statuses, run(mws, http.NewRequest("GET", "/", nil)).Status)
	}
	assert.Equal(t, []int{200, 200, 429}, statuses)

	other := http.NewRequest("GET", "/", nil)
	other.RemoteAddr = "10.0.0.9:5555"
	assert.Equal(t, 200, run(mws, other).Status)
	assert.Equal(t, "10.0.0.9", middleware.ClientIP(other))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New("json", "info", &buf)
	mws := []middleware.Middleware[struct{}]{
		middleware.RequestID[struct{}](""),
		middleware.Logger[struct{}](log),
	}

	req := http.NewRequest("GET", "/logged", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	resp := run(mws, req)
	require.Equal(t, 200, resp.Status)

	out := buf.String()
	assert.Contains(t, out, `"path":"/logged"`)
	assert.Contains(t, out, `"status":200`)
	assert.Contains(t, out, `"request_id":"rid-1"`)
}
