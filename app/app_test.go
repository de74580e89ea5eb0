package app

import (
	"bytes"
	"context"
	"io"
	"net"
	nethttp "net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/conduit/config"
	"github.com/searchktools/conduit/core/http"
)

type state struct {
	greeting string
}

// syncBuffer guards log output written from connection goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startApp(t *testing.T, cfg *config.Config, register func(*App[*state])) (string, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	a := New(cfg, &state{greeting: "hello"}, WithLogOutput(out))
	register(a)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return "http://" + ln.Addr().String(), out
}

func get(t *testing.T, url string, header map[string]string) (*nethttp.Response, string) {
	t.Helper()
	req, err := nethttp.NewRequest(nethttp.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestAppServesWithStandardMiddleware(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "json"
	base, logs := startApp(t, cfg, func(a *App[*state]) {
		a.Routes().Get("/hello/:name", func(req *http.Request, s *state) (*http.Response, error) {
			return http.Text(s.greeting + " " + req.Param("name")), nil
		})
	})

	resp, body := get(t, base+"/hello/ada", map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hello ada", body)
	assert.Equal(t, "req-1", resp.Header.Get("X-Request-ID"))

	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(logs.String()), []byte(`"request_id":"req-1"`))
	}, time.Second, 10*time.Millisecond)
}

func TestAppMetricsAndCORS(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "apptest"
	cfg.CORS.AllowedOrigins = []string{"https://ui.example"}
	base, _ := startApp(t, cfg, func(a *App[*state]) {
		require.NotNil(t, a.Metrics())
		a.Routes().Get("/ping", func(*http.Request, *state) (*http.Response, error) {
			return http.Text("pong"), nil
		})
	})

	resp, _ := get(t, base+"/ping", map[string]string{"Origin": "https://ui.example"})
	assert.Equal(t, "https://ui.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := nethttp.NewRequest(nethttp.MethodOptions, base+"/ping", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	pre, err := nethttp.DefaultClient.Do(req)
	require.NoError(t, err)
	pre.Body.Close()
	assert.Equal(t, 204, pre.StatusCode)
	assert.Equal(t, "https://ui.example", pre.Header.Get("Access-Control-Allow-Origin"))

	resp, body := get(t, base+"/metrics", nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, body, `apptest_http_requests_total{method="GET",route="/ping",status="200"} 1`)
}

func TestAppRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 1
	base, _ := startApp(t, cfg, func(a *App[*state]) {
		a.Routes().Get("/", func(*http.Request, *state) (*http.Response, error) {
			return http.Text("ok"), nil
		})
	})

	resp, _ := get(t, base+"/", nil)
	assert.Equal(t, 200, resp.StatusCode)
	resp, _ = get(t, base+"/", nil)
	assert.Equal(t, 429, resp.StatusCode)
}

func TestAppBuildError(t *testing.T) {
	a := New(config.Default(), &state{}, WithLogOutput(io.Discard))
	h := func(*http.Request, *state) (*http.Response, error) { return http.Text("x"), nil }
	a.Routes().Get("/a/:x", h).Get("/a/:y", h)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Error(t, a.Serve(context.Background(), ln))
}
