package observability

import (
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRequest(t *testing.T) {
	m := NewMetrics("test")
	m.RecordRequest("GET", "/users/:id", 200, 5*time.Millisecond)
	m.RecordRequest("GET", "/users/:id", 200, 5*time.Millisecond)
	m.RecordRequest("GET", "", 404, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/users/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestConnectionGauges(t *testing.T) {
	m := NewMetrics("test")
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.ConnRejected()
	m.HandlerTimeout()
	m.Upgraded("websocket")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeConns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectedConns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerTimeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upgrades.WithLabelValues("websocket")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("GET", "/", 200, time.Second)
		m.ConnOpened()
		m.ConnClosed()
		m.ConnRejected()
		m.HandlerTimeout()
		m.Upgraded("h2c")
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposition(t *testing.T) {
	m := NewMetrics("test")
	m.RecordRequest("POST", "/items", 201, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `test_http_requests_total{method="POST",route="/items",status="201"} 1`))
	assert.Contains(t, string(body), "test_goroutines")
}
