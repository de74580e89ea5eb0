// Package observability exposes server metrics in Prometheus format.
//
// All Metrics methods accept a nil receiver and do nothing, so components can
// record unconditionally whether or not metrics are enabled.
package observability

import (
	nethttp "net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors recorded by the server.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	activeConns     prometheus.Gauge
	rejectedConns   prometheus.Counter
	handlerTimeouts prometheus.Counter
	upgrades        *prometheus.CounterVec
	goroutines      prometheus.GaugeFunc
}

// NewMetrics creates collectors under namespace and registers them, together
// with the Go and process collectors, on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "conduit"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests dispatched, by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time from routing to a response being produced.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently being served.",
		}),
		rejectedConns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections closed on accept because the limit was reached.",
		}),
		handlerTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_timeouts_total",
			Help:      "Requests answered with 504 because the handler ran too long.",
		}),
		upgrades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upgrades_total",
			Help:      "Connections handed over to an upgrade handler, by protocol.",
		}, []string{"protocol"}),
		goroutines: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines",
			Help:      "Number of goroutines.",
		}, func() float64 { return float64(runtime.NumGoroutine()) }),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.activeConns,
		m.rejectedConns,
		m.handlerTimeouts,
		m.upgrades,
		m.goroutines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRequest records one dispatched request. route is the matched pattern,
// or "" for unmatched requests.
func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.activeConns.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.activeConns.Dec()
	}
}

func (m *Metrics) ConnRejected() {
	if m != nil {
		m.rejectedConns.Inc()
	}
}

func (m *Metrics) HandlerTimeout() {
	if m != nil {
		m.handlerTimeouts.Inc()
	}
}

func (m *Metrics) Upgraded(protocol string) {
	if m == nil {
		return
	}
	if protocol == "" {
		protocol = "unknown"
	}
	m.upgrades.WithLabelValues(protocol).Inc()
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() nethttp.Handler {
	if m == nil {
		return nethttp.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
