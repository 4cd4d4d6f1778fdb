// ABOUTME: Prometheus collectors for HTTP traffic, tool executions, auth attempts and cache stats
// ABOUTME: Uses a private registry exposed through Handler

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the gateway's collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	toolExecutions      *prometheus.CounterVec
	toolDuration        *prometheus.HistogramVec
	authAttempts        *prometheus.CounterVec
}

// New creates and registers every collector, including Go runtime and process stats.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		toolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tool_executions_total",
			Help: "Tool executions by tool and status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tool_execution_duration_seconds",
			Help:    "Tool execution latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Authentication manager outcomes by operation and status.",
		}, []string{"operation", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.toolExecutions,
		m.toolDuration,
		m.authAttempts,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAuth counts an authentication outcome.
func (m *Metrics) ObserveAuth(operation string, success bool) {
	m.authAttempts.WithLabelValues(operation, status(success)).Inc()
}

// ObserveTool records one tool execution.
func (m *Metrics) ObserveTool(tool string, success bool, d time.Duration) {
	m.toolExecutions.WithLabelValues(tool, status(success)).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Instrument records request count, latency and in-flight gauge. The path
// label is the chi route pattern so ids in URLs do not explode cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		code := strconv.Itoa(StatusOf(ww))
		m.httpRequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, code).Inc()
	})
}

// StatusOf returns the status written through ww, treating a handler that
// wrote nothing as 200.
func StatusOf(ww middleware.WrapResponseWriter) int {
	if code := ww.Status(); code != 0 {
		return code
	}
	return http.StatusOK
}
