// Package metrics exposes Prometheus metrics for the gateway.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telnet2/ragdocs-gateway/internal/event"
)

const namespace = "ragdocs_gateway"

// Removal reasons used as the "reason" label.
const (
	ReasonClosed  = "closed"
	ReasonEvicted = "evicted"
	ReasonDrained = "drained"
)

// Metrics contains all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsRejected prometheus.Counter
	SessionsRemoved  *prometheus.CounterVec
	SessionLifetime  prometheus.Histogram
	EvictionIdle     prometheus.Histogram

	// Message metrics
	MessagesForwarded prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// New creates all metrics on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Current number of registered sessions",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions attached and registered",
		}),
		SessionsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Total number of transports the engine refused",
		}),
		SessionsRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_removed_total",
			Help:      "Total number of sessions removed, by reason",
		}, []string{"reason"}),
		SessionLifetime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_lifetime_seconds",
			Help:      "Age of sessions when they were removed",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}),
		EvictionIdle: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_eviction_idle_seconds",
			Help:      "Idle time of sessions removed by the sweep",
			Buckets:   prometheus.LinearBuckets(1800, 300, 8), // 30m to 65m
		}),

		MessagesForwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_forwarded_total",
			Help:      "Total number of messages routed to a session",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP responses with status >= 400",
		}, []string{"method", "endpoint", "status_code"}),
	}
}

// Registry returns the private registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe applies one lifecycle event to the metrics.
func (m *Metrics) Observe(e event.Event) {
	switch e.Type {
	case event.SessionCreated:
		m.SessionsCreated.Inc()
		m.ActiveSessions.Set(float64(e.Active))
	case event.SessionRejected:
		m.SessionsRejected.Inc()
	case event.SessionClosed:
		m.RecordSessionRemoved(ReasonClosed, e.Lifetime)
		m.ActiveSessions.Set(float64(e.Active))
	case event.SessionEvicted:
		m.RecordSessionRemoved(ReasonEvicted, e.Lifetime)
		m.EvictionIdle.Observe(e.Idle.Seconds())
		m.ActiveSessions.Set(float64(e.Active))
	case event.SessionsDrained:
		m.SessionsRemoved.WithLabelValues(ReasonDrained).Add(float64(e.Count))
		m.ActiveSessions.Set(0)
	case event.MessageForwarded:
		m.MessagesForwarded.Inc()
	}
}

// Attach subscribes the metrics to every event on bus.
// Returns an unsubscribe function.
func (m *Metrics) Attach(bus *event.Bus) func() {
	return bus.SubscribeAll(m.Observe)
}

// RecordSessionRemoved counts a removal and records the session lifetime.
func (m *Metrics) RecordSessionRemoved(reason string, lifetime time.Duration) {
	m.SessionsRemoved.WithLabelValues(reason).Inc()
	m.SessionLifetime.Observe(lifetime.Seconds())
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	code := fmt.Sprintf("%d", statusCode)
	m.HTTPRequests.WithLabelValues(method, endpoint, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	if statusCode >= 400 {
		m.HTTPErrors.WithLabelValues(method, endpoint, code).Inc()
	}
}

// Middleware records request metrics labelled by the matched chi route
// pattern. The wrapped writer keeps Flush and Hijack working for streams.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordHTTPRequest(r.Method, endpoint, status, time.Since(start))
	})
}
