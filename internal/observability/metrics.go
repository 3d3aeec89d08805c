package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the service
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	loginsTotal        *prometheus.CounterVec
	tokensIssuedTotal  *prometheus.CounterVec
	quotaDecisions     *prometheus.CounterVec
	passwordResetsSent prometheus.Counter
}

// NewMetrics creates and registers all collectors on a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		loginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_logins_total",
				Help: "Login attempts by outcome.",
			},
			[]string{"outcome"},
		),
		tokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_tokens_issued_total",
				Help: "Tokens issued by grant type.",
			},
			[]string{"grant"},
		),
		quotaDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_decisions_total",
				Help: "Quota consumption decisions by outcome and dimension.",
			},
			[]string{"outcome", "dimension"},
		),
		passwordResetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "password_resets_requested_total",
			Help: "Password reset emails dispatched.",
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.loginsTotal,
		m.tokensIssuedTotal,
		m.quotaDecisions,
		m.passwordResetsSent,
	)

	return m
}

// Handler returns the scrape endpoint handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordLogin counts a login attempt
func (m *Metrics) RecordLogin(outcome string) {
	m.loginsTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenIssued counts an issued token pair by grant type
func (m *Metrics) RecordTokenIssued(grant string) {
	m.tokensIssuedTotal.WithLabelValues(grant).Inc()
}

// RecordQuotaDecision counts a quota consumption decision
func (m *Metrics) RecordQuotaDecision(outcome, dimension string) {
	m.quotaDecisions.WithLabelValues(outcome, dimension).Inc()
}

// RecordPasswordResetRequested counts a dispatched reset email
func (m *Metrics) RecordPasswordResetRequested() {
	m.passwordResetsSent.Inc()
}

// Instrument measures request rate, latency and in-flight count. Uses the chi
// route pattern as the path label to keep cardinality bounded.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.httpInFlight.Dec()
	})
}

// statusWriter captures the response code for labeling
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
