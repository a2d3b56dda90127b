package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsDeletedTotal  *prometheus.CounterVec
	SessionDecodeFailures prometheus.Counter
	ForcedLogoutsTotal    prometheus.Counter
	LoginsTotal           *prometheus.CounterVec
	ReconcileDuration     prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Inspection metrics
	PhotosUploadedTotal *prometheus.CounterVec
	ReportsRendered     *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Session metrics
		SessionsDeletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cda_sessions_deleted_total",
				Help: "Total number of session records deleted, by reason",
			},
			[]string{"reason"},
		),
		SessionDecodeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cda_session_decode_failures_total",
				Help: "Total number of stored sessions skipped because their payload could not be decoded",
			},
		),
		ForcedLogoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cda_forced_logouts_total",
				Help: "Total number of requests logged out because a newer login superseded them",
			},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cda_logins_total",
				Help: "Total number of login attempts, by outcome",
			},
			[]string{"outcome"},
		),
		ReconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cda_session_reconcile_duration_seconds",
				Help:    "Duration of per-request session reconciliation in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cda_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cda_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		// Inspection metrics
		PhotosUploadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cda_photos_uploaded_total",
				Help: "Total number of photos stored, by source",
			},
			[]string{"source"},
		),
		ReportsRendered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cda_reports_rendered_total",
				Help: "Total number of PDF reports rendered, by kind and status",
			},
			[]string{"kind", "status"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.SessionsDeletedTotal)
	m.registry.MustRegister(m.SessionDecodeFailures)
	m.registry.MustRegister(m.ForcedLogoutsTotal)
	m.registry.MustRegister(m.LoginsTotal)
	m.registry.MustRegister(m.ReconcileDuration)

	m.registry.MustRegister(m.HTTPRequestsTotal)
	m.registry.MustRegister(m.HTTPRequestDuration)

	m.registry.MustRegister(m.PhotosUploadedTotal)
	m.registry.MustRegister(m.ReportsRendered)
}

// SessionsDeleted implements sessions.Metrics
func (m *Metrics) SessionsDeleted(reason string, n int) {
	m.SessionsDeletedTotal.WithLabelValues(reason).Add(float64(n))
}

// DecodeFailures implements sessions.Metrics
func (m *Metrics) DecodeFailures(n int) {
	m.SessionDecodeFailures.Add(float64(n))
}

// ForcedLogout implements sessions.Metrics
func (m *Metrics) ForcedLogout() {
	m.ForcedLogoutsTotal.Inc()
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
