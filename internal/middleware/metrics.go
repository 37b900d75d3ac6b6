package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stagepass/audioscan/internal/domain/scanerrors"
	"github.com/stagepass/audioscan/internal/domain/scans"
)

// Metrics holds the HTTP and moderation collectors on a private registry.
// It satisfies the scans application Recorder.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestsInProgress prometheus.Gauge
	requestDuration    *prometheus.HistogramVec

	scansSubmitted   prometheus.Counter
	scansReconciled  *prometheus.CounterVec
	scansReviewed    *prometheus.CounterVec
	gatewayErrors    *prometheus.CounterVec
	releaseStatusSet *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors, plus the Go runtime ones.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audioscan_http_requests_total",
		Help: "Total HTTP requests by route and status code",
	}, []string{"method", "route", "code"})
	m.requestsInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audioscan_http_requests_in_progress",
		Help: "HTTP requests currently being served",
	})
	m.requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audioscan_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.scansSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audioscan_scans_submitted_total",
		Help: "Scan records created after a successful detector submission",
	})
	m.scansReconciled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audioscan_scans_reconciled_total",
		Help: "Scan records moved to a terminal status, by status",
	}, []string{"status"})
	m.scansReviewed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audioscan_scans_reviewed_total",
		Help: "Admin review decisions, by decision",
	}, []string{"decision"})
	m.gatewayErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audioscan_detector_errors_total",
		Help: "Detector gateway failures, by phase",
	}, []string{"phase"})
	m.releaseStatusSet = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audioscan_release_status_changes_total",
		Help: "Release audio scan status transitions, by target status",
	}, []string{"status"})

	for _, c := range []prometheus.Collector{
		m.requestsTotal, m.requestsInProgress, m.requestDuration,
		m.scansSubmitted, m.scansReconciled, m.scansReviewed, m.gatewayErrors, m.releaseStatusSet,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware tracks request metrics keyed by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.requestsInProgress.Inc()
		defer m.requestsInProgress.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ScanSubmitted() { m.scansSubmitted.Inc() }

func (m *Metrics) ScanReconciled(status scans.ScanStatus) {
	m.scansReconciled.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ScanReviewed(decision scans.Decision) {
	m.scansReviewed.WithLabelValues(string(decision)).Inc()
}

func (m *Metrics) GatewayError(phase scanerrors.Phase) {
	m.gatewayErrors.WithLabelValues(string(phase)).Inc()
}

func (m *Metrics) ReleaseStatusChanged(to scans.ReleaseStatus) {
	m.releaseStatusSet.WithLabelValues(string(to)).Inc()
}
