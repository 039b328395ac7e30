package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the authorization service
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization decision metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration prometheus.Histogram

	// Directory lookup metrics
	DirectoryLookupsTotal   *prometheus.CounterVec
	DirectoryLookupDuration *prometheus.HistogramVec

	// Role lookup cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"outcome"},
		),
		DecisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gatehouse_authz_decision_duration_seconds",
				Help:    "Authorization decision duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		DirectoryLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_directory_lookups_total",
				Help: "Total number of role directory lookups",
			},
			[]string{"operation", "status"},
		),
		DirectoryLookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_directory_lookup_duration_seconds",
				Help:    "Role directory lookup duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_hits_total",
				Help: "Total number of role lookup cache hits",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_misses_total",
				Help: "Total number of role lookup cache misses",
			},
			[]string{"tier"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.DecisionDuration,
		m.DirectoryLookupsTotal,
		m.DirectoryLookupDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordDecision records an authorization decision outcome and latency
func (m *Metrics) RecordDecision(allowed bool, elapsed time.Duration) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	m.DecisionsTotal.WithLabelValues(outcome).Inc()
	m.DecisionDuration.Observe(elapsed.Seconds())
}

// RecordDirectoryLookup records a role directory read
func (m *Metrics) RecordDirectoryLookup(operation string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.DirectoryLookupsTotal.WithLabelValues(operation, status).Inc()
	m.DirectoryLookupDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordCacheHit records a role lookup cache hit for the given tier
// ("l1" or "redis")
func (m *Metrics) RecordCacheHit(tier string) {
	m.CacheHitsTotal.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a role lookup cache miss for the given tier
func (m *Metrics) RecordCacheMiss(tier string) {
	m.CacheMissesTotal.WithLabelValues(tier).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, httpStatusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func httpStatusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
