package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDecision(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDecision(true, 5*time.Millisecond)
	m.RecordDecision(true, 5*time.Millisecond)
	m.RecordDecision(false, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("deny")))
}

func TestRecordDirectoryLookup(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDirectoryLookup("role_names", time.Millisecond, nil)
	m.RecordDirectoryLookup("role_names", time.Millisecond, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoryLookupsTotal.WithLabelValues("role_names", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoryLookupsTotal.WithLabelValues("role_names", "error")))
}

func TestRecordCacheTiers(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCacheHit("l1")
	m.RecordCacheMiss("l1")
	m.RecordCacheMiss("redis")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("redis")))
}

func TestRecordHTTPRequestBucketsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordHTTPRequest("POST", "/v1/authorize", 200, time.Millisecond)
	m.RecordHTTPRequest("POST", "/v1/authorize", 204, time.Millisecond)
	m.RecordHTTPRequest("POST", "/v1/authorize", 403, time.Millisecond)
	m.RecordHTTPRequest("POST", "/v1/authorize", 503, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/authorize", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/authorize", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/authorize", "5xx")))
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordDecision(true, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gatehouse_authz_decisions_total")
}
