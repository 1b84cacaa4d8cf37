package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestUpstreamMetricsCountsOutcomesAndCost(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewUpstreamMetrics(reg)

	m.Observe(UpstreamProvider, "fipe", time.Now(), nil)
	m.Observe(UpstreamProvider, "fipe", time.Now(), errors.New("timeout"))
	m.AddCost("fipe", 30)
	m.AddCost("fipe", 0)
	m.CacheHit("enrichment")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues(UpstreamProvider, "fipe", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.calls.WithLabelValues(UpstreamProvider, "fipe", "error")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.cost.WithLabelValues("fipe")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits.WithLabelValues("enrichment")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *UpstreamMetrics
	m.Observe(UpstreamAsaas, "create_payment", time.Now(), nil)
	m.AddCost("lookup", 10)
	m.CacheHit("plate")

	unregistered := NewHTTPMetrics(nil)
	unregistered.Observe("POST", "/api/v1/get-report", 200, time.Millisecond)
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("POST", "/api/v1/search-plate-preview", 200, 10*time.Millisecond)
	m.Observe("POST", "", 404, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/api/v1/search-plate-preview", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "unmatched", "404")))
}
