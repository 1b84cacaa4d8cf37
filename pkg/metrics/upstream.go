package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Upstream names used as label values.
const (
	UpstreamProvider = "vehicle_provider"
	UpstreamAsaas    = "asaas"
	UpstreamMeta     = "meta_capi"
)

// UpstreamMetrics tracks calls to the vehicle-data provider, the payment
// gateway and the conversions relay, plus provider cost accrued by the pipeline.
type UpstreamMetrics struct {
	calls     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	cost      *prometheus.CounterVec
	cacheHits *prometheus.CounterVec
}

func NewUpstreamMetrics(reg prometheus.Registerer) *UpstreamMetrics {
	if reg == nil {
		return &UpstreamMetrics{}
	}
	calls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placa_upstream_calls_total",
		Help: "Calls to external APIs by upstream, operation and outcome.",
	}, []string{"upstream", "operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "placa_upstream_call_duration_seconds",
		Help:    "Latency of external API calls.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"upstream", "operation"})
	cost := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placa_provider_cost_cents_total",
		Help: "Provider cost incurred, in cents, by call kind.",
	}, []string{"kind"})
	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "placa_cache_hits_total",
		Help: "Requests served from cached lookups or enrichments.",
	}, []string{"cache"})
	reg.MustRegister(calls, duration, cost, cacheHits)
	return &UpstreamMetrics{calls: calls, duration: duration, cost: cost, cacheHits: cacheHits}
}

// Observe records one finished call.
func (m *UpstreamMetrics) Observe(upstream, operation string, started time.Time, err error) {
	if m == nil || m.calls == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(upstream, operation, outcome).Inc()
	m.duration.WithLabelValues(upstream, operation).Observe(time.Since(started).Seconds())
}

// AddCost accrues provider cost for a call kind (lookup, fipe, renainf).
func (m *UpstreamMetrics) AddCost(kind string, cents int64) {
	if m == nil || m.cost == nil || cents <= 0 {
		return
	}
	m.cost.WithLabelValues(normalizeLabel(kind)).Add(float64(cents))
}

// CacheHit counts a request that avoided provider calls.
func (m *UpstreamMetrics) CacheHit(cache string) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(normalizeLabel(cache)).Inc()
}
