package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsCountsOutcomes(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	const job = "legacy-report-poll"

	m.IncSuccess(job)
	m.IncFailure(job)
	m.IncSkipped(job)
	m.IncSkipped(job)
	m.IncSuccess("")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, cronOutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, cronOutcomeFailure)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues(job, cronOutcomeSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", cronOutcomeSuccess)))
}

func TestCronJobMetricsObservesDuration(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.ObserveDuration("outbox-retention", 250*time.Millisecond)
	m.ObserveDuration("outbox-retention", 2*time.Second)

	observer, err := m.duration.GetMetricWithLabelValues("outbox-retention")
	require.NoError(t, err)
	var out dto.Metric
	require.NoError(t, observer.(prometheus.Metric).Write(&out))
	assert.EqualValues(t, 2, out.GetHistogram().GetSampleCount())
	assert.InDelta(t, 2.25, out.GetHistogram().GetSampleSum(), 1e-9)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.IncSkipped("x")
	m.ObserveDuration("x", time.Second)
	NewCronJobMetrics(nil).IncSuccess("x")
}
