package reliability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObservePath("vector", 20*time.Millisecond, false)
	m.ObservePath("vector", 30*time.Millisecond, true)
	m.ObserveRerankCache(true)
	m.ObserveRerankCache(false)
	m.ObserveRerankCache(false)
	m.SetBreakerState("vector", StateOpen)
	m.ObserveStageStop("quality_threshold")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.pathRequests.WithLabelValues("vector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pathFailures.WithLabelValues("vector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rerankCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rerankCache.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breakerState.WithLabelValues("vector")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageStops.WithLabelValues("quality_threshold")))
}
