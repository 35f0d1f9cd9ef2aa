package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceTrackerStats(t *testing.T) {
	pt := NewPerformanceTracker(100)

	for i := 1; i <= 100; i++ {
		pt.Record("vector", time.Duration(i)*time.Millisecond, false)
	}

	stats := pt.Stats("vector")
	assert.Equal(t, 100, stats.Count)
	assert.Equal(t, time.Millisecond, stats.Min)
	assert.Equal(t, 100*time.Millisecond, stats.Max)
	assert.Equal(t, 50*time.Millisecond, stats.P50)
	assert.Equal(t, 95*time.Millisecond, stats.P95)
	assert.Equal(t, 99*time.Millisecond, stats.P99)
	assert.Equal(t, 0, stats.Failures)
}

func TestPerformanceTrackerBounded(t *testing.T) {
	pt := NewPerformanceTracker(10)

	for i := 0; i < 50; i++ {
		pt.Record("bm25:content", time.Millisecond, i%2 == 0)
	}

	stats := pt.Stats("bm25:content")
	assert.Equal(t, 10, stats.Count)
}

func TestPerformanceTrackerUnknownOperation(t *testing.T) {
	pt := NewPerformanceTracker(10)
	assert.Equal(t, LatencyStats{}, pt.Stats("absent"))
	assert.Empty(t, pt.Operations())
}

func TestErrorTrackerAlerts(t *testing.T) {
	et := NewErrorTracker(10, nil)

	var alerted []ErrorRecord
	et.OnCriticalError(func(rec ErrorRecord) { alerted = append(alerted, rec) })

	et.Track("rerank", "timeout", SeverityWarning, errors.New("deadline exceeded"))
	et.Track("vector", "connection", SeverityCritical, errors.New("store unreachable"))
	et.Track("vector", "connection", SeverityInfo, nil) // nil errors are ignored

	assert.Equal(t, int64(1), et.Count("rerank"))
	assert.Equal(t, int64(1), et.Count("vector"))

	require.Len(t, alerted, 1)
	assert.Equal(t, "vector", alerted[0].Component)

	recent := et.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "rerank", recent[0].Component)
}

func TestHealthMonitorAggregation(t *testing.T) {
	m := NewHealthMonitor()

	m.Register("vector", func(ctx context.Context) (bool, error) { return false, nil })
	m.Register("bm25", func(ctx context.Context) (bool, error) {
		return true, errors.New("one field index empty")
	})

	report := m.Check(context.Background())
	assert.Equal(t, HealthDegraded, report.Overall)
	require.Len(t, report.Components, 2)

	m.Register("rerank", func(ctx context.Context) (bool, error) {
		return false, errors.New("api down")
	})
	report = m.Check(context.Background())
	assert.Equal(t, HealthUnhealthy, report.Overall)

	ch, ok := m.Last("vector")
	require.True(t, ok)
	assert.Equal(t, HealthHealthy, ch.Status)
}

func TestHealthMonitorEmpty(t *testing.T) {
	m := NewHealthMonitor()
	report := m.Check(context.Background())
	assert.Equal(t, HealthUnknown, report.Overall)
	assert.Empty(t, report.Components)
}
