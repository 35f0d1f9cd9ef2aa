package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medfuse/medfuse/internal/store"
)

func TestCircularBufferFIFO(t *testing.T) {
	buf := NewCircularBuffer[int](3)
	assert.Empty(t, buf.Items())

	buf.Add(1)
	buf.Add(2)
	assert.Equal(t, []int{1, 2}, buf.Items())
	assert.Equal(t, 2, buf.Size())

	buf.Add(3)
	buf.Add(4) // evicts 1
	assert.Equal(t, []int{2, 3, 4}, buf.Items())

	assert.Equal(t, []int{3, 4}, buf.Last(2))
	assert.Equal(t, []int{2, 3, 4}, buf.Last(10))

	buf.Clear()
	assert.Equal(t, 0, buf.Size())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketUnder10ms},
		{20 * time.Millisecond, BucketUnder50ms},
		{80 * time.Millisecond, BucketUnder100ms},
		{300 * time.Millisecond, BucketUnder500ms},
		{time.Second, BucketUnder2s},
		{5 * time.Second, BucketOver2s},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), "latency %v", tt.latency)
	}
}

func TestQueryMetricsRecord(t *testing.T) {
	m := NewQueryMetrics()

	m.Record(QueryEvent{
		Query:       "metformin dosing",
		QueryType:   "numerical",
		PathsUsed:   []store.RetrievalPath{store.PathVector, store.PathKeywords},
		ResultCount: 5,
		Latency:     30 * time.Millisecond,
	})
	m.Record(QueryEvent{
		Query:       "unknown rare syndrome",
		QueryType:   "factual",
		PathsUsed:   []store.RetrievalPath{store.PathVector},
		ResultCount: 0,
		Latency:     200 * time.Millisecond,
	})

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.QueryTypeCounts["numerical"])
	assert.Equal(t, int64(2), snap.PathUseCounts[store.PathVector])
	assert.Equal(t, int64(1), snap.PathUseCounts[store.PathKeywords])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketUnder50ms])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketUnder500ms])

	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"unknown rare syndrome"}, snap.ZeroResultQueries)
	assert.InDelta(t, 0.5, snap.ZeroResultRate(), 1e-9)
}

func TestQueryMetricsTopTerms(t *testing.T) {
	m := NewQueryMetrics()

	for i := 0; i < 3; i++ {
		m.Record(QueryEvent{Query: "insulin resistance", ResultCount: 1})
	}
	m.Record(QueryEvent{Query: "insulin pump", ResultCount: 1})

	snap := m.Snapshot()
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, "insulin", snap.TopTerms[0].Term)
	assert.Equal(t, int64(4), snap.TopTerms[0].Count)
}

func TestQueryMetricsExactRepeats(t *testing.T) {
	m := NewQueryMetrics()

	m.Record(QueryEvent{Query: "Sepsis Protocol", ResultCount: 1})
	// Repetition detection is case and whitespace insensitive.
	m.Record(QueryEvent{Query: "  sepsis protocol ", ResultCount: 1})
	m.Record(QueryEvent{Query: "different query", ResultCount: 1})

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.InDelta(t, 1.0/3.0, snap.ExactRepeatRate, 1e-9)
}

func TestQueryMetricsEventHistoryBounded(t *testing.T) {
	m := NewQueryMetricsWithConfig(Config{EventHistoryCapacity: 5})

	for i := 0; i < 10; i++ {
		m.Record(QueryEvent{Query: fmt.Sprintf("query %d", i), ResultCount: 1})
	}

	events := m.RecentEvents(100)
	require.Len(t, events, 5)
	assert.Equal(t, "query 5", events[0].Query)
	assert.Equal(t, "query 9", events[4].Query)
}
