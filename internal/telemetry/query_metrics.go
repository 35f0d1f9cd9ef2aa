package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/medfuse/medfuse/internal/store"
)

// LatencyBucket labels a latency histogram bucket.
type LatencyBucket string

const (
	BucketUnder10ms   LatencyBucket = "lt_10ms"
	BucketUnder50ms   LatencyBucket = "lt_50ms"
	BucketUnder100ms  LatencyBucket = "lt_100ms"
	BucketUnder500ms  LatencyBucket = "lt_500ms"
	BucketUnder2s     LatencyBucket = "lt_2s"
	BucketOver2s      LatencyBucket = "gte_2s"
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketUnder10ms
	case ms < 50:
		return BucketUnder50ms
	case ms < 100:
		return BucketUnder100ms
	case ms < 500:
		return BucketUnder500ms
	case ms < 2000:
		return BucketUnder2s
	default:
		return BucketOver2s
	}
}

// QueryEvent records one completed retrieval request.
type QueryEvent struct {
	RequestID   string
	Query       string
	QueryType   string
	PathsUsed   []store.RetrievalPath
	ResultCount int
	Latency     time.Duration
	Reranked    bool
	Stage       string
	Timestamp   time.Time
}

// IsZeroResult reports whether the query returned nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// TermCount pairs a query term with its observed frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	TotalQueries        int64                          `json:"total_queries"`
	QueryTypeCounts     map[string]int64               `json:"query_type_counts"`
	PathUseCounts       map[store.RetrievalPath]int64  `json:"path_use_counts"`
	LatencyDistribution map[LatencyBucket]int64        `json:"latency_distribution"`
	TopTerms            []TermCount                    `json:"top_terms"`
	ZeroResultQueries   []string                       `json:"zero_result_queries"`
	ZeroResultCount     int64                          `json:"zero_result_count"`
	ExactRepeatCount    int64                          `json:"exact_repeat_count"`
	ExactRepeatRate     float64                        `json:"exact_repeat_rate"`
	Since               time.Time                      `json:"since"`
}

// ZeroResultRate returns the zero-result fraction in [0,1].
func (s *Snapshot) ZeroResultRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries)
}

// Config sizes the collector's bounded structures.
type Config struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
	EventHistoryCapacity  int
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		EventHistoryCapacity:  1000,
	}
}

// QueryMetrics aggregates query telemetry in memory. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.RWMutex

	queryTypes       map[string]int64
	pathUses         map[store.RetrievalPath]int64
	latencies        map[LatencyBucket]int64
	topTerms         *lru.Cache[string, int64]
	zeroResults      *CircularBuffer[string]
	events           *CircularBuffer[QueryEvent]
	recentQueries    *lru.Cache[string, struct{}]
	totalQueries     int64
	zeroResultCount  int64
	exactRepeatCount int64
	startTime        time.Time
}

// NewQueryMetrics creates a collector with default sizing.
func NewQueryMetrics() *QueryMetrics {
	return NewQueryMetricsWithConfig(DefaultConfig())
}

// NewQueryMetricsWithConfig creates a collector with explicit sizing.
func NewQueryMetricsWithConfig(cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	if cfg.EventHistoryCapacity <= 0 {
		cfg.EventHistoryCapacity = def.EventHistoryCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	return &QueryMetrics{
		queryTypes:    make(map[string]int64),
		pathUses:      make(map[store.RetrievalPath]int64),
		latencies:     make(map[LatencyBucket]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		events:        NewCircularBuffer[QueryEvent](cfg.EventHistoryCapacity),
		recentQueries: recentQueries,
		startTime:     time.Now(),
	}
}

// Record captures one query event.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	m.queryTypes[event.QueryType]++
	m.latencies[LatencyToBucket(event.Latency)]++
	for _, p := range event.PathsUsed {
		m.pathUses[p]++
	}

	for _, term := range extractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
	}

	hash := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(hash); seen {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(hash, struct{}{})

	m.events.Add(event)
}

// RecentEvents returns up to n most recent events, oldest first.
func (m *QueryMetrics) RecentEvents(n int) []QueryEvent {
	return m.events.Last(n)
}

// Snapshot returns the current aggregates.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	typeCounts := make(map[string]int64, len(m.queryTypes))
	for k, v := range m.queryTypes {
		typeCounts[k] = v
	}
	pathCounts := make(map[store.RetrievalPath]int64, len(m.pathUses))
	for k, v := range m.pathUses {
		pathCounts[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	topTerms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(topTerms, func(i, j int) bool {
		return topTerms[i].Count > topTerms[j].Count
	})

	var repeatRate float64
	if m.totalQueries > 0 {
		repeatRate = float64(m.exactRepeatCount) / float64(m.totalQueries)
	}

	return &Snapshot{
		TotalQueries:        m.totalQueries,
		QueryTypeCounts:     typeCounts,
		PathUseCounts:       pathCounts,
		LatencyDistribution: latencies,
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		ZeroResultCount:     m.zeroResultCount,
		ExactRepeatCount:    m.exactRepeatCount,
		ExactRepeatRate:     repeatRate,
		Since:               m.startTime,
	}
}

// hashQuery normalizes and hashes a query for repetition detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// extractTerms lowercases and keeps words of at least three characters.
func extractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}
