package reliability

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/medfuse/medfuse/internal/telemetry"
)

// sample is one recorded operation latency.
type sample struct {
	latency time.Duration
	at      time.Time
	failed  bool
}

// LatencyStats summarizes recorded latencies for one operation.
type LatencyStats struct {
	Count     int           `json:"count"`
	Failures  int           `json:"failures"`
	Min       time.Duration `json:"min"`
	Max       time.Duration `json:"max"`
	Avg       time.Duration `json:"avg"`
	P50       time.Duration `json:"p50"`
	P95       time.Duration `json:"p95"`
	P99       time.Duration `json:"p99"`
}

// PerformanceTracker keeps bounded per-operation latency samples and
// computes percentile summaries. Safe for concurrent use.
type PerformanceTracker struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*telemetry.CircularBuffer[sample]
	now      func() time.Time
}

// NewPerformanceTracker creates a tracker keeping up to capacity samples
// per operation. A non-positive capacity defaults to 1000.
func NewPerformanceTracker(capacity int) *PerformanceTracker {
	if capacity <= 0 {
		capacity = 1000
	}
	return &PerformanceTracker{
		capacity: capacity,
		series:   make(map[string]*telemetry.CircularBuffer[sample]),
		now:      time.Now,
	}
}

// Record adds one latency sample for the named operation.
func (t *PerformanceTracker) Record(operation string, latency time.Duration, failed bool) {
	t.mu.Lock()
	buf, ok := t.series[operation]
	if !ok {
		buf = telemetry.NewCircularBuffer[sample](t.capacity)
		t.series[operation] = buf
	}
	t.mu.Unlock()

	buf.Add(sample{latency: latency, at: t.now(), failed: failed})
}

// Stats summarizes all samples recorded for the operation.
func (t *PerformanceTracker) Stats(operation string) LatencyStats {
	return t.StatsSince(operation, time.Time{})
}

// StatsSince summarizes samples recorded at or after cutoff. A zero cutoff
// includes everything still buffered.
func (t *PerformanceTracker) StatsSince(operation string, cutoff time.Time) LatencyStats {
	t.mu.RLock()
	buf, ok := t.series[operation]
	t.mu.RUnlock()
	if !ok {
		return LatencyStats{}
	}

	var latencies []time.Duration
	var failures int
	var sum time.Duration
	for _, s := range buf.Items() {
		if !cutoff.IsZero() && s.at.Before(cutoff) {
			continue
		}
		latencies = append(latencies, s.latency)
		sum += s.latency
		if s.failed {
			failures++
		}
	}
	if len(latencies) == 0 {
		return LatencyStats{}
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	return LatencyStats{
		Count:    len(latencies),
		Failures: failures,
		Min:      latencies[0],
		Max:      latencies[len(latencies)-1],
		Avg:      sum / time.Duration(len(latencies)),
		P50:      percentile(latencies, 0.50),
		P95:      percentile(latencies, 0.95),
		P99:      percentile(latencies, 0.99),
	}
}

// Operations returns the tracked operation names, sorted.
func (t *PerformanceTracker) Operations() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ops := make([]string, 0, len(t.series))
	for op := range t.series {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// percentile uses the nearest-rank method over a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Severity grades a recorded error.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ErrorRecord is one tracked failure.
type ErrorRecord struct {
	Component string    `json:"component"`
	Kind      string    `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc receives critical error records.
type AlertFunc func(ErrorRecord)

// ErrorTracker keeps a bounded history of failures per component and fans
// critical records out to alert handlers.
type ErrorTracker struct {
	mu       sync.RWMutex
	history  *telemetry.CircularBuffer[ErrorRecord]
	counts   map[string]int64
	handlers []AlertFunc
	logger   *slog.Logger
}

// NewErrorTracker creates a tracker keeping up to capacity records.
func NewErrorTracker(capacity int, logger *slog.Logger) *ErrorTracker {
	if capacity <= 0 {
		capacity = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorTracker{
		history: telemetry.NewCircularBuffer[ErrorRecord](capacity),
		counts:  make(map[string]int64),
		logger:  logger,
	}
}

// OnCriticalError registers an alert handler for critical records.
func (t *ErrorTracker) OnCriticalError(fn AlertFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, fn)
}

// Track records one failure.
func (t *ErrorTracker) Track(component, kind string, severity Severity, err error) {
	if err == nil {
		return
	}

	rec := ErrorRecord{
		Component: component,
		Kind:      kind,
		Severity:  severity,
		Message:   err.Error(),
		Timestamp: time.Now(),
	}

	t.mu.Lock()
	t.counts[component]++
	handlers := t.handlers
	t.mu.Unlock()

	t.history.Add(rec)

	t.logger.Warn("dependency error tracked",
		slog.String("component", component),
		slog.String("kind", kind),
		slog.String("severity", string(severity)),
		slog.String("error", err.Error()))

	if severity == SeverityCritical {
		for _, fn := range handlers {
			fn(rec)
		}
	}
}

// Count returns the total failures tracked for a component.
func (t *ErrorTracker) Count(component string) int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[component]
}

// Recent returns up to n most recent records, oldest first.
func (t *ErrorTracker) Recent(n int) []ErrorRecord {
	return t.history.Last(n)
}
