package reliability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes retrieval counters and histograms on a Prometheus
// registry. All collectors are registered against the injected Registerer
// so tests can use isolated registries.
type Metrics struct {
	pathRequests  *prometheus.CounterVec
	pathFailures  *prometheus.CounterVec
	pathLatency   *prometheus.HistogramVec
	fusionLatency prometheus.Histogram
	rerankCache   *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
	stageStops    *prometheus.CounterVec
}

// NewMetrics creates and registers the retrieval collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pathRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medfuse",
			Name:      "path_requests_total",
			Help:      "Retrieval requests issued per path.",
		}, []string{"path"}),
		pathFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medfuse",
			Name:      "path_failures_total",
			Help:      "Retrieval failures per path.",
		}, []string{"path"}),
		pathLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medfuse",
			Name:      "path_latency_seconds",
			Help:      "Per-path retrieval latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		fusionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medfuse",
			Name:      "fusion_latency_seconds",
			Help:      "Fusion stage latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		rerankCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medfuse",
			Name:      "rerank_cache_total",
			Help:      "Rerank cache lookups by outcome.",
		}, []string{"outcome"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "medfuse",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"dependency"}),
		stageStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medfuse",
			Name:      "progressive_stage_stops_total",
			Help:      "Progressive retrieval stop reasons.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.pathRequests,
		m.pathFailures,
		m.pathLatency,
		m.fusionLatency,
		m.rerankCache,
		m.breakerState,
		m.stageStops,
	)
	return m
}

// ObservePath records one path retrieval attempt.
func (m *Metrics) ObservePath(path string, latency time.Duration, failed bool) {
	m.pathRequests.WithLabelValues(path).Inc()
	m.pathLatency.WithLabelValues(path).Observe(latency.Seconds())
	if failed {
		m.pathFailures.WithLabelValues(path).Inc()
	}
}

// ObserveFusion records the fusion stage latency.
func (m *Metrics) ObserveFusion(latency time.Duration) {
	m.fusionLatency.Observe(latency.Seconds())
}

// ObserveRerankCache records a rerank cache hit or miss.
func (m *Metrics) ObserveRerankCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.rerankCache.WithLabelValues(outcome).Inc()
}

// SetBreakerState mirrors a breaker state into the gauge.
func (m *Metrics) SetBreakerState(dependency string, state State) {
	var v float64
	switch state {
	case StateHalfOpen:
		v = 1
	case StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(dependency).Set(v)
}

// ObserveStageStop records why a progressive run ended.
func (m *Metrics) ObserveStageStop(reason string) {
	m.stageStops.WithLabelValues(reason).Inc()
}
