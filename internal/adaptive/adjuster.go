package adaptive

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/store"
	"github.com/medfuse/medfuse/internal/telemetry"
)

// Adjuster maintains per-path feedback windows and produces adjusted path
// weight vectors through a strategy fixed at construction. Safe for
// concurrent use.
type Adjuster struct {
	mu sync.RWMutex

	strategy    strategy
	cfg         config.AdaptiveConfig
	logger      *slog.Logger
	windows     map[store.RetrievalPath]*telemetry.CircularBuffer[feedbackSample]
	adjustments *telemetry.CircularBuffer[Adjustment]
}

// NewAdjuster creates an adjuster for the configured strategy.
func NewAdjuster(cfg config.AdaptiveConfig, logger *slog.Logger) (*Adjuster, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &Adjuster{
		cfg:         cfg,
		logger:      logger,
		windows:     make(map[store.RetrievalPath]*telemetry.CircularBuffer[feedbackSample], 4),
		adjustments: telemetry.NewCircularBuffer[Adjustment](cfg.HistorySize),
	}
	for _, p := range store.AllPaths() {
		a.windows[p] = telemetry.NewCircularBuffer[feedbackSample](cfg.WindowSize)
	}

	switch cfg.Strategy {
	case config.AdaptivePerformance:
		a.strategy = performanceStrategy{}
	case config.AdaptiveQueryAware:
		a.strategy = queryAwareStrategy{}
	case config.AdaptiveHybrid:
		a.strategy = hybridStrategy{}
	case config.AdaptiveReinforcement:
		a.strategy = reinforcementStrategy{}
	default:
		return nil, fmt.Errorf("adaptive: unknown strategy %q", cfg.Strategy)
	}
	return a, nil
}

// StrategyName returns the active strategy's name.
func (a *Adjuster) StrategyName() string {
	return a.strategy.name()
}

// Adjust produces a new weight vector from the base weights and the query
// context. The result is clamped to the configured bounds and sums to 1.
func (a *Adjuster) Adjust(base map[store.RetrievalPath]float64, qc QueryContext) map[store.RetrievalPath]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	adjusted := a.strategy.adjust(a, base, qc)
	a.clampAndNormalize(adjusted)

	rec := Adjustment{
		Strategy:  a.strategy.name(),
		Context:   qc,
		Before:    copyWeights(base),
		After:     copyWeights(adjusted),
		Rewards:   a.recentRewards(),
		Timestamp: time.Now(),
	}
	a.adjustments.Add(rec)

	return adjusted
}

// RecordFeedback ingests one post-hoc metrics sample per path.
func (a *Adjuster) RecordFeedback(qc QueryContext, perPath map[store.RetrievalPath]PerformanceMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for p, m := range perPath {
		window, ok := a.windows[p]
		if !ok {
			a.logger.Warn("feedback for unknown path ignored", slog.String("path", string(p)))
			continue
		}
		window.Add(feedbackSample{context: qc, metrics: m, at: now})
	}
}

// History returns up to n most recent adjustment records, oldest first.
func (a *Adjuster) History(n int) []Adjustment {
	return a.adjustments.Last(n)
}

// FeedbackCount returns the buffered sample count for one path.
func (a *Adjuster) FeedbackCount(path store.RetrievalPath) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if w, ok := a.windows[path]; ok {
		return w.Size()
	}
	return 0
}

// hasFeedback reports whether any path has buffered samples.
// Caller must hold the lock.
func (a *Adjuster) hasFeedback() bool {
	for _, w := range a.windows {
		if w.Size() > 0 {
			return true
		}
	}
	return false
}

// recentScore averages the overall score of samples whose context is
// similar to qc; without similar samples it falls back to all samples.
// Returns 0.5 (neutral) for an empty window. Caller must hold the lock.
func (a *Adjuster) recentScore(path store.RetrievalPath, qc QueryContext) float64 {
	window, ok := a.windows[path]
	if !ok || window.Size() == 0 {
		return 0.5
	}

	var similarSum, allSum float64
	var similarN, allN int
	for _, s := range window.Items() {
		score := s.metrics.OverallScore()
		allSum += score
		allN++
		if s.context.Similar(qc) {
			similarSum += score
			similarN++
		}
	}
	if similarN > 0 {
		return similarSum / float64(similarN)
	}
	return allSum / float64(allN)
}

// performanceRank orders paths best-first by recent score for similar
// contexts. Caller must hold the lock.
func (a *Adjuster) performanceRank(qc QueryContext) []store.RetrievalPath {
	paths := store.AllPaths()
	scores := make(map[store.RetrievalPath]float64, len(paths))
	for _, p := range paths {
		scores[p] = a.recentScore(p, qc)
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return scores[paths[i]] > scores[paths[j]]
	})
	return paths
}

// recentRewards summarizes the average reward per path over the last 10
// samples. Caller must hold the lock.
func (a *Adjuster) recentRewards() map[store.RetrievalPath]float64 {
	rewards := make(map[store.RetrievalPath]float64, 4)
	for p, window := range a.windows {
		samples := window.Last(10)
		if len(samples) == 0 {
			continue
		}
		var sum float64
		for _, s := range samples {
			sum += s.metrics.OverallScore()
		}
		rewards[p] = sum / float64(len(samples))
	}
	if len(rewards) == 0 {
		return nil
	}
	return rewards
}

// clampAndNormalize bounds each weight and rescales the vector to sum 1.
// Caller must hold the lock.
func (a *Adjuster) clampAndNormalize(weights map[store.RetrievalPath]float64) {
	minW, maxW := a.cfg.MinWeight, a.cfg.MaxWeight
	var sum float64
	for p, w := range weights {
		if w < minW {
			w = minW
		}
		if w > maxW {
			w = maxW
		}
		weights[p] = w
		sum += w
	}
	if sum == 0 {
		equal := 1.0 / float64(len(weights))
		for p := range weights {
			weights[p] = equal
		}
		return
	}
	for p := range weights {
		weights[p] /= sum
	}
}

func copyWeights(w map[store.RetrievalPath]float64) map[store.RetrievalPath]float64 {
	out := make(map[store.RetrievalPath]float64, len(w))
	for p, v := range w {
		out[p] = v
	}
	return out
}
