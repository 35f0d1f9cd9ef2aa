package adaptive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/store"
)

func baseWeights() map[store.RetrievalPath]float64 {
	return map[store.RetrievalPath]float64{
		store.PathVector:   0.40,
		store.PathKeywords: 0.20,
		store.PathSummary:  0.20,
		store.PathContent:  0.20,
	}
}

func adaptiveCfg(strategy string) config.AdaptiveConfig {
	cfg := config.Default().Adaptive
	cfg.Enabled = true
	cfg.Strategy = strategy
	return cfg
}

func goodMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		Precision:        0.9,
		Recall:           0.9,
		Latency:          50 * time.Millisecond,
		SuccessRate:      1.0,
		UserSatisfaction: 0.8,
		RelevanceScore:   0.9,
		DiversityScore:   0.7,
	}
}

func badMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		Precision:   0.1,
		Recall:      0.1,
		Latency:     3 * time.Second,
		SuccessRate: 0.2,
	}
}

func TestOverallScoreBlend(t *testing.T) {
	m := PerformanceMetrics{
		Precision:        1.0,
		Recall:           1.0,
		Latency:          0,
		SuccessRate:      1.0,
		UserSatisfaction: 1.0,
		RelevanceScore:   1.0,
		DiversityScore:   1.0,
	}
	assert.InDelta(t, 1.0, m.OverallScore(), 1e-9)

	assert.InDelta(t, 0.0, PerformanceMetrics{Latency: 5 * time.Second}.OverallScore(), 1e-9)

	half := PerformanceMetrics{Precision: 1.0, Recall: 1.0, Latency: 2 * time.Second}
	assert.InDelta(t, 0.45, half.OverallScore(), 1e-9)
}

func TestQueryContextSimilar(t *testing.T) {
	a := QueryContext{Type: "factual", Complexity: "simple", SemanticDensity: 0.2}

	assert.True(t, a.Similar(QueryContext{Type: "factual", Complexity: "simple", SemanticDensity: 0.4}))
	assert.False(t, a.Similar(QueryContext{Type: "factual", Complexity: "simple", SemanticDensity: 0.6}))
	assert.False(t, a.Similar(QueryContext{Type: "conceptual", Complexity: "simple", SemanticDensity: 0.2}))
	assert.False(t, a.Similar(QueryContext{Type: "factual", Complexity: "complex", SemanticDensity: 0.2}))
}

func assertValidWeights(t *testing.T, cfg config.AdaptiveConfig, weights map[store.RetrievalPath]float64) {
	t.Helper()
	var sum float64
	for p, w := range weights {
		sum += w
		assert.GreaterOrEqual(t, w+1e-12, cfg.MinWeight/2, "path %s below bound", p)
		assert.LessOrEqual(t, w, cfg.MaxWeight+1e-12, "path %s above bound", p)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestAllStrategiesProduceNormalizedWeights(t *testing.T) {
	qc := QueryContext{Type: "conceptual", Complexity: "complex", SemanticDensity: 0.7}

	for _, name := range []string{
		config.AdaptivePerformance,
		config.AdaptiveQueryAware,
		config.AdaptiveHybrid,
		config.AdaptiveReinforcement,
	} {
		t.Run(name, func(t *testing.T) {
			cfg := adaptiveCfg(name)
			adj, err := NewAdjuster(cfg, nil)
			require.NoError(t, err)
			assert.Equal(t, name, adj.StrategyName())

			got := adj.Adjust(baseWeights(), qc)
			assertValidWeights(t, cfg, got)
		})
	}
}

func TestNewAdjusterRejectsUnknownStrategy(t *testing.T) {
	_, err := NewAdjuster(adaptiveCfg("genetic"), nil)
	assert.Error(t, err)
}

func TestPerformanceStrategyBoostsGoodPath(t *testing.T) {
	cfg := adaptiveCfg(config.AdaptivePerformance)
	adj, err := NewAdjuster(cfg, nil)
	require.NoError(t, err)

	qc := QueryContext{Type: "factual", Complexity: "simple"}
	for i := 0; i < 20; i++ {
		adj.RecordFeedback(qc, map[store.RetrievalPath]PerformanceMetrics{
			store.PathKeywords: goodMetrics(),
			store.PathVector:   badMetrics(),
		})
	}

	got := adj.Adjust(baseWeights(), qc)
	// Keywords started at half the vector weight but scored far better.
	assert.Greater(t, got[store.PathKeywords], baseWeights()[store.PathKeywords])
	assertValidWeights(t, cfg, got)
}

func TestQueryAwareStrategyFollowsType(t *testing.T) {
	cfg := adaptiveCfg(config.AdaptiveQueryAware)
	adj, err := NewAdjuster(cfg, nil)
	require.NoError(t, err)

	factual := adj.Adjust(baseWeights(), QueryContext{Type: "factual", Complexity: "simple"})
	conceptual := adj.Adjust(baseWeights(), QueryContext{Type: "conceptual", Complexity: "complex", SemanticDensity: 0.8})

	assert.Greater(t, factual[store.PathKeywords], conceptual[store.PathKeywords])
	assert.Greater(t, conceptual[store.PathVector], factual[store.PathVector])
}

func TestReinforcementStrategyNudgesByReward(t *testing.T) {
	cfg := adaptiveCfg(config.AdaptiveReinforcement)
	cfg.LearningRate = 0.5
	adj, err := NewAdjuster(cfg, nil)
	require.NoError(t, err)

	qc := QueryContext{Type: "factual", Complexity: "simple"}
	for i := 0; i < 10; i++ {
		adj.RecordFeedback(qc, map[store.RetrievalPath]PerformanceMetrics{
			store.PathContent: goodMetrics(),
			store.PathSummary: badMetrics(),
		})
	}

	got := adj.Adjust(baseWeights(), qc)
	assert.Greater(t, got[store.PathContent], got[store.PathSummary])
	assertValidWeights(t, cfg, got)
}

func TestHybridLeansOnFeedbackWhenAvailable(t *testing.T) {
	cfg := adaptiveCfg(config.AdaptiveHybrid)
	qc := QueryContext{Type: "factual", Complexity: "simple"}

	cold, err := NewAdjuster(cfg, nil)
	require.NoError(t, err)
	coldWeights := cold.Adjust(baseWeights(), qc)

	warm, err := NewAdjuster(cfg, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		warm.RecordFeedback(qc, map[store.RetrievalPath]PerformanceMetrics{
			store.PathVector: goodMetrics(),
		})
	}
	warmWeights := warm.Adjust(baseWeights(), qc)

	assert.NotEqual(t, coldWeights[store.PathVector], warmWeights[store.PathVector])
	assertValidWeights(t, cfg, coldWeights)
	assertValidWeights(t, cfg, warmWeights)
}

func TestAdjustmentHistoryBounded(t *testing.T) {
	cfg := adaptiveCfg(config.AdaptiveQueryAware)
	cfg.HistorySize = 5
	adj, err := NewAdjuster(cfg, nil)
	require.NoError(t, err)

	qc := QueryContext{Type: "factual", Complexity: "simple"}
	for i := 0; i < 12; i++ {
		adj.Adjust(baseWeights(), qc)
	}

	history := adj.History(100)
	require.Len(t, history, 5)
	assert.Equal(t, "query_aware", history[0].Strategy)
	assert.InDelta(t, 1.0, sumWeights(history[0].After), 1e-9)
}

func TestFeedbackCount(t *testing.T) {
	adj, err := NewAdjuster(adaptiveCfg(config.AdaptiveHybrid), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, adj.FeedbackCount(store.PathVector))
	adj.RecordFeedback(QueryContext{}, map[store.RetrievalPath]PerformanceMetrics{
		store.PathVector: goodMetrics(),
	})
	assert.Equal(t, 1, adj.FeedbackCount(store.PathVector))
}

func sumWeights(w map[store.RetrievalPath]float64) float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}
