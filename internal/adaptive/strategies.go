package adaptive

import (
	"github.com/medfuse/medfuse/internal/store"
)

// strategy computes a raw adjusted weight vector. The adjuster clamps and
// renormalizes afterwards; strategies do not need to.
type strategy interface {
	name() string
	adjust(a *Adjuster, base map[store.RetrievalPath]float64, qc QueryContext) map[store.RetrievalPath]float64
}

// rankFactors scale the boost by performance rank position, best first.
var rankFactors = []float64{1.0, 0.6, 0.3, 0.0}

// performanceStrategy boosts paths that recently scored well for similar
// query contexts.
type performanceStrategy struct{}

func (performanceStrategy) name() string { return "performance" }

func (performanceStrategy) adjust(a *Adjuster, base map[store.RetrievalPath]float64, qc QueryContext) map[store.RetrievalPath]float64 {
	weights := copyWeights(base)
	if !a.hasFeedback() {
		return weights
	}

	for i, p := range a.performanceRank(qc) {
		factor := 0.0
		if i < len(rankFactors) {
			factor = rankFactors[i]
		}
		score := a.recentScore(p, qc)
		weights[p] += a.cfg.LearningRate * factor * score
	}
	return weights
}

// typePatterns are target weight vectors per query type.
var typePatterns = map[string]map[store.RetrievalPath]float64{
	"factual":     {store.PathVector: 0.25, store.PathKeywords: 0.40, store.PathSummary: 0.20, store.PathContent: 0.15},
	"procedural":  {store.PathVector: 0.30, store.PathKeywords: 0.10, store.PathSummary: 0.15, store.PathContent: 0.45},
	"comparative": {store.PathVector: 0.45, store.PathKeywords: 0.15, store.PathSummary: 0.25, store.PathContent: 0.15},
	"temporal":    {store.PathVector: 0.25, store.PathKeywords: 0.25, store.PathSummary: 0.15, store.PathContent: 0.35},
	"numerical":   {store.PathVector: 0.20, store.PathKeywords: 0.25, store.PathSummary: 0.15, store.PathContent: 0.40},
	"conceptual":  {store.PathVector: 0.50, store.PathKeywords: 0.10, store.PathSummary: 0.25, store.PathContent: 0.15},
}

// patternBlend is how much of the per-type pattern mixes into the base.
const patternBlend = 0.3

// queryAwareStrategy shapes weights from the query itself, without any
// feedback history.
type queryAwareStrategy struct{}

func (queryAwareStrategy) name() string { return "query_aware" }

func (queryAwareStrategy) adjust(a *Adjuster, base map[store.RetrievalPath]float64, qc QueryContext) map[store.RetrievalPath]float64 {
	weights := copyWeights(base)

	if pattern, ok := typePatterns[qc.Type]; ok {
		for p := range weights {
			weights[p] = (1-patternBlend)*weights[p] + patternBlend*pattern[p]
		}
	}

	switch qc.Complexity {
	case "simple":
		weights[store.PathKeywords] *= 1.2
	case "complex":
		weights[store.PathVector] *= 1.2
		weights[store.PathContent] *= 1.1
	}

	if qc.EntityCount >= 3 {
		weights[store.PathKeywords] *= 1.15
	}
	if qc.HasNumbers {
		weights[store.PathContent] *= 1.15
	}
	if qc.SemanticDensity > 0.5 {
		weights[store.PathVector] *= 1.1
	}
	if qc.KeywordDensity > 0.5 {
		weights[store.PathKeywords] *= 1.1
	}
	return weights
}

// hybridStrategy blends performance and query-aware outputs, leaning on
// performance once feedback exists.
type hybridStrategy struct{}

func (hybridStrategy) name() string { return "hybrid" }

func (hybridStrategy) adjust(a *Adjuster, base map[store.RetrievalPath]float64, qc QueryContext) map[store.RetrievalPath]float64 {
	perf := performanceStrategy{}.adjust(a, base, qc)
	aware := queryAwareStrategy{}.adjust(a, base, qc)

	perfShare := 0.3
	if a.hasFeedback() {
		perfShare = 0.6
	}

	weights := make(map[store.RetrievalPath]float64, len(base))
	for p := range base {
		weights[p] = perfShare*perf[p] + (1-perfShare)*aware[p]
	}
	return weights
}

// reinforcementStrategy nudges each path by its recent average reward
// relative to the neutral 0.5 midpoint.
type reinforcementStrategy struct{}

func (reinforcementStrategy) name() string { return "reinforcement" }

func (reinforcementStrategy) adjust(a *Adjuster, base map[store.RetrievalPath]float64, qc QueryContext) map[store.RetrievalPath]float64 {
	weights := copyWeights(base)
	for p, reward := range a.recentRewards() {
		weights[p] += a.cfg.LearningRate * (reward - 0.5)
	}
	return weights
}
