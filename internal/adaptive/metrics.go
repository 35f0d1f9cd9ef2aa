// Package adaptive adjusts retrieval path weights from observed
// performance and query characteristics. All learning is local and
// in-process; feedback arrives from the caller after the fact.
package adaptive

import (
	"time"

	"github.com/medfuse/medfuse/internal/store"
)

// latencyReference is the latency at which the latency component of the
// overall score reaches zero.
const latencyReference = 2 * time.Second

// PerformanceMetrics is one post-hoc feedback sample for a path.
type PerformanceMetrics struct {
	Precision        float64       `json:"precision"`
	Recall           float64       `json:"recall"`
	Latency          time.Duration `json:"latency"`
	SuccessRate      float64       `json:"success_rate"`
	UserSatisfaction float64       `json:"user_satisfaction"`
	RelevanceScore   float64       `json:"relevance_score"`
	DiversityScore   float64       `json:"diversity_score"`
}

// OverallScore blends the metric components with fixed weights into one
// reward value in [0,1].
func (m PerformanceMetrics) OverallScore() float64 {
	latencyScore := 1 - float64(m.Latency)/float64(latencyReference)
	if latencyScore < 0 {
		latencyScore = 0
	}

	score := 0.25*m.Precision +
		0.20*m.Recall +
		0.15*latencyScore +
		0.15*m.SuccessRate +
		0.10*m.UserSatisfaction +
		0.10*m.RelevanceScore +
		0.05*m.DiversityScore

	return clamp01(score)
}

// QueryContext describes the query a feedback sample belongs to.
type QueryContext struct {
	Type            string  `json:"type"`
	Complexity      string  `json:"complexity"`
	SemanticDensity float64 `json:"semantic_density"`
	KeywordDensity  float64 `json:"keyword_density"`
	EntityCount     int     `json:"entity_count"`
	HasNumbers      bool    `json:"has_numbers"`
}

// Similar reports whether two contexts are close enough to share learned
// weight patterns: same type and complexity, comparable semantic density.
func (qc QueryContext) Similar(other QueryContext) bool {
	if qc.Type != other.Type || qc.Complexity != other.Complexity {
		return false
	}
	diff := qc.SemanticDensity - other.SemanticDensity
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.3
}

// feedbackSample pairs one metrics observation with its query context.
type feedbackSample struct {
	context QueryContext
	metrics PerformanceMetrics
	at      time.Time
}

// Adjustment is one audit record of a weight change.
type Adjustment struct {
	Strategy  string                             `json:"strategy"`
	Context   QueryContext                       `json:"context"`
	Before    map[store.RetrievalPath]float64    `json:"before"`
	After     map[store.RetrievalPath]float64    `json:"after"`
	Rewards   map[store.RetrievalPath]float64    `json:"rewards,omitempty"`
	Timestamp time.Time                          `json:"timestamp"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
