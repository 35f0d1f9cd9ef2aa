package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medfuse/medfuse/internal/adaptive"
	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/reliability"
	"github.com/medfuse/medfuse/internal/store"
)

// fakeSearcher serves canned vector hits by naive token overlap and can be
// forced to fail.
type fakeSearcher struct {
	docs  []store.Document
	fail  atomic.Bool
	calls atomic.Int64
}

func (s *fakeSearcher) SimilaritySearch(_ context.Context, q string, k int, _ map[string]string) ([]store.VectorHit, error) {
	s.calls.Add(1)
	if s.fail.Load() {
		return nil, errors.New("vector store unreachable")
	}

	var hits []store.VectorHit
	qTokens := strings.Fields(strings.ToLower(q))
	for _, d := range s.docs {
		content := strings.ToLower(d.Content)
		var overlap int
		for _, tok := range qTokens {
			if strings.Contains(content, tok) {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		hits = append(hits, store.VectorHit{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: d.Metadata,
			Score:    0.5 + 0.1*float64(overlap),
		})
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *fakeSearcher) IndexDocuments(_ context.Context, docs []store.Document) error {
	s.docs = docs
	return nil
}

func testCorpus() []store.Document {
	return []store.Document{
		{
			ID:      "met-1",
			Content: "Metformin is first line therapy for type 2 diabetes and lowers hepatic glucose production.",
			Metadata: store.Metadata{
				DocumentID: "doc-metformin",
				Keywords:   []string{"metformin", "diabetes", "glucose"},
				Summary:    "Metformin overview and mechanism.",
			},
		},
		{
			ID:      "met-2",
			Content: "Metformin dosing starts at 500 mg twice daily and titrates by renal function.",
			Metadata: store.Metadata{
				DocumentID:    "doc-metformin",
				ParentChunkID: "met-parent",
				Keywords:      []string{"metformin", "dosing"},
				Summary:       "Metformin dose titration.",
			},
		},
		{
			ID:      "met-3",
			Content: "Extended release metformin reduces gastrointestinal side effects in most patients.",
			Metadata: store.Metadata{
				DocumentID:    "doc-metformin",
				ParentChunkID: "met-parent",
				Keywords:      []string{"metformin", "side", "effects"},
				Summary:       "Tolerability of extended release metformin.",
			},
		},
		{
			ID:      "htn-1",
			Content: "ACE inhibitors are preferred for hypertension with chronic kidney disease.",
			Metadata: store.Metadata{
				DocumentID: "doc-htn",
				Keywords:   []string{"hypertension", "ace", "kidney"},
				Summary:    "Hypertension treatment in CKD.",
			},
		},
	}
}

func testEngine(t *testing.T, mutate func(*config.Config), opts ...Option) (*Engine, *fakeSearcher) {
	t.Helper()

	cfg := config.Default()
	cfg.Performance.PathTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	searcher := &fakeSearcher{}
	eng, err := NewEngine(cfg, searcher, testCorpus(), opts...)
	require.NoError(t, err)
	return eng, searcher
}

func TestRetrieveReturnsFusedResults(t *testing.T) {
	eng, _ := testEngine(t, nil)

	resp, err := eng.Retrieve(context.Background(), "metformin dosing for diabetes", RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Documents)

	assert.NotEmpty(t, resp.Stats.RequestID)
	assert.Equal(t, config.FusionWeightedRRF, resp.Stats.FusionMethod)
	assert.NotEmpty(t, resp.Stats.Paths)

	top := resp.Documents[0]
	assert.Contains(t, strings.ToLower(top.Content), "metformin")
	assert.NotEmpty(t, top.Contributions)
}

func TestRetrieveNoResultsIsNotAnError(t *testing.T) {
	eng, _ := testEngine(t, nil)

	resp, err := eng.Retrieve(context.Background(), "zzgrep qqplasma", RetrieveOptions{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Documents)
	assert.Empty(t, resp.Documents)
}

func TestRetrieveIsolatesPathFailure(t *testing.T) {
	eng, searcher := testEngine(t, nil)
	searcher.fail.Store(true)

	resp, err := eng.Retrieve(context.Background(), "metformin dosing", RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Documents, "lexical paths must still produce results")

	vector := resp.Stats.Paths[store.PathVector]
	require.NotNil(t, vector)
	assert.NotEmpty(t, vector.Err)

	for _, d := range resp.Documents {
		_, fromVector := d.Contributions[store.PathVector]
		assert.False(t, fromVector)
	}
}

func TestRetrieveDedupesSmallToBig(t *testing.T) {
	eng, _ := testEngine(t, func(c *config.Config) {
		c.Rerank.Enabled = false
	})

	resp, err := eng.Retrieve(context.Background(), "metformin", RetrieveOptions{TopK: 10})
	require.NoError(t, err)

	// met-2 and met-3 share a parent chunk; within any single path only
	// one of them may contribute.
	perPath := make(map[store.RetrievalPath]int)
	for _, d := range resp.Documents {
		if d.Metadata.ParentChunkID != "met-parent" {
			continue
		}
		for p := range d.Contributions {
			perPath[p]++
		}
	}
	for p, n := range perPath {
		assert.LessOrEqual(t, n, 1, "path %s returned multiple children of one parent", p)
	}
}

func TestBreakerOpensAndHealthDegrades(t *testing.T) {
	eng, searcher := testEngine(t, func(c *config.Config) {
		c.Reliability.BreakerThreshold = 2
	})
	searcher.fail.Store(true)

	for i := 0; i < 3; i++ {
		_, err := eng.Retrieve(context.Background(), "metformin", RetrieveOptions{})
		require.NoError(t, err)
	}

	report := eng.HealthCheck(context.Background())
	assert.Equal(t, reliability.HealthUnhealthy, report.Overall)

	var vectorStatus reliability.HealthStatus
	for _, c := range report.Components {
		if c.Name == breakerVector {
			vectorStatus = c.Status
		}
	}
	assert.Equal(t, reliability.HealthUnhealthy, vectorStatus)

	// Once open, the vector store stops being called.
	before := searcher.calls.Load()
	_, err := eng.Retrieve(context.Background(), "metformin", RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, before, searcher.calls.Load())
}

func TestUpdateDocumentsSwapsCorpus(t *testing.T) {
	eng, _ := testEngine(t, nil)

	newDocs := []store.Document{{
		ID:      "new-1",
		Content: "Lisinopril is an ACE inhibitor used for hypertension.",
		Metadata: store.Metadata{
			DocumentID: "doc-new",
			Keywords:   []string{"lisinopril", "hypertension"},
			Summary:    "Lisinopril basics.",
		},
	}}
	require.NoError(t, eng.UpdateDocuments(context.Background(), newDocs))

	resp, err := eng.Retrieve(context.Background(), "metformin dosing", RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Documents)

	resp, err = eng.Retrieve(context.Background(), "lisinopril hypertension", RetrieveOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Documents)
	assert.Equal(t, "new-1", resp.Documents[0].ID)
}

func TestUpdateConfigValidatesFirst(t *testing.T) {
	eng, _ := testEngine(t, nil)

	bad := config.Default()
	bad.Fusion.Method = "borda"
	assert.Error(t, eng.UpdateConfig(bad))

	good := config.Default()
	good.Fusion.Method = config.FusionRRF
	require.NoError(t, eng.UpdateConfig(good))

	resp, err := eng.Retrieve(context.Background(), "metformin", RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, config.FusionRRF, resp.Stats.FusionMethod)
}

func TestUpdateConfigRederivesRuntimeSettings(t *testing.T) {
	eng, searcher := testEngine(t, nil)

	next := config.Default()
	for p, pc := range next.Paths {
		pc.Enabled = p == store.PathVector
		next.Paths[p] = pc
	}
	vec := next.Paths[store.PathVector]
	vec.MinScore = 0.99
	next.Paths[store.PathVector] = vec
	next.Reliability.BreakerThreshold = 1
	require.NoError(t, eng.UpdateConfig(next))

	// The dense retriever filters with the new threshold: the fake
	// searcher never scores that high, so the only enabled path is empty.
	resp, err := eng.Retrieve(context.Background(), "metformin", RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Documents)

	// The breaker threshold followed the swap: one failure now opens it.
	searcher.fail.Store(true)
	_, err = eng.Retrieve(context.Background(), "metformin", RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "open", eng.GetPerformanceStats().Breakers[breakerVector])
}

func TestAdaptiveWeightsApplied(t *testing.T) {
	eng, _ := testEngine(t, func(c *config.Config) {
		c.Adaptive.Enabled = true
		c.Adaptive.Strategy = config.AdaptiveQueryAware
	})

	resp, err := eng.Retrieve(context.Background(), "why does metformin lower glucose", RetrieveOptions{})
	require.NoError(t, err)

	history := eng.AdjustmentHistory(10)
	require.NotEmpty(t, history)

	var sum float64
	for _, w := range resp.Stats.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	eng.RecordFeedback(adaptive.QueryContext{Type: "conceptual", Complexity: "moderate"},
		map[store.RetrievalPath]adaptive.PerformanceMetrics{
			store.PathVector: {Precision: 0.9, Recall: 0.8, SuccessRate: 1.0},
		})
}

func TestProgressiveRetrieve(t *testing.T) {
	eng, _ := testEngine(t, func(c *config.Config) {
		c.Progressive.Enabled = true
		c.Rerank.Enabled = false
	})

	resp, err := eng.Retrieve(context.Background(), "metformin dosing", RetrieveOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Stats.Stage)
	assert.NotEmpty(t, resp.Stats.StopReason)
}

func TestRetrieveTopKOverride(t *testing.T) {
	eng, _ := testEngine(t, func(c *config.Config) {
		c.Rerank.Enabled = false
	})

	resp, err := eng.Retrieve(context.Background(), "metformin", RetrieveOptions{TopK: 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Documents), 1)
}

func TestGetPerformanceStats(t *testing.T) {
	eng, _ := testEngine(t, nil, WithMetricsRegisterer(prometheus.NewRegistry()))

	_, err := eng.Retrieve(context.Background(), "metformin dosing", RetrieveOptions{})
	require.NoError(t, err)

	stats := eng.GetPerformanceStats()
	assert.NotEmpty(t, stats.Operations)
	assert.NotEmpty(t, stats.Breakers)
	assert.Equal(t, int64(1), stats.Queries.TotalQueries)
	require.Len(t, stats.FieldStats, 3)
	assert.NotNil(t, stats.Rerank)
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Fusion.RRFK = -1

	_, err := NewEngine(cfg, &fakeSearcher{}, testCorpus())
	require.Error(t, err)

	_, err = NewEngine(config.Default(), nil, testCorpus())
	assert.Error(t, err)
}
