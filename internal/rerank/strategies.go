// Package rerank reorders fused documents through pluggable strategies,
// with caching and fallback so reranking never fails the pipeline.
package rerank

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/medfuse/medfuse/internal/fusion"
)

// Result is one scored item from an external rerank call, referencing the
// input document by position.
type Result struct {
	Index int
	Score float64
}

// Client is the external rerank API contract.
type Client interface {
	// Rerank scores documents against the query and returns up to topK
	// results, best first.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]Result, error)
}

// Strategy reorders documents. Implementations never mutate the input
// slice; they return a new ranking of (copies of) the same documents.
type Strategy interface {
	Name() string
	Rerank(ctx context.Context, query string, docs []*fusion.FusedDocument, topK int) ([]*fusion.FusedDocument, error)
}

// Score-fusion blend weights over the already-present score fields.
const (
	blendFusion     = 0.4
	blendBM25       = 0.3
	blendSimilarity = 0.2
	blendRerank     = 0.1
)

// apiStrategy delegates scoring to an external rerank endpoint, batching
// large inputs and bounding batch concurrency.
type apiStrategy struct {
	client        Client
	batchSize     int
	maxConcurrent int
}

func newAPIStrategy(client Client, batchSize, maxConcurrent int) (*apiStrategy, error) {
	if client == nil {
		return nil, fmt.Errorf("rerank: api strategy requires a client")
	}
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &apiStrategy{client: client, batchSize: batchSize, maxConcurrent: maxConcurrent}, nil
}

func (s *apiStrategy) Name() string { return "api" }

func (s *apiStrategy) Rerank(ctx context.Context, query string, docs []*fusion.FusedDocument, topK int) ([]*fusion.FusedDocument, error) {
	if len(docs) == 0 {
		return []*fusion.FusedDocument{}, nil
	}

	scores := make([]float64, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.maxConcurrent)

	for start := 0; start < len(docs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		start, end := start, end

		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			contents := make([]string, end-start)
			for i, d := range docs[start:end] {
				contents[i] = d.Content
			}

			results, err := s.client.Rerank(gctx, query, contents, len(contents))
			if err != nil {
				return fmt.Errorf("rerank batch [%d:%d]: %w", start, end, err)
			}
			for _, r := range results {
				if r.Index < 0 || r.Index >= len(contents) {
					return fmt.Errorf("rerank batch [%d:%d]: index %d out of range", start, end, r.Index)
				}
				scores[start+r.Index] = r.Score
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]*fusion.FusedDocument, len(docs))
	for i, d := range docs {
		clone := *d
		clone.RerankScore = scores[i]
		clone.Reranked = true
		ranked[i] = &clone
	}
	sortByRerankScore(ranked)
	return truncate(ranked, topK), nil
}

// scoreFusionStrategy blends the score fields already on each document.
// No external call is made.
type scoreFusionStrategy struct{}

func (scoreFusionStrategy) Name() string { return "score_fusion" }

func (scoreFusionStrategy) Rerank(_ context.Context, _ string, docs []*fusion.FusedDocument, topK int) ([]*fusion.FusedDocument, error) {
	ranked := make([]*fusion.FusedDocument, len(docs))
	for i, d := range docs {
		clone := *d
		clone.RerankScore = blendFusion*d.FusionScore +
			blendBM25*d.BestBM25() +
			blendSimilarity*d.BestSimilarity() +
			blendRerank*d.RerankScore
		clone.Reranked = true
		ranked[i] = &clone
	}
	sortByRerankScore(ranked)
	return truncate(ranked, topK), nil
}

// hybridStrategy prefilters with score fusion, then narrows with the API.
type hybridStrategy struct {
	api *apiStrategy
}

func (hybridStrategy) Name() string { return "hybrid" }

func (s hybridStrategy) Rerank(ctx context.Context, query string, docs []*fusion.FusedDocument, topK int) ([]*fusion.FusedDocument, error) {
	prefiltered, err := scoreFusionStrategy{}.Rerank(ctx, query, docs, 3*topK)
	if err != nil {
		return nil, err
	}
	return s.api.Rerank(ctx, query, prefiltered, topK)
}

// similarityStrategy orders by the existing vector similarity.
type similarityStrategy struct{}

func (similarityStrategy) Name() string { return "similarity" }

func (similarityStrategy) Rerank(_ context.Context, _ string, docs []*fusion.FusedDocument, topK int) ([]*fusion.FusedDocument, error) {
	ranked := make([]*fusion.FusedDocument, len(docs))
	for i, d := range docs {
		clone := *d
		clone.RerankScore = d.BestSimilarity()
		clone.Reranked = true
		ranked[i] = &clone
	}
	sortByRerankScore(ranked)
	return truncate(ranked, topK), nil
}

func sortByRerankScore(docs []*fusion.FusedDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].RerankScore > docs[j].RerankScore
	})
}

func truncate(docs []*fusion.FusedDocument, topK int) []*fusion.FusedDocument {
	if topK > 0 && len(docs) > topK {
		return docs[:topK]
	}
	return docs
}
