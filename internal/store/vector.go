package store

import (
	"context"
	"fmt"
	"log/slog"
)

// DenseRetriever adapts an external VectorSearcher into the vector retrieval
// path. It over-fetches 2x the requested depth, drops hits below the quality
// threshold, and truncates back to topK, so threshold filtering does not
// starve the path.
type DenseRetriever struct {
	searcher  VectorSearcher
	threshold float64
}

// NewDenseRetriever wraps a vector searcher with score-threshold filtering.
func NewDenseRetriever(searcher VectorSearcher, qualityThreshold float64) (*DenseRetriever, error) {
	if searcher == nil {
		return nil, fmt.Errorf("dense retriever: nil vector searcher")
	}
	if qualityThreshold < 0 {
		qualityThreshold = 0
	}
	return &DenseRetriever{searcher: searcher, threshold: qualityThreshold}, nil
}

// Retrieve runs the dense path. A failing underlying store yields an empty
// candidate list; the error is returned alongside for tracking only and must
// not abort the caller's pipeline.
func (r *DenseRetriever) Retrieve(ctx context.Context, query string, topK int, filter map[string]string) ([]*Candidate, error) {
	if topK <= 0 {
		return []*Candidate{}, nil
	}

	hits, err := r.searcher.SimilaritySearch(ctx, query, topK*2, filter)
	if err != nil {
		slog.Warn("vector search failed, path degraded to empty",
			slog.String("error", err.Error()))
		return []*Candidate{}, fmt.Errorf("vector search: %w", err)
	}

	results := make([]*Candidate, 0, topK)
	for _, h := range hits {
		if h.Score < r.threshold {
			continue
		}
		results = append(results, &Candidate{
			Document: Document{
				ID:       h.ID,
				Content:  h.Content,
				Metadata: h.Metadata,
			},
			Path:       PathVector,
			Similarity: h.Score,
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}
