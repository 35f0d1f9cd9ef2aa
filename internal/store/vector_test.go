package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medfuse/medfuse/internal/embed"
)

// fakeVectorSearcher returns canned hits or a canned error.
type fakeVectorSearcher struct {
	hits []VectorHit
	err  error

	lastK int
}

func (f *fakeVectorSearcher) SimilaritySearch(_ context.Context, _ string, k int, _ map[string]string) ([]VectorHit, error) {
	f.lastK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func TestDenseRetriever_OverfetchFilterTruncate(t *testing.T) {
	fake := &fakeVectorSearcher{hits: []VectorHit{
		{ID: "a", Score: 0.95},
		{ID: "b", Score: 0.80},
		{ID: "c", Score: 0.40}, // below threshold
		{ID: "d", Score: 0.75},
		{ID: "e", Score: 0.70},
	}}

	r, err := NewDenseRetriever(fake, 0.5)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "chest pain", 2, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, fake.lastK, "requests 2x topK from the store")
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.Equal(t, PathVector, results[0].Path)
	assert.Equal(t, 0.95, results[0].Similarity)
}

func TestDenseRetriever_StoreErrorDegradesToEmpty(t *testing.T) {
	fake := &fakeVectorSearcher{err: errors.New("connection refused")}

	r, err := NewDenseRetriever(fake, 0)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), "q", 5, nil)
	assert.Error(t, err, "error surfaced for tracking")
	assert.NotNil(t, results)
	assert.Empty(t, results, "pipeline sees an empty path, not a failure")
}

func TestDenseRetriever_NilSearcher(t *testing.T) {
	_, err := NewDenseRetriever(nil, 0)
	assert.Error(t, err)
}

func TestMemoryVectorStore_RoundTrip(t *testing.T) {
	s, err := NewMemoryVectorStore(embed.NewStaticEmbedder())
	require.NoError(t, err)

	docs := []Document{
		{ID: "c1", Content: "metformin dosing in type 2 diabetes", Metadata: Metadata{DocumentID: "d1"}},
		{ID: "c2", Content: "acute myocardial infarction management", Metadata: Metadata{DocumentID: "d2"}},
		{ID: "c3", Content: "metformin contraindications renal impairment", Metadata: Metadata{DocumentID: "d1"}},
	}
	require.NoError(t, s.IndexDocuments(context.Background(), docs))
	assert.Equal(t, 3, s.Count())

	hits, err := s.SimilaritySearch(context.Background(), "metformin diabetes", 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "c1", hits[0].ID)
	assert.Greater(t, hits[0].Score, 0.0)

	// Metadata filter restricts to one source document.
	filtered, err := s.SimilaritySearch(context.Background(), "metformin", 3, map[string]string{"document_id": "d2"})
	require.NoError(t, err)
	for _, h := range filtered {
		assert.Equal(t, "d2", h.Metadata.DocumentID)
	}
}

func TestMemoryVectorStore_EmptyIndex(t *testing.T) {
	s, err := NewMemoryVectorStore(embed.NewStaticEmbedder())
	require.NoError(t, err)

	hits, err := s.SimilaritySearch(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
