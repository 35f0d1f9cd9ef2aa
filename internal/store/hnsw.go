package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/medfuse/medfuse/internal/embed"
)

// MemoryVectorStore is an in-process VectorSearcher backed by a coder/hnsw
// graph over cosine similarity. It serves local corpora and tests; hosted
// deployments substitute a real vector database client.
type MemoryVectorStore struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[uint64]
	embedder embed.Embedder

	docs    map[uint64]Document
	idToKey map[string]uint64
	nextKey uint64
}

// Compile-time interface checks.
var (
	_ VectorSearcher  = (*MemoryVectorStore)(nil)
	_ DocumentIndexer = (*MemoryVectorStore)(nil)
)

// NewMemoryVectorStore creates an empty in-memory vector store.
func NewMemoryVectorStore(embedder embed.Embedder) (*MemoryVectorStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("memory vector store: nil embedder")
	}
	return &MemoryVectorStore{
		graph:    newCosineGraph(),
		embedder: embedder,
		docs:     make(map[uint64]Document),
		idToKey:  make(map[string]uint64),
	}, nil
}

func newCosineGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25
	return g
}

// IndexDocuments fully replaces the indexed corpus. The replacement graph is
// built off-lock and swapped in atomically.
func (s *MemoryVectorStore) IndexDocuments(ctx context.Context, docs []Document) error {
	graph := newCosineGraph()
	byKey := make(map[uint64]Document, len(docs))
	idToKey := make(map[string]uint64, len(docs))

	var key uint64
	for _, doc := range docs {
		vec, err := s.embedder.Embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("embed document %s: %w", doc.ID, err)
		}
		normalizeInPlace(vec)
		graph.Add(hnsw.MakeNode(key, vec))
		byKey[key] = doc
		idToKey[doc.ID] = key
		key++
	}

	s.mu.Lock()
	s.graph = graph
	s.docs = byKey
	s.idToKey = idToKey
	s.nextKey = key
	s.mu.Unlock()
	return nil
}

// SimilaritySearch embeds the query and returns the k nearest documents,
// most similar first. Filter entries must match document metadata exactly.
func (s *MemoryVectorStore) SimilaritySearch(ctx context.Context, query string, k int, filter map[string]string) ([]VectorHit, error) {
	if k <= 0 {
		return []VectorHit{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	normalizeInPlace(vec)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	// Over-fetch when filtering so post-filter depth is still close to k.
	fetch := k
	if len(filter) > 0 {
		fetch = k * 4
	}

	nodes := s.graph.Search(vec, fetch)

	hits := make([]VectorHit, 0, k)
	for _, node := range nodes {
		doc, ok := s.docs[node.Key]
		if !ok {
			continue
		}
		if !matchesFilter(doc.Metadata, filter) {
			continue
		}
		distance := s.graph.Distance(vec, node.Value)
		hits = append(hits, VectorHit{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
			Score:    1 - float64(distance), // cosine distance -> similarity
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (s *MemoryVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func matchesFilter(meta Metadata, filter map[string]string) bool {
	for field, want := range filter {
		switch field {
		case "document_id":
			if meta.DocumentID != want {
				return false
			}
		case "parent_chunk_id":
			if meta.ParentChunkID != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
