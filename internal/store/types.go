// Package store provides the retrieval-side document model and the
// per-path retrieval primitives: per-field BM25 indexes, the dense
// retriever adapter, and small-to-big deduplication.
package store

import (
	"context"
)

// RetrievalPath identifies one independent retrieval method.
// The set is fixed; paths are never added at runtime.
type RetrievalPath string

const (
	// PathVector is dense vector similarity search.
	PathVector RetrievalPath = "vector"

	// PathKeywords is BM25 over the extracted keywords field.
	PathKeywords RetrievalPath = "keywords"

	// PathSummary is BM25 over the chunk summary field.
	PathSummary RetrievalPath = "summary"

	// PathContent is BM25 over the full chunk content.
	PathContent RetrievalPath = "content"
)

// AllPaths returns every retrieval path in canonical order.
// Canonical order is what makes fusion insertion order, and therefore
// tie-breaking, deterministic.
func AllPaths() []RetrievalPath {
	return []RetrievalPath{PathVector, PathKeywords, PathSummary, PathContent}
}

// BM25Paths returns the lexical paths in canonical order.
func BM25Paths() []RetrievalPath {
	return []RetrievalPath{PathKeywords, PathSummary, PathContent}
}

// Valid reports whether p is one of the fixed retrieval paths.
func (p RetrievalPath) Valid() bool {
	switch p {
	case PathVector, PathKeywords, PathSummary, PathContent:
		return true
	}
	return false
}

// IsLexical reports whether p is one of the BM25 field paths.
func (p RetrievalPath) IsLexical() bool {
	return p == PathKeywords || p == PathSummary || p == PathContent
}

// Metadata carries the chunk bookkeeping the retrieval core relies on.
// DocumentID groups chunks of one source document; ParentChunkID links a
// child chunk to the larger parent chunk it was split from (small-to-big).
type Metadata struct {
	DocumentID    string   `json:"document_id" yaml:"document_id"`
	ParentChunkID string   `json:"parent_chunk_id,omitempty" yaml:"parent_chunk_id,omitempty"`
	Keywords      []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Summary       string   `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Document is one retrievable chunk as supplied by the corpus source.
type Document struct {
	ID       string   `json:"id" yaml:"id"`
	Content  string   `json:"content" yaml:"content"`
	Metadata Metadata `json:"metadata" yaml:"metadata"`
}

// Candidate is a per-path retrieval hit. Candidates are produced fresh for
// each query and owned by that query's pipeline; they are never shared or
// mutated across queries.
type Candidate struct {
	Document

	// Path is the retrieval path that produced this hit.
	Path RetrievalPath

	// FieldSource is the BM25 field that matched (empty for vector hits).
	FieldSource string

	// BM25Score is the raw Okapi score (lexical paths only).
	BM25Score float64

	// Similarity is the vector similarity score (vector path only).
	Similarity float64

	// MatchedTerms are the query terms that matched (lexical paths only).
	MatchedTerms []string
}

// RawScore returns the path-native score of the candidate.
func (c *Candidate) RawScore() float64 {
	if c.Path == PathVector {
		return c.Similarity
	}
	return c.BM25Score
}

// ParentKey returns the small-to-big dedup key: the parent chunk id when
// present, otherwise the candidate's own id (treated as unique).
func (c *Candidate) ParentKey() string {
	if c.Metadata.ParentChunkID != "" {
		return c.Metadata.ParentChunkID
	}
	return c.ID
}

// VectorHit is one raw result from an external vector store.
type VectorHit struct {
	ID       string
	Content  string
	Metadata Metadata
	Score    float64
}

// VectorSearcher is the contract the dense path consumes. Implementations
// are external collaborators (a vector database client) or the in-process
// MemoryVectorStore.
type VectorSearcher interface {
	// SimilaritySearch returns up to k hits for the query, most similar
	// first. Filter entries restrict by metadata field when non-empty.
	SimilaritySearch(ctx context.Context, query string, k int, filter map[string]string) ([]VectorHit, error)
}

// DocumentIndexer is implemented by searchers that maintain a local index
// and support hot corpus replacement.
type DocumentIndexer interface {
	// IndexDocuments fully replaces the indexed corpus.
	IndexDocuments(ctx context.Context, docs []Document) error
}
