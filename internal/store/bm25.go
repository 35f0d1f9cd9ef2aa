package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Okapi BM25 parameters. k1=1.5/b=0.75 are the standard defaults.
const (
	DefaultBM25K1 = 1.5
	DefaultBM25B  = 0.75

	// DefaultFieldConcurrency bounds parallel per-field searches.
	DefaultFieldConcurrency = 3
)

// BM25Config configures the field indexes.
type BM25Config struct {
	K1 float64
	B  float64

	// StopWords overrides the default tokenizer stop word list when set.
	StopWords []string

	// FieldConcurrency bounds SearchAllFields parallelism (default 3).
	FieldConcurrency int
}

// DefaultBM25Config returns the standard Okapi parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: DefaultBM25K1, B: DefaultBM25B, FieldConcurrency: DefaultFieldConcurrency}
}

// fieldText extracts the text a field index scores for one document.
// Documents lacking the field yield an empty string and never match.
func fieldText(field RetrievalPath, doc *Document) string {
	switch field {
	case PathKeywords:
		return strings.Join(doc.Metadata.Keywords, " ")
	case PathSummary:
		return doc.Metadata.Summary
	default:
		return doc.Content
	}
}

// FieldIndex is an independent Okapi BM25 inverted index over one logical
// document field. It is immutable after construction; MultiFieldIndex swaps
// whole instances on corpus updates.
type FieldIndex struct {
	field RetrievalPath
	k1    float64
	b     float64

	docs      []Document
	termFreqs []map[string]int // per-document term frequency
	docLens   []int
	avgDocLen float64
	docFreq   map[string]int // term -> number of documents containing it

	tokenizer *Tokenizer
}

// NewFieldIndex builds a BM25 index for one field over the given corpus.
func NewFieldIndex(field RetrievalPath, docs []Document, cfg BM25Config, tok *Tokenizer) *FieldIndex {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultBM25K1
	}
	if cfg.B <= 0 {
		cfg.B = DefaultBM25B
	}
	if tok == nil {
		tok = NewTokenizer()
	}

	idx := &FieldIndex{
		field:     field,
		k1:        cfg.K1,
		b:         cfg.B,
		docs:      docs,
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		docFreq:   make(map[string]int),
		tokenizer: tok,
	}

	var totalLen int
	for i := range docs {
		tokens := tok.Tokenize(fieldText(field, &docs[i]))
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		idx.termFreqs[i] = tf
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)
		for term := range tf {
			idx.docFreq[term]++
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}

	return idx
}

// Field returns the logical field this index scores.
func (idx *FieldIndex) Field() RetrievalPath { return idx.field }

// Len returns the corpus size.
func (idx *FieldIndex) Len() int { return len(idx.docs) }

// idf returns the Okapi inverse document frequency for a term.
func (idx *FieldIndex) idf(term string) float64 {
	df := idx.docFreq[term]
	if df == 0 {
		return 0
	}
	n := float64(len(idx.docs))
	return math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
}

// Search scores the whole corpus against the query and returns up to topK
// candidates with score > 0 (and >= minScore), best first. Ties keep corpus
// order so results are deterministic.
func (idx *FieldIndex) Search(query string, topK int, minScore float64) []*Candidate {
	terms := idx.tokenizer.Tokenize(query)
	if len(terms) == 0 || len(idx.docs) == 0 || topK <= 0 {
		return []*Candidate{}
	}

	type scored struct {
		doc     int
		score   float64
		matched []string
	}

	hits := make([]scored, 0, 32)
	for i := range idx.docs {
		tf := idx.termFreqs[i]
		if len(tf) == 0 {
			continue
		}
		var score float64
		var matched []string
		for _, term := range terms {
			freq := tf[term]
			if freq == 0 {
				continue
			}
			num := float64(freq) * (idx.k1 + 1)
			den := float64(freq) + idx.k1*(1-idx.b+idx.b*float64(idx.docLens[i])/idx.avgDocLen)
			score += idx.idf(term) * num / den
			matched = append(matched, term)
		}
		if score > 0 && score >= minScore {
			hits = append(hits, scored{doc: i, score: score, matched: matched})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	results := make([]*Candidate, len(hits))
	for i, h := range hits {
		results[i] = &Candidate{
			Document:     idx.docs[h.doc],
			Path:         idx.field,
			FieldSource:  string(idx.field),
			BM25Score:    h.score,
			MatchedTerms: dedupeTerms(h.matched),
		}
	}
	return results
}

func dedupeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FieldStats describes one field index.
type FieldStats struct {
	Field         RetrievalPath `json:"field"`
	DocumentCount int           `json:"document_count"`
	TermCount     int           `json:"term_count"`
	AvgDocLen     float64       `json:"avg_doc_len"`
}

// MultiFieldIndex owns one FieldIndex per lexical path and coordinates
// rebuilds against in-flight searches with a read/write lock: a search never
// observes a half-built index.
type MultiFieldIndex struct {
	mu      sync.RWMutex
	cfg     BM25Config
	tok     *Tokenizer
	indexes map[RetrievalPath]*FieldIndex
}

// NewMultiFieldIndex builds all field indexes over the corpus.
func NewMultiFieldIndex(docs []Document, cfg BM25Config) *MultiFieldIndex {
	tok := NewTokenizer()
	if len(cfg.StopWords) > 0 {
		tok = NewTokenizerWithStopWords(cfg.StopWords)
	}
	m := &MultiFieldIndex{cfg: cfg, tok: tok}
	m.indexes = m.build(docs)
	return m
}

func (m *MultiFieldIndex) build(docs []Document) map[RetrievalPath]*FieldIndex {
	indexes := make(map[RetrievalPath]*FieldIndex, 3)
	for _, field := range BM25Paths() {
		indexes[field] = NewFieldIndex(field, docs, m.cfg, m.tok)
	}
	return indexes
}

// SearchField runs a BM25 search against one field.
func (m *MultiFieldIndex) SearchField(ctx context.Context, field RetrievalPath, query string, topK int, minScore float64) ([]*Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	idx, ok := m.indexes[field]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown BM25 field %q", field)
	}
	return idx.Search(query, topK, minScore), nil
}

// SearchAllFields runs every field search with bounded concurrency and
// returns the per-field result lists. Individual fields cannot fail short of
// context cancellation, so the only error returned is the context's.
func (m *MultiFieldIndex) SearchAllFields(ctx context.Context, query string, topK int, minScore float64) (map[RetrievalPath][]*Candidate, error) {
	m.mu.RLock()
	concurrency := m.cfg.FieldConcurrency
	m.mu.RUnlock()
	if concurrency <= 0 {
		concurrency = DefaultFieldConcurrency
	}

	results := make(map[RetrievalPath][]*Candidate, 3)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

	for _, field := range BM25Paths() {
		field := field
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			hits, err := m.SearchField(gctx, field, query, topK, minScore)
			if err != nil {
				return err
			}
			mu.Lock()
			results[field] = hits
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Retrieve is the single-list compatibility path: it merges every field's
// topK, keeps the first occurrence of each document id (field order
// keywords, summary, content), and sorts by score.
func (m *MultiFieldIndex) Retrieve(ctx context.Context, query string, topK int) ([]*Candidate, error) {
	perField, err := m.SearchAllFields(ctx, query, topK, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	merged := make([]*Candidate, 0, topK*3)
	for _, field := range BM25Paths() {
		for _, c := range perField[field] {
			if _, dup := seen[c.ID]; dup {
				continue
			}
			seen[c.ID] = struct{}{}
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(a, b int) bool {
		return merged[a].BM25Score > merged[b].BM25Score
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}

// Update fully replaces all field indexes with a fresh corpus. The new
// indexes are built off-lock and swapped in atomically, so concurrent
// searches see either the old corpus or the new one, never a mix.
func (m *MultiFieldIndex) Update(docs []Document) {
	fresh := m.build(docs)

	m.mu.Lock()
	m.indexes = fresh
	m.mu.Unlock()
}

// SetFieldConcurrency adjusts the SearchAllFields parallelism bound for
// subsequent searches.
func (m *MultiFieldIndex) SetFieldConcurrency(n int) {
	if n <= 0 {
		n = DefaultFieldConcurrency
	}
	m.mu.Lock()
	m.cfg.FieldConcurrency = n
	m.mu.Unlock()
}

// Stats returns per-field index statistics in canonical field order.
func (m *MultiFieldIndex) Stats() []FieldStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]FieldStats, 0, len(m.indexes))
	for _, field := range BM25Paths() {
		idx := m.indexes[field]
		stats = append(stats, FieldStats{
			Field:         field,
			DocumentCount: idx.Len(),
			TermCount:     len(idx.docFreq),
			AvgDocLen:     idx.avgDocLen,
		})
	}
	return stats
}
