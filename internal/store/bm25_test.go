package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCorpus() []Document {
	return []Document{
		{
			ID:      "c1",
			Content: "Metformin is the first-line treatment for type 2 diabetes mellitus.",
			Metadata: Metadata{
				DocumentID: "doc-1",
				Keywords:   []string{"metformin", "diabetes", "treatment"},
				Summary:    "First-line pharmacotherapy for type 2 diabetes.",
			},
		},
		{
			ID:      "c2",
			Content: "Insulin therapy is indicated when oral agents fail to control glycemia.",
			Metadata: Metadata{
				DocumentID: "doc-1",
				Keywords:   []string{"insulin", "glycemia"},
				Summary:    "Insulin escalation after oral agent failure.",
			},
		},
		{
			ID:      "c3",
			Content: "Hypertension management begins with lifestyle modification and ACE inhibitors.",
			Metadata: Metadata{
				DocumentID: "doc-2",
				Keywords:   []string{"hypertension", "ace", "inhibitors"},
				// No summary: must never match the summary field.
			},
		},
	}
}

func TestFieldIndex_RanksMatchingDocumentFirst(t *testing.T) {
	idx := NewFieldIndex(PathContent, testCorpus(), DefaultBM25Config(), NewTokenizer())

	results := idx.Search("metformin diabetes treatment", 10, 0)

	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ID)
	assert.Equal(t, PathContent, results[0].Path)
	assert.Equal(t, "content", results[0].FieldSource)
	assert.Greater(t, results[0].BM25Score, 0.0)
	assert.Contains(t, results[0].MatchedTerms, "metformin")
}

func TestFieldIndex_MissingFieldNeverMatches(t *testing.T) {
	idx := NewFieldIndex(PathSummary, testCorpus(), DefaultBM25Config(), NewTokenizer())

	results := idx.Search("hypertension lifestyle", 10, 0)

	for _, r := range results {
		assert.NotEqual(t, "c3", r.ID, "document without summary must not match summary field")
	}
}

func TestFieldIndex_EmptyQuery(t *testing.T) {
	idx := NewFieldIndex(PathContent, testCorpus(), DefaultBM25Config(), NewTokenizer())

	assert.Empty(t, idx.Search("", 10, 0))
	assert.Empty(t, idx.Search("the of and", 10, 0), "stop-word-only query yields no tokens")
}

func TestFieldIndex_MinScoreFilter(t *testing.T) {
	idx := NewFieldIndex(PathContent, testCorpus(), DefaultBM25Config(), NewTokenizer())

	all := idx.Search("insulin", 10, 0)
	require.NotEmpty(t, all)

	filtered := idx.Search("insulin", 10, all[0].BM25Score+1)
	assert.Empty(t, filtered)
}

func TestMultiFieldIndex_SearchAllFields(t *testing.T) {
	m := NewMultiFieldIndex(testCorpus(), DefaultBM25Config())

	perField, err := m.SearchAllFields(context.Background(), "metformin diabetes", 5, 0)
	require.NoError(t, err)

	require.Len(t, perField, 3)
	require.NotEmpty(t, perField[PathKeywords])
	assert.Equal(t, "c1", perField[PathKeywords][0].ID)
	require.NotEmpty(t, perField[PathContent])
	assert.Equal(t, "c1", perField[PathContent][0].ID)
}

func TestMultiFieldIndex_RetrieveDeduplicatesAcrossFields(t *testing.T) {
	m := NewMultiFieldIndex(testCorpus(), DefaultBM25Config())

	merged, err := m.Retrieve(context.Background(), "metformin diabetes treatment", 10)
	require.NoError(t, err)

	seen := make(map[string]int)
	for _, c := range merged {
		seen[c.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "document %s appears %d times", id, n)
	}
}

func TestMultiFieldIndex_UpdateReplacesCorpus(t *testing.T) {
	m := NewMultiFieldIndex(testCorpus(), DefaultBM25Config())

	m.Update([]Document{{
		ID:       "n1",
		Content:  "Amoxicillin dosing for community acquired pneumonia.",
		Metadata: Metadata{DocumentID: "doc-9"},
	}})

	old, err := m.SearchField(context.Background(), PathContent, "metformin", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, old)

	fresh, err := m.SearchField(context.Background(), PathContent, "amoxicillin pneumonia", 5, 0)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "n1", fresh[0].ID)

	stats := m.Stats()
	require.Len(t, stats, 3)
	for _, s := range stats {
		assert.Equal(t, 1, s.DocumentCount)
	}
}
