// Package validation checks corpus documents before indexing. Problems
// split into errors, which make a corpus unusable, and warnings, which
// degrade retrieval quality but do not block indexing.
package validation

import (
	"fmt"
	"strings"

	"github.com/medfuse/medfuse/internal/store"
)

// Issue is one finding about a corpus document.
type Issue struct {
	DocumentID string `json:"document_id"`
	Field      string `json:"field"`
	Message    string `json:"message"`
}

func (i Issue) String() string {
	if i.DocumentID == "" {
		return fmt.Sprintf("%s: %s", i.Field, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.DocumentID, i.Field, i.Message)
}

// Report collects all findings for one corpus.
type Report struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Valid reports whether the corpus can be indexed.
func (r *Report) Valid() bool {
	return len(r.Errors) == 0
}

// Err returns a single error summarizing all blocking issues, nil when
// the corpus is valid.
func (r *Report) Err() error {
	if r.Valid() {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, issue := range r.Errors {
		msgs[i] = issue.String()
	}
	return fmt.Errorf("invalid corpus: %s", strings.Join(msgs, "; "))
}

// ValidateCorpus checks documents for indexing problems.
//
// Errors: empty corpus, missing ids, duplicate ids, empty content.
// Warnings: self-referential parent links, parents that do not exist in
// the corpus (legal for small-to-big but often a data defect), and
// documents with neither keywords nor summary (two of the three lexical
// paths cannot see them).
func ValidateCorpus(docs []store.Document) *Report {
	report := &Report{}

	if len(docs) == 0 {
		report.Errors = append(report.Errors, Issue{
			Field:   "corpus",
			Message: "contains no documents",
		})
		return report
	}

	ids := make(map[string]bool, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			report.Errors = append(report.Errors, Issue{
				Field:   "id",
				Message: fmt.Sprintf("document %d has no id", i),
			})
			continue
		}
		if ids[d.ID] {
			report.Errors = append(report.Errors, Issue{
				DocumentID: d.ID,
				Field:      "id",
				Message:    "duplicate id",
			})
		}
		ids[d.ID] = true
	}

	for _, d := range docs {
		if d.ID == "" {
			continue
		}
		if strings.TrimSpace(d.Content) == "" {
			report.Errors = append(report.Errors, Issue{
				DocumentID: d.ID,
				Field:      "content",
				Message:    "empty content",
			})
		}
		if d.Metadata.ParentChunkID != "" && d.Metadata.ParentChunkID == d.ID {
			report.Warnings = append(report.Warnings, Issue{
				DocumentID: d.ID,
				Field:      "parent_chunk_id",
				Message:    "document is its own parent",
			})
		} else if p := d.Metadata.ParentChunkID; p != "" && !ids[p] {
			report.Warnings = append(report.Warnings, Issue{
				DocumentID: d.ID,
				Field:      "parent_chunk_id",
				Message:    fmt.Sprintf("parent %q not present in corpus", p),
			})
		}
		if len(d.Metadata.Keywords) == 0 && d.Metadata.Summary == "" {
			report.Warnings = append(report.Warnings, Issue{
				DocumentID: d.ID,
				Field:      "metadata",
				Message:    "no keywords or summary, only vector and content paths can match",
			})
		}
	}

	return report
}
