//go:build ignore

// Package main generates a synthetic corpus for benchmarking retrieval.
// Usage: go run scripts/generate-test-corpus.go -docs 1000 -output testdata/corpus.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numDocs = flag.Int("docs", 1000, "Number of document chunks to generate")
	outPath = flag.String("output", "testdata/corpus.json", "Output file")
	seed    = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Vocabulary for synthetic clinical chunks.
var (
	drugs = []string{
		"metformin", "lisinopril", "atorvastatin", "amlodipine", "omeprazole",
		"levothyroxine", "insulin glargine", "warfarin", "sertraline", "albuterol",
	}
	conditions = []string{
		"type 2 diabetes", "hypertension", "hyperlipidemia", "atrial fibrillation",
		"hypothyroidism", "asthma", "chronic kidney disease", "depression",
		"gastroesophageal reflux", "heart failure",
	}
	sections = []string{
		"dosing", "contraindications", "adverse effects", "monitoring",
		"drug interactions", "renal adjustment", "titration", "initiation",
	}
	sentences = []string{
		"%s is commonly used in the management of %s.",
		"Dose adjustment of %s is recommended for patients with %s.",
		"Monitor patients on %s closely when %s is also present.",
		"%s should be avoided or used with caution in %s.",
		"Evidence supports %s as part of first line therapy for %s.",
		"Guidelines recommend reassessing %s therapy annually in %s.",
	}
)

type metadata struct {
	DocumentID    string   `json:"document_id"`
	ParentChunkID string   `json:"parent_chunk_id,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Summary       string   `json:"summary,omitempty"`
}

type document struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata metadata `json:"metadata"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	docs := make([]document, 0, *numDocs)
	for i := 0; i < *numDocs; i++ {
		drug := drugs[rng.Intn(len(drugs))]
		condition := conditions[rng.Intn(len(conditions))]
		section := sections[rng.Intn(len(sections))]

		var sb strings.Builder
		for s := 0; s < 3+rng.Intn(4); s++ {
			fmt.Fprintf(&sb, sentences[rng.Intn(len(sentences))]+" ", drug, condition)
		}

		doc := document{
			ID:      fmt.Sprintf("chunk-%04d", i),
			Content: strings.TrimSpace(sb.String()),
			Metadata: metadata{
				DocumentID: fmt.Sprintf("doc-%s", strings.ReplaceAll(drug, " ", "-")),
				Keywords:   []string{drug, firstWord(condition), section},
				Summary:    fmt.Sprintf("%s %s for %s.", capitalize(drug), section, condition),
			},
		}
		// Every third chunk is a child split from a larger parent chunk.
		if i%3 == 0 && i > 0 {
			doc.Metadata.ParentChunkID = fmt.Sprintf("chunk-%04d", i-1)
		}
		docs = append(docs, doc)
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		os.Exit(1)
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal corpus: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write corpus: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d documents to %s\n", len(docs), *outPath)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
