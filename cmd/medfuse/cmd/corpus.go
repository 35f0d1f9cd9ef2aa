package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/embed"
	"github.com/medfuse/medfuse/internal/retrieval"
	"github.com/medfuse/medfuse/internal/store"
	"github.com/medfuse/medfuse/internal/validation"
)

// parseCorpus reads a corpus file containing a list of document chunks.
// JSON is the default; .yaml/.yml files are parsed as YAML.
func parseCorpus(path string) ([]store.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	var docs []store.Document
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &docs)
	default:
		err = json.Unmarshal(data, &docs)
	}
	if err != nil {
		return nil, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	return docs, nil
}

// loadCorpus parses and validates a corpus, logging non-blocking issues.
func loadCorpus(path string) ([]store.Document, error) {
	docs, err := parseCorpus(path)
	if err != nil {
		return nil, err
	}

	report := validation.ValidateCorpus(docs)
	if err := report.Err(); err != nil {
		return nil, fmt.Errorf("corpus %s: %w", path, err)
	}
	for _, w := range report.Warnings {
		slog.Warn("corpus warning", slog.String("issue", w.String()))
	}
	return docs, nil
}

// buildEngine constructs a retrieval engine over an in-memory vector
// store using the static embedder.
func buildEngine(cfg *config.Config, docs []store.Document) (*retrieval.Engine, error) {
	vectors, err := store.NewMemoryVectorStore(embed.NewStaticEmbedder())
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	engine, err := retrieval.NewEngine(cfg, vectors, docs)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return engine, nil
}
