package config

import (
	"fmt"
	"time"

	"github.com/medfuse/medfuse/internal/store"
)

// Preset names accepted by FromPreset.
const (
	PresetBalanced      = "balanced"
	PresetVectorFocused = "vector-focused"
	PresetKeyword       = "keyword-focused"
	PresetFast          = "fast"
	PresetHighPrecision = "high-precision"
)

// PresetNames lists the built-in presets in display order.
func PresetNames() []string {
	return []string{PresetBalanced, PresetVectorFocused, PresetKeyword, PresetFast, PresetHighPrecision}
}

// FromPreset builds a validated configuration for a named preset.
func FromPreset(name string) (*Config, error) {
	cfg := Default()

	switch name {
	case PresetBalanced:
		// Defaults are the balanced preset.

	case PresetVectorFocused:
		setWeights(cfg, map[store.RetrievalPath]float64{
			store.PathVector:   0.60,
			store.PathKeywords: 0.10,
			store.PathSummary:  0.15,
			store.PathContent:  0.15,
		})
		cfg.Rerank.Strategy = RerankSimilarity

	case PresetKeyword:
		setWeights(cfg, map[store.RetrievalPath]float64{
			store.PathVector:   0.15,
			store.PathKeywords: 0.40,
			store.PathSummary:  0.15,
			store.PathContent:  0.30,
		})

	case PresetFast:
		for p, pc := range cfg.Paths {
			pc.TopK = 10
			cfg.Paths[p] = pc
		}
		cfg.Fusion.FinalTopK = 5
		cfg.Rerank.Enabled = false
		cfg.Performance.PathTimeout = 5 * time.Second
		cfg.Progressive.Enabled = true
		cfg.Progressive.Stages = []StageConfig{
			{
				Name:             "fast",
				Paths:            []store.RetrievalPath{store.PathVector, store.PathKeywords},
				TopK:             10,
				Budget:           2 * time.Second,
				QualityThreshold: 0.5,
				MaxDocs:          5,
			},
		}

	case PresetHighPrecision:
		for p, pc := range cfg.Paths {
			pc.TopK = 50
			cfg.Paths[p] = pc
		}
		cfg.Fusion.FinalTopK = 20
		cfg.Fusion.DiversityPenalty = 0.1
		cfg.Rerank.Strategy = RerankHybrid
		cfg.Rerank.Fallback = RerankScoreFusion
		cfg.Rerank.TopK = 20

	default:
		return nil, &ConfigError{Field: "preset", Reason: fmt.Sprintf("unknown preset %q", name)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setWeights(cfg *Config, weights map[store.RetrievalPath]float64) {
	for p, w := range weights {
		pc := cfg.Paths[p]
		pc.Weight = w
		cfg.Paths[p] = pc
	}
}
