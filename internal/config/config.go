// Package config defines the retrieval engine configuration, its validation
// rules, and the built-in presets.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/medfuse/medfuse/internal/store"
)

// Fusion method names accepted by FusionConfig.Method.
const (
	FusionWeightedRRF = "weighted_rrf"
	FusionRRF         = "rrf"
	FusionWeightedSum = "weighted_sum"
	FusionMaxScore    = "max_score"
)

// Rerank strategy names accepted by RerankConfig.
const (
	RerankAPI         = "api"
	RerankScoreFusion = "score_fusion"
	RerankHybrid      = "hybrid"
	RerankSimilarity  = "similarity"
)

// Adaptive strategy names accepted by AdaptiveConfig.Strategy.
const (
	AdaptivePerformance   = "performance"
	AdaptiveQueryAware    = "query_aware"
	AdaptiveHybrid        = "hybrid"
	AdaptiveReinforcement = "reinforcement"
)

// weightSumTolerance bounds the drift allowed before path weights are
// renormalized on load.
const weightSumTolerance = 1e-9

// PathConfig tunes one retrieval path.
type PathConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Weight      float64 `yaml:"weight" validate:"gte=0,lte=1"`
	TopK        int     `yaml:"top_k" validate:"gt=0,lte=1000"`
	MinScore    float64 `yaml:"min_score" validate:"gte=0"`
	BoostFactor float64 `yaml:"boost_factor" validate:"gt=0,lte=10"`
}

// FusionConfig tunes how per-path rankings merge into one list.
type FusionConfig struct {
	Method           string  `yaml:"method" validate:"oneof=weighted_rrf rrf weighted_sum max_score"`
	RRFK             int     `yaml:"rrf_k" validate:"gt=0"`
	NormalizeScores  bool    `yaml:"normalize_scores"`
	FinalTopK        int     `yaml:"final_top_k" validate:"gt=0,lte=1000"`
	DiversityPenalty float64 `yaml:"diversity_penalty" validate:"gte=0,lte=1"`
}

// RerankConfig tunes the optional rerank stage.
type RerankConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Strategy      string        `yaml:"strategy" validate:"oneof=api score_fusion hybrid similarity"`
	Fallback      string        `yaml:"fallback" validate:"omitempty,oneof=api score_fusion hybrid similarity"`
	TopK          int           `yaml:"top_k" validate:"gt=0,lte=1000"`
	BatchSize     int           `yaml:"batch_size" validate:"gt=0,lte=256"`
	MaxConcurrent int           `yaml:"max_concurrent" validate:"gt=0,lte=64"`
	CacheSize     int           `yaml:"cache_size" validate:"gte=0"`
	CacheTTL      time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
}

// AdaptiveConfig tunes feedback-driven weight adjustment.
type AdaptiveConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Strategy     string  `yaml:"strategy" validate:"oneof=performance query_aware hybrid reinforcement"`
	WindowSize   int     `yaml:"window_size" validate:"gt=0,lte=10000"`
	HistorySize  int     `yaml:"history_size" validate:"gt=0,lte=10000"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0,lte=1"`
	MinWeight    float64 `yaml:"min_weight" validate:"gte=0,lt=1"`
	MaxWeight    float64 `yaml:"max_weight" validate:"gt=0,lte=1"`
}

// StageConfig tunes one progressive retrieval stage.
type StageConfig struct {
	Name             string                `yaml:"name" validate:"required"`
	Paths            []store.RetrievalPath `yaml:"paths" validate:"min=1"`
	TopK             int                   `yaml:"top_k" validate:"gt=0,lte=1000"`
	Budget           time.Duration         `yaml:"budget" validate:"gt=0"`
	QualityThreshold float64               `yaml:"quality_threshold" validate:"gte=0,lte=1"`
	MaxDocs          int                   `yaml:"max_docs" validate:"gt=0"`
}

// ProgressiveConfig tunes staged retrieval with early stopping.
type ProgressiveConfig struct {
	Enabled          bool          `yaml:"enabled"`
	ExcellentQuality float64       `yaml:"excellent_quality" validate:"gt=0,lte=1"`
	HardCeiling      time.Duration `yaml:"hard_ceiling" validate:"gt=0"`
	Stages           []StageConfig `yaml:"stages" validate:"omitempty,dive"`
}

// ReliabilityConfig tunes circuit breakers and trackers.
type ReliabilityConfig struct {
	BreakerThreshold int           `yaml:"breaker_threshold" validate:"gt=0"`
	BreakerRecovery  time.Duration `yaml:"breaker_recovery" validate:"gt=0"`
	TrackerCapacity  int           `yaml:"tracker_capacity" validate:"gt=0,lte=100000"`
}

// PerformanceConfig tunes timeouts and parallelism.
type PerformanceConfig struct {
	PathTimeout      time.Duration `yaml:"path_timeout" validate:"gt=0"`
	FieldConcurrency int           `yaml:"field_concurrency" validate:"gt=0,lte=32"`
	AnalysisCache    int           `yaml:"analysis_cache" validate:"gte=0"`
}

// Config is the full engine configuration.
type Config struct {
	Paths       map[store.RetrievalPath]PathConfig `yaml:"paths" validate:"required,dive"`
	Fusion      FusionConfig                       `yaml:"fusion"`
	Rerank      RerankConfig                       `yaml:"rerank"`
	Adaptive    AdaptiveConfig                     `yaml:"adaptive"`
	Progressive ProgressiveConfig                  `yaml:"progressive"`
	Reliability ReliabilityConfig                  `yaml:"reliability"`
	Performance PerformanceConfig                  `yaml:"performance"`
}

// ConfigError reports a field that failed validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the balanced configuration all presets derive from.
func Default() *Config {
	return &Config{
		Paths: map[store.RetrievalPath]PathConfig{
			store.PathVector:   {Enabled: true, Weight: 0.40, TopK: 20, MinScore: 0.30, BoostFactor: 1.0},
			store.PathKeywords: {Enabled: true, Weight: 0.20, TopK: 20, MinScore: 0.0, BoostFactor: 1.0},
			store.PathSummary:  {Enabled: true, Weight: 0.20, TopK: 20, MinScore: 0.0, BoostFactor: 1.0},
			store.PathContent:  {Enabled: true, Weight: 0.20, TopK: 20, MinScore: 0.0, BoostFactor: 1.0},
		},
		Fusion: FusionConfig{
			Method:           FusionWeightedRRF,
			RRFK:             60,
			NormalizeScores:  true,
			FinalTopK:        10,
			DiversityPenalty: 0.0,
		},
		Rerank: RerankConfig{
			Enabled:       true,
			Strategy:      RerankScoreFusion,
			Fallback:      RerankSimilarity,
			TopK:          10,
			BatchSize:     16,
			MaxConcurrent: 4,
			CacheSize:     1000,
			CacheTTL:      time.Hour,
			Timeout:       10 * time.Second,
		},
		Adaptive: AdaptiveConfig{
			Enabled:      false,
			Strategy:     AdaptiveHybrid,
			WindowSize:   100,
			HistorySize:  100,
			LearningRate: 0.1,
			MinWeight:    0.05,
			MaxWeight:    0.80,
		},
		Progressive: ProgressiveConfig{
			Enabled:          false,
			ExcellentQuality: 0.8,
			HardCeiling:      15 * time.Second,
		},
		Reliability: ReliabilityConfig{
			BreakerThreshold: 5,
			BreakerRecovery:  30 * time.Second,
			TrackerCapacity:  1000,
		},
		Performance: PerformanceConfig{
			PathTimeout:      30 * time.Second,
			FieldConcurrency: 3,
			AnalysisCache:    256,
		},
	}
}

// Load reads a YAML file over the defaults, then validates and normalizes.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural rules and renormalizes path weights so that
// enabled weights sum to exactly 1.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return &ConfigError{
				Field:  verrs[0].Namespace(),
				Reason: fmt.Sprintf("failed %q rule", verrs[0].Tag()),
			}
		}
		return err
	}

	for p := range c.Paths {
		if !p.Valid() {
			return &ConfigError{Field: "paths", Reason: fmt.Sprintf("unknown path %q", p)}
		}
	}
	if len(c.EnabledPaths()) == 0 {
		return &ConfigError{Field: "paths", Reason: "at least one path must be enabled"}
	}
	if c.enabledWeightSum() == 0 {
		return &ConfigError{Field: "paths", Reason: "enabled path weights must not all be zero"}
	}
	if c.Adaptive.MinWeight >= c.Adaptive.MaxWeight {
		return &ConfigError{Field: "adaptive", Reason: "min_weight must be below max_weight"}
	}
	for _, s := range c.Progressive.Stages {
		for _, p := range s.Paths {
			if !p.Valid() {
				return &ConfigError{
					Field:  "progressive.stages",
					Reason: fmt.Sprintf("stage %q uses unknown path %q", s.Name, p),
				}
			}
		}
	}

	c.normalizeWeights()
	return nil
}

func (c *Config) enabledWeightSum() float64 {
	var sum float64
	for _, p := range store.AllPaths() {
		if pc, ok := c.Paths[p]; ok && pc.Enabled {
			sum += pc.Weight
		}
	}
	return sum
}

// normalizeWeights rescales enabled path weights to sum to 1. Disabled
// paths keep their configured weight untouched. Validate has already
// rejected an all-zero sum.
func (c *Config) normalizeWeights() {
	sum := c.enabledWeightSum()
	if sum == 0 || math.Abs(sum-1) <= weightSumTolerance {
		return
	}
	for _, p := range store.AllPaths() {
		if pc, ok := c.Paths[p]; ok && pc.Enabled {
			pc.Weight /= sum
			c.Paths[p] = pc
		}
	}
}

// EnabledPaths returns enabled paths in canonical order.
func (c *Config) EnabledPaths() []store.RetrievalPath {
	enabled := make([]store.RetrievalPath, 0, len(c.Paths))
	for _, p := range store.AllPaths() {
		if pc, ok := c.Paths[p]; ok && pc.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// PathWeights returns the enabled path weight vector, renormalized.
func (c *Config) PathWeights() map[store.RetrievalPath]float64 {
	weights := make(map[store.RetrievalPath]float64, len(c.Paths))
	var sum float64
	for _, p := range store.AllPaths() {
		if pc, ok := c.Paths[p]; ok && pc.Enabled {
			weights[p] = pc.Weight
			sum += pc.Weight
		}
	}
	if sum > 0 {
		for p := range weights {
			weights[p] /= sum
		}
	}
	return weights
}

// SetPathWeight updates one path weight and renormalizes the rest so the
// enabled weights still sum to 1.
func (c *Config) SetPathWeight(path store.RetrievalPath, weight float64) error {
	pc, ok := c.Paths[path]
	if !ok {
		return &ConfigError{Field: "paths", Reason: fmt.Sprintf("unknown path %q", path)}
	}
	if weight < 0 || weight > 1 {
		return &ConfigError{Field: "paths." + string(path) + ".weight", Reason: "must be within [0,1]"}
	}

	var otherSum float64
	for p, other := range c.Paths {
		if p != path && other.Enabled {
			otherSum += other.Weight
		}
	}

	pc.Weight = weight
	c.Paths[path] = pc

	remaining := 1 - weight
	if otherSum > 0 {
		for p, other := range c.Paths {
			if p != path && other.Enabled {
				other.Weight = other.Weight / otherSum * remaining
				c.Paths[p] = other
			}
		}
	}
	return nil
}

// Clone returns a deep copy safe to mutate independently.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Paths = make(map[store.RetrievalPath]PathConfig, len(c.Paths))
	for p, pc := range c.Paths {
		clone.Paths[p] = pc
	}
	clone.Progressive.Stages = append([]StageConfig(nil), c.Progressive.Stages...)
	for i, s := range clone.Progressive.Stages {
		clone.Progressive.Stages[i].Paths = append([]store.RetrievalPath(nil), s.Paths...)
	}
	return &clone
}
