package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/medfuse/medfuse/internal/store"
)

// duration accepts Go duration strings ("30s", "1h") and plain integer
// nanoseconds in YAML. yaml.v3 has no native time.Duration support, so
// each duration-bearing config struct decodes through a seeded mirror:
// seeding from the current value keeps absent keys at their defaults,
// matching Load's YAML-over-defaults contract.
type duration time.Duration

func (d *duration) UnmarshalYAML(n *yaml.Node) error {
	var ns int64
	if err := n.Decode(&ns); err == nil {
		*d = duration(ns)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", n.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = duration(parsed)
	return nil
}

func (r *RerankConfig) UnmarshalYAML(n *yaml.Node) error {
	aux := struct {
		Enabled       bool     `yaml:"enabled"`
		Strategy      string   `yaml:"strategy"`
		Fallback      string   `yaml:"fallback"`
		TopK          int      `yaml:"top_k"`
		BatchSize     int      `yaml:"batch_size"`
		MaxConcurrent int      `yaml:"max_concurrent"`
		CacheSize     int      `yaml:"cache_size"`
		CacheTTL      duration `yaml:"cache_ttl"`
		Timeout       duration `yaml:"timeout"`
	}{
		Enabled:       r.Enabled,
		Strategy:      r.Strategy,
		Fallback:      r.Fallback,
		TopK:          r.TopK,
		BatchSize:     r.BatchSize,
		MaxConcurrent: r.MaxConcurrent,
		CacheSize:     r.CacheSize,
		CacheTTL:      duration(r.CacheTTL),
		Timeout:       duration(r.Timeout),
	}
	if err := n.Decode(&aux); err != nil {
		return err
	}
	*r = RerankConfig{
		Enabled:       aux.Enabled,
		Strategy:      aux.Strategy,
		Fallback:      aux.Fallback,
		TopK:          aux.TopK,
		BatchSize:     aux.BatchSize,
		MaxConcurrent: aux.MaxConcurrent,
		CacheSize:     aux.CacheSize,
		CacheTTL:      time.Duration(aux.CacheTTL),
		Timeout:       time.Duration(aux.Timeout),
	}
	return nil
}

func (s *StageConfig) UnmarshalYAML(n *yaml.Node) error {
	aux := struct {
		Name             string                `yaml:"name"`
		Paths            []store.RetrievalPath `yaml:"paths"`
		TopK             int                   `yaml:"top_k"`
		Budget           duration              `yaml:"budget"`
		QualityThreshold float64               `yaml:"quality_threshold"`
		MaxDocs          int                   `yaml:"max_docs"`
	}{
		Name:             s.Name,
		Paths:            s.Paths,
		TopK:             s.TopK,
		Budget:           duration(s.Budget),
		QualityThreshold: s.QualityThreshold,
		MaxDocs:          s.MaxDocs,
	}
	if err := n.Decode(&aux); err != nil {
		return err
	}
	*s = StageConfig{
		Name:             aux.Name,
		Paths:            aux.Paths,
		TopK:             aux.TopK,
		Budget:           time.Duration(aux.Budget),
		QualityThreshold: aux.QualityThreshold,
		MaxDocs:          aux.MaxDocs,
	}
	return nil
}

func (p *ProgressiveConfig) UnmarshalYAML(n *yaml.Node) error {
	aux := struct {
		Enabled          bool          `yaml:"enabled"`
		ExcellentQuality float64       `yaml:"excellent_quality"`
		HardCeiling      duration      `yaml:"hard_ceiling"`
		Stages           []StageConfig `yaml:"stages"`
	}{
		Enabled:          p.Enabled,
		ExcellentQuality: p.ExcellentQuality,
		HardCeiling:      duration(p.HardCeiling),
		Stages:           p.Stages,
	}
	if err := n.Decode(&aux); err != nil {
		return err
	}
	*p = ProgressiveConfig{
		Enabled:          aux.Enabled,
		ExcellentQuality: aux.ExcellentQuality,
		HardCeiling:      time.Duration(aux.HardCeiling),
		Stages:           aux.Stages,
	}
	return nil
}

func (r *ReliabilityConfig) UnmarshalYAML(n *yaml.Node) error {
	aux := struct {
		BreakerThreshold int      `yaml:"breaker_threshold"`
		BreakerRecovery  duration `yaml:"breaker_recovery"`
		TrackerCapacity  int      `yaml:"tracker_capacity"`
	}{
		BreakerThreshold: r.BreakerThreshold,
		BreakerRecovery:  duration(r.BreakerRecovery),
		TrackerCapacity:  r.TrackerCapacity,
	}
	if err := n.Decode(&aux); err != nil {
		return err
	}
	*r = ReliabilityConfig{
		BreakerThreshold: aux.BreakerThreshold,
		BreakerRecovery:  time.Duration(aux.BreakerRecovery),
		TrackerCapacity:  aux.TrackerCapacity,
	}
	return nil
}

func (p *PerformanceConfig) UnmarshalYAML(n *yaml.Node) error {
	aux := struct {
		PathTimeout      duration `yaml:"path_timeout"`
		FieldConcurrency int      `yaml:"field_concurrency"`
		AnalysisCache    int      `yaml:"analysis_cache"`
	}{
		PathTimeout:      duration(p.PathTimeout),
		FieldConcurrency: p.FieldConcurrency,
		AnalysisCache:    p.AnalysisCache,
	}
	if err := n.Decode(&aux); err != nil {
		return err
	}
	*p = PerformanceConfig{
		PathTimeout:      time.Duration(aux.PathTimeout),
		FieldConcurrency: aux.FieldConcurrency,
		AnalysisCache:    aux.AnalysisCache,
	}
	return nil
}
