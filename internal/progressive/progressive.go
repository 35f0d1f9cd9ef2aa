// Package progressive runs retrieval in escalating stages, stopping as
// soon as result quality is good enough or time runs out.
package progressive

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/fusion"
	"github.com/medfuse/medfuse/internal/store"
)

// Stage names, in escalation order.
const (
	StageFast       = "fast"
	StageStandard   = "standard"
	StageDeep       = "deep"
	StageExhaustive = "exhaustive"
)

// Stop reasons reported in RunResult.
const (
	StopStageThreshold = "stage_threshold"
	StopExcellent      = "excellent"
	StopStageBudget    = "stage_budget"
	StopHardCeiling    = "hard_ceiling"
	StopStageFailure   = "stage_failure"
	StopExhausted      = "exhausted"
)

// Quality blend weights.
const (
	qualityRelevance = 0.5
	qualityDiversity = 0.2
	qualityCoverage  = 0.3
)

// DefaultStages returns the built-in escalation ladder.
func DefaultStages() []config.StageConfig {
	return []config.StageConfig{
		{
			Name:             StageFast,
			Paths:            []store.RetrievalPath{store.PathVector, store.PathKeywords},
			TopK:             10,
			Budget:           2 * time.Second,
			QualityThreshold: 0.60,
			MaxDocs:          5,
		},
		{
			Name:             StageStandard,
			Paths:            []store.RetrievalPath{store.PathVector, store.PathKeywords, store.PathSummary},
			TopK:             20,
			Budget:           5 * time.Second,
			QualityThreshold: 0.55,
			MaxDocs:          10,
		},
		{
			Name:             StageDeep,
			Paths:            store.AllPaths(),
			TopK:             30,
			Budget:           8 * time.Second,
			QualityThreshold: 0.50,
			MaxDocs:          15,
		},
		{
			Name:             StageExhaustive,
			Paths:            store.AllPaths(),
			TopK:             50,
			Budget:           12 * time.Second,
			QualityThreshold: 0.0,
			MaxDocs:          20,
		},
	}
}

// QueryProfile is what stage selection and coverage scoring need to know
// about the query.
type QueryProfile struct {
	Query      string
	Complexity string
	Confidence float64
	Entities   []string
	Keywords   []string
}

// RunStageFunc executes the retrieval pipeline restricted to one stage's
// path subset and limits.
type RunStageFunc func(ctx context.Context, query string, stage config.StageConfig) ([]*fusion.FusedDocument, error)

// StageOutcome records one executed stage.
type StageOutcome struct {
	Stage    string        `json:"stage"`
	Quality  float64       `json:"quality"`
	DocCount int           `json:"doc_count"`
	Elapsed  time.Duration `json:"elapsed"`
	Failed   bool          `json:"failed"`
}

// RunResult is the final product of a progressive run.
type RunResult struct {
	Documents  []*fusion.FusedDocument `json:"documents"`
	Stage      string                  `json:"stage"`
	Quality    float64                 `json:"quality"`
	StopReason string                  `json:"stop_reason"`
	Stages     []StageOutcome          `json:"stages"`
	Elapsed    time.Duration           `json:"elapsed"`
}

// Controller drives staged retrieval. The actual per-stage retrieval is
// injected so the controller stays free of pipeline wiring.
type Controller struct {
	cfg    config.ProgressiveConfig
	stages []config.StageConfig
	run    RunStageFunc
	logger *slog.Logger
	now    func() time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// withClock overrides the time source in tests.
func withClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates a controller. Stages default to the built-in
// ladder when the configuration names none.
func NewController(cfg config.ProgressiveConfig, run RunStageFunc, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	stages := cfg.Stages
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	if cfg.ExcellentQuality <= 0 {
		cfg.ExcellentQuality = 0.8
	}
	if cfg.HardCeiling <= 0 {
		cfg.HardCeiling = 15 * time.Second
	}

	c := &Controller{
		cfg:    cfg,
		stages: stages,
		run:    run,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// initialStageIndex picks where to start: simple confident queries begin
// at the first stage, everything else skips one ahead when possible.
func (c *Controller) initialStageIndex(profile QueryProfile) int {
	if profile.Complexity == "simple" && profile.Confidence >= 0.7 {
		return 0
	}
	if len(c.stages) > 1 {
		return 1
	}
	return 0
}

// Run executes stages until quality or time stops the escalation. The
// best-quality stage's documents win, even when a later stage failed.
func (c *Controller) Run(ctx context.Context, profile QueryProfile) *RunResult {
	start := c.now()
	result := &RunResult{StopReason: StopExhausted}

	best := -1
	var bestDocs []*fusion.FusedDocument

	for i := c.initialStageIndex(profile); i < len(c.stages); i++ {
		// The ceiling bounds the whole run, not each stage. A stage never
		// starts once the ceiling is spent, and never gets more of its
		// budget than the ceiling has left.
		remaining := c.cfg.HardCeiling - c.now().Sub(start)
		if remaining <= 0 {
			result.StopReason = StopHardCeiling
			break
		}

		stage := c.stages[i]
		timeout := stage.Budget
		if remaining < timeout {
			timeout = remaining
		}
		stageStart := c.now()

		stageCtx, cancel := context.WithTimeout(ctx, timeout)
		docs, err := c.run(stageCtx, profile.Query, stage)
		cancel()

		elapsed := c.now().Sub(stageStart)
		outcome := StageOutcome{Stage: stage.Name, Elapsed: elapsed}

		if err != nil {
			// A failed stage scores zero and ends the escalation; earlier
			// results are still returned.
			outcome.Failed = true
			result.Stages = append(result.Stages, outcome)
			c.logger.Warn("progressive stage failed",
				slog.String("stage", stage.Name),
				slog.String("error", err.Error()))
			result.StopReason = StopStageFailure
			break
		}

		if stage.MaxDocs > 0 && len(docs) > stage.MaxDocs {
			docs = docs[:stage.MaxDocs]
		}

		quality := c.Quality(docs, profile)
		outcome.Quality = quality
		outcome.DocCount = len(docs)
		result.Stages = append(result.Stages, outcome)

		if best < 0 || quality > result.Quality {
			best = i
			result.Quality = quality
			result.Stage = stage.Name
			bestDocs = docs
		}

		total := c.now().Sub(start)
		switch {
		case quality >= c.cfg.ExcellentQuality:
			result.StopReason = StopExcellent
		case stage.QualityThreshold > 0 && quality >= stage.QualityThreshold:
			result.StopReason = StopStageThreshold
		case total >= c.cfg.HardCeiling:
			result.StopReason = StopHardCeiling
		case elapsed > stage.Budget:
			result.StopReason = StopStageBudget
		default:
			continue
		}
		break
	}

	if bestDocs == nil {
		bestDocs = []*fusion.FusedDocument{}
	}
	result.Documents = bestDocs
	result.Elapsed = c.now().Sub(start)
	return result
}

// Quality scores a stage's documents: relevance from rank-weighted scores,
// diversity from content length spread, coverage from query term presence.
func (c *Controller) Quality(docs []*fusion.FusedDocument, profile QueryProfile) float64 {
	if len(docs) == 0 {
		return 0
	}
	return qualityRelevance*relevanceScore(docs) +
		qualityDiversity*diversityScore(docs) +
		qualityCoverage*coverageScore(docs, profile)
}

// relevanceScore is the rank-weighted average of per-document scores,
// each clamped to [0,1].
func relevanceScore(docs []*fusion.FusedDocument) float64 {
	var weighted, weightSum float64
	for i, d := range docs {
		w := 1.0 / float64(i+1)
		weighted += w * clamp01(d.ScoreOf())
		weightSum += w
	}
	return weighted / weightSum
}

// diversityScore is the coefficient of variation of content lengths,
// clamped to [0,1]. Identical lengths score 0; a wide spread scores high.
func diversityScore(docs []*fusion.FusedDocument) float64 {
	if len(docs) < 2 {
		return 0
	}
	var sum float64
	for _, d := range docs {
		sum += float64(len(d.Content))
	}
	mean := sum / float64(len(docs))
	if mean == 0 {
		return 0
	}

	var variance float64
	for _, d := range docs {
		diff := float64(len(d.Content)) - mean
		variance += diff * diff
	}
	variance /= float64(len(docs))

	return clamp01(math.Sqrt(variance) / mean)
}

// coverageScore is the fraction of query entities and keywords literally
// present in the returned content.
func coverageScore(docs []*fusion.FusedDocument, profile QueryProfile) float64 {
	terms := make([]string, 0, len(profile.Entities)+len(profile.Keywords))
	terms = append(terms, profile.Entities...)
	terms = append(terms, profile.Keywords...)
	if len(terms) == 0 {
		return 1
	}

	var corpus strings.Builder
	for _, d := range docs {
		corpus.WriteString(strings.ToLower(d.Content))
		corpus.WriteByte(' ')
	}
	text := corpus.String()

	var present int
	for _, term := range terms {
		if strings.Contains(text, strings.ToLower(term)) {
			present++
		}
	}
	return float64(present) / float64(len(terms))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
