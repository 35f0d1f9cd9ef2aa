package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/medfuse/medfuse/internal/adaptive"
	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/fusion"
	"github.com/medfuse/medfuse/internal/progressive"
	"github.com/medfuse/medfuse/internal/query"
	"github.com/medfuse/medfuse/internal/reliability"
	"github.com/medfuse/medfuse/internal/rerank"
	"github.com/medfuse/medfuse/internal/store"
	"github.com/medfuse/medfuse/internal/telemetry"
)

// RetrieveOptions tune one Retrieve call. Zero values fall back to the
// engine configuration.
type RetrieveOptions struct {
	// TopK overrides the configured final result count.
	TopK int

	// TimeBudget overrides the progressive hard ceiling for this call.
	TimeBudget time.Duration

	// QualityThreshold overrides the excellent-quality early stop.
	QualityThreshold float64
}

// PathOutcome reports one path's part in a request.
type PathOutcome struct {
	Candidates int           `json:"candidates"`
	Removed    int           `json:"removed_duplicates"`
	Latency    time.Duration `json:"latency"`
	Err        string        `json:"error,omitempty"`
}

// Stats explains how a response was produced.
type Stats struct {
	RequestID    string                                     `json:"request_id"`
	QueryType    string                                     `json:"query_type"`
	Complexity   string                                     `json:"complexity"`
	Confidence   float64                                    `json:"confidence"`
	Weights      map[store.RetrievalPath]float64            `json:"weights"`
	Paths        map[store.RetrievalPath]*PathOutcome       `json:"paths"`
	FusionMethod string                                     `json:"fusion_method"`
	FusedCount   int                                        `json:"fused_count"`
	Reranked     bool                                       `json:"reranked"`
	RerankInfo   string                                     `json:"rerank_strategy,omitempty"`
	RerankCache  bool                                       `json:"rerank_cache_hit,omitempty"`
	RerankErr    string                                     `json:"rerank_error,omitempty"`
	Stage        string                                     `json:"stage,omitempty"`
	StopReason   string                                     `json:"stop_reason,omitempty"`
	Quality      float64                                    `json:"quality,omitempty"`
	Elapsed      time.Duration                              `json:"elapsed"`
}

// Response is the product of one Retrieve call.
type Response struct {
	Documents []*fusion.FusedDocument `json:"documents"`
	Stats     Stats                   `json:"stats"`
}

// Retrieve runs the full pipeline for one query. No results is not an
// error: the response carries an empty document list and full stats.
func (e *Engine) Retrieve(ctx context.Context, q string, opts RetrieveOptions) (*Response, error) {
	start := time.Now()

	e.mu.RLock()
	cfg := e.cfg
	adjuster := e.adjuster
	reranker := e.reranker
	fuser := e.fuser
	e.mu.RUnlock()

	reqID := uuid.NewString()
	analysis := e.analyze(q)

	logger := e.logger.With(
		slog.String("request_id", reqID),
		slog.String("query_type", string(analysis.Type)))
	logger.Debug("retrieval started",
		slog.String("complexity", string(analysis.Complexity)),
		slog.Float64("confidence", analysis.Confidence))

	weights := e.effectiveWeights(cfg, adjuster, analysis)

	resp := &Response{Stats: Stats{
		RequestID:    reqID,
		QueryType:    string(analysis.Type),
		Complexity:   string(analysis.Complexity),
		Confidence:   analysis.Confidence,
		Weights:      weights,
		Paths:        make(map[store.RetrievalPath]*PathOutcome),
		FusionMethod: fuser.Method(),
	}}

	var fused []*fusion.FusedDocument
	if cfg.Progressive.Enabled {
		fused = e.runProgressive(ctx, cfg, fuser, q, analysis, weights, opts, resp)
	} else {
		results := e.runPaths(ctx, cfg, q, cfg.EnabledPaths(), 0, resp)
		fused = fuser.Fuse(results, weights)
	}
	resp.Stats.FusedCount = len(fused)

	topK := opts.TopK
	if topK <= 0 {
		topK = cfg.Fusion.FinalTopK
	}

	if reranker != nil && len(fused) > 0 {
		out := e.rerankFused(ctx, reranker, q, fused)
		resp.Stats.Reranked = len(out.Documents) > 0 && out.Documents[0].Reranked
		resp.Stats.RerankInfo = out.Strategy
		resp.Stats.RerankCache = out.CacheHit
		resp.Stats.RerankErr = out.Err
		fused = out.Documents
	}

	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	if fused == nil {
		fused = []*fusion.FusedDocument{}
	}
	resp.Documents = fused
	resp.Stats.Elapsed = time.Since(start)

	e.recordQuery(q, analysis, resp)
	logger.Debug("retrieval finished",
		slog.Int("documents", len(fused)),
		slog.Duration("elapsed", resp.Stats.Elapsed))
	return resp, nil
}

// effectiveWeights folds boost factors and adaptive adjustment into the
// configured path weights.
func (e *Engine) effectiveWeights(cfg *config.Config, adjuster *adaptive.Adjuster, analysis query.Analysis) map[store.RetrievalPath]float64 {
	weights := cfg.PathWeights()

	var sum float64
	for p, w := range weights {
		if pc, ok := cfg.Paths[p]; ok && pc.BoostFactor > 0 {
			w *= pc.BoostFactor
		}
		weights[p] = w
		sum += w
	}
	if sum > 0 {
		for p := range weights {
			weights[p] /= sum
		}
	}

	if adjuster != nil {
		weights = adjuster.Adjust(weights, queryContext(analysis))
	}
	return weights
}

// runPaths fans out over the given paths in parallel. Failures are
// isolated: an errored path is logged, tracked, and excluded while its
// siblings proceed. Each path's ranking is deduplicated before fusion.
func (e *Engine) runPaths(ctx context.Context, cfg *config.Config, q string, paths []store.RetrievalPath, topKOverride int, resp *Response) map[store.RetrievalPath][]*store.Candidate {
	results := make(map[store.RetrievalPath][]*store.Candidate, len(paths))
	outcomes := make(map[store.RetrievalPath]*PathOutcome, len(paths))

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)

	for _, path := range paths {
		path := path
		pc, ok := cfg.Paths[path]
		if !ok || !pc.Enabled {
			continue
		}
		topK := pc.TopK
		if topKOverride > 0 {
			topK = topKOverride
		}

		g.Go(func() error {
			pathCtx, cancel := context.WithTimeout(ctx, cfg.Performance.PathTimeout)
			defer cancel()

			pathStart := time.Now()
			candidates, err := e.runPath(pathCtx, q, path, topK, pc.MinScore)
			latency := time.Since(pathStart)

			outcome := &PathOutcome{Latency: latency}
			e.perf.Record("path:"+string(path), latency, err != nil)
			if e.metrics != nil {
				e.metrics.ObservePath(string(path), latency, err != nil)
			}

			if err != nil {
				outcome.Err = err.Error()
				e.errs.Track(string(path), "retrieval", reliability.SeverityWarning, err)
				e.logger.Warn("path excluded from fusion",
					slog.String("path", string(path)),
					slog.String("error", err.Error()))
			} else {
				deduped, stats := store.DedupeSmallToBig(candidates)
				outcome.Candidates = len(deduped)
				outcome.Removed = stats.Removed
				mu.Lock()
				results[path] = deduped
				mu.Unlock()
			}

			mu.Lock()
			outcomes[path] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are per-path

	if resp != nil {
		for p, o := range outcomes {
			resp.Stats.Paths[p] = o
		}
	}
	return results
}

// runPath executes one path behind its circuit breaker.
func (e *Engine) runPath(ctx context.Context, q string, path store.RetrievalPath, topK int, minScore float64) ([]*store.Candidate, error) {
	if path == store.PathVector {
		cb := e.breakers[breakerVector]
		var candidates []*store.Candidate
		err := cb.Execute(func() error {
			var innerErr error
			candidates, innerErr = e.dense.Retrieve(ctx, q, topK, nil)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		e.mirrorBreaker(cb)
		return candidates, nil
	}

	cb := e.breakers[breakerBM25(path)]
	var candidates []*store.Candidate
	err := cb.Execute(func() error {
		var innerErr error
		candidates, innerErr = e.bm25.SearchField(ctx, path, q, topK, minScore)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	e.mirrorBreaker(cb)
	return candidates, nil
}

func (e *Engine) mirrorBreaker(cb *reliability.CircuitBreaker) {
	if e.metrics != nil {
		e.metrics.SetBreakerState(cb.Name(), cb.State())
	}
}

// runProgressive drives staged retrieval, with each stage running the
// normal parallel fan-out restricted to the stage's path subset.
func (e *Engine) runProgressive(ctx context.Context, cfg *config.Config, fuser *fusion.Fuser, q string, analysis query.Analysis, weights map[store.RetrievalPath]float64, opts RetrieveOptions, resp *Response) []*fusion.FusedDocument {
	progCfg := cfg.Progressive
	if opts.TimeBudget > 0 {
		progCfg.HardCeiling = opts.TimeBudget
	}
	if opts.QualityThreshold > 0 {
		progCfg.ExcellentQuality = opts.QualityThreshold
	}

	runStage := func(stageCtx context.Context, stageQuery string, stage config.StageConfig) ([]*fusion.FusedDocument, error) {
		fusionStart := time.Now()
		results := e.runPaths(stageCtx, cfg, stageQuery, stage.Paths, stage.TopK, resp)
		if len(results) == 0 {
			return nil, fmt.Errorf("stage %s: all paths failed", stage.Name)
		}
		fused := fuser.Fuse(results, weights)
		if e.metrics != nil {
			e.metrics.ObserveFusion(time.Since(fusionStart))
		}
		return fused, nil
	}

	controller := progressive.NewController(progCfg, runStage, e.logger)
	result := controller.Run(ctx, progressive.QueryProfile{
		Query:      q,
		Complexity: string(analysis.Complexity),
		Confidence: analysis.Confidence,
		Entities:   analysis.Entities,
		Keywords:   analysis.Keywords,
	})

	resp.Stats.Stage = result.Stage
	resp.Stats.StopReason = result.StopReason
	resp.Stats.Quality = result.Quality
	if e.metrics != nil {
		e.metrics.ObserveStageStop(result.StopReason)
	}
	return result.Documents
}

// rerankFused wraps reranking in its breaker; an open breaker skips the
// rerank stage entirely and keeps fusion order.
func (e *Engine) rerankFused(ctx context.Context, reranker *rerank.Reranker, q string, fused []*fusion.FusedDocument) *rerank.Outcome {
	cb := e.breakers[breakerRerank]
	if !cb.Allow() {
		e.mirrorBreaker(cb)
		return &rerank.Outcome{
			Documents: fused,
			Strategy:  reranker.PrimaryStrategy(),
			Err:       reliability.ErrCircuitOpen.Error(),
		}
	}

	out := reranker.Rerank(ctx, q, fused)
	if out.Err == "" {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}
	e.mirrorBreaker(cb)

	if e.metrics != nil && !out.Fallback && out.Err == "" {
		e.metrics.ObserveRerankCache(out.CacheHit)
	}
	return out
}

// recordQuery feeds the local telemetry collector.
func (e *Engine) recordQuery(q string, analysis query.Analysis, resp *Response) {
	paths := make([]store.RetrievalPath, 0, len(resp.Stats.Paths))
	for p, o := range resp.Stats.Paths {
		if o.Err == "" {
			paths = append(paths, p)
		}
	}

	e.queryMetrics.Record(telemetry.QueryEvent{
		RequestID:   resp.Stats.RequestID,
		Query:       q,
		QueryType:   string(analysis.Type),
		PathsUsed:   paths,
		ResultCount: len(resp.Documents),
		Latency:     resp.Stats.Elapsed,
		Reranked:    resp.Stats.Reranked,
		Stage:       resp.Stats.Stage,
	})
}
