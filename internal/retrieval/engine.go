// Package retrieval wires the full pipeline together: query analysis,
// parallel multi-path retrieval, fusion, adaptive weighting, progressive
// staging, and reranking behind one entry point.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medfuse/medfuse/internal/adaptive"
	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/fusion"
	"github.com/medfuse/medfuse/internal/query"
	"github.com/medfuse/medfuse/internal/reliability"
	"github.com/medfuse/medfuse/internal/rerank"
	"github.com/medfuse/medfuse/internal/store"
	"github.com/medfuse/medfuse/internal/telemetry"
)

// Breaker names, one per external dependency.
const (
	breakerVector = "vector"
	breakerRerank = "rerank"
)

func breakerBM25(path store.RetrievalPath) string {
	return "bm25:" + string(path)
}

// Engine is the retrieval orchestrator. Construct once, share across
// goroutines; configuration and corpus can be hot-swapped.
type Engine struct {
	mu  sync.RWMutex
	cfg *config.Config

	logger   *slog.Logger
	analyzer *query.Analyzer
	analyses *lru.Cache[string, query.Analysis]

	bm25     *store.MultiFieldIndex
	dense    *store.DenseRetriever
	searcher store.VectorSearcher

	fuser    *fusion.Fuser
	adjuster *adaptive.Adjuster
	reranker *rerank.Reranker
	client   rerank.Client

	breakers     map[string]*reliability.CircuitBreaker
	perf         *reliability.PerformanceTracker
	errs         *reliability.ErrorTracker
	health       *reliability.HealthMonitor
	metrics      *reliability.Metrics
	queryMetrics *telemetry.QueryMetrics
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRerankClient supplies the external rerank API client. Required for
// the api and hybrid rerank strategies.
func WithRerankClient(client rerank.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

// WithMetricsRegisterer enables Prometheus collectors on the registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = reliability.NewMetrics(reg)
	}
}

// NewEngine builds the engine for the given configuration, vector
// searcher, and initial corpus. Configuration problems fail here and
// nowhere later.
func NewEngine(cfg *config.Config, searcher store.VectorSearcher, docs []store.Document, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if searcher == nil {
		return nil, fmt.Errorf("retrieval: vector searcher is required")
	}

	e := &Engine{
		cfg:          cfg,
		logger:       slog.Default(),
		analyzer:     query.NewAnalyzer(),
		searcher:     searcher,
		perf:         reliability.NewPerformanceTracker(cfg.Reliability.TrackerCapacity),
		health:       reliability.NewHealthMonitor(),
		queryMetrics: telemetry.NewQueryMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.errs = reliability.NewErrorTracker(cfg.Reliability.TrackerCapacity, e.logger)

	cacheSize := cfg.Performance.AnalysisCache
	if cacheSize <= 0 {
		cacheSize = 256
	}
	analyses, err := lru.New[string, query.Analysis](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("retrieval: analysis cache: %w", err)
	}
	e.analyses = analyses

	bm25Cfg := store.DefaultBM25Config()
	bm25Cfg.FieldConcurrency = cfg.Performance.FieldConcurrency
	e.bm25 = store.NewMultiFieldIndex(docs, bm25Cfg)

	if indexer, ok := searcher.(store.DocumentIndexer); ok && len(docs) > 0 {
		if err := indexer.IndexDocuments(context.Background(), docs); err != nil {
			return nil, fmt.Errorf("retrieval: initial vector indexing: %w", err)
		}
	}

	if err := e.rebuildComponents(cfg); err != nil {
		return nil, err
	}

	e.breakers = make(map[string]*reliability.CircuitBreaker)
	names := []string{breakerVector, breakerRerank}
	for _, p := range store.BM25Paths() {
		names = append(names, breakerBM25(p))
	}
	for _, name := range names {
		e.breakers[name] = reliability.NewCircuitBreaker(name,
			reliability.WithMaxFailures(cfg.Reliability.BreakerThreshold),
			reliability.WithRecoveryTimeout(cfg.Reliability.BreakerRecovery),
		)
	}

	e.registerHealthChecks()
	return e, nil
}

// rebuildComponents derives the fuser, adjuster, reranker, and dense
// retriever from cfg. Nothing is assigned until every build succeeded.
func (e *Engine) rebuildComponents(cfg *config.Config) error {
	fuser, err := fusion.New(cfg.Fusion)
	if err != nil {
		return err
	}

	dense, err := store.NewDenseRetriever(e.searcher, cfg.Paths[store.PathVector].MinScore)
	if err != nil {
		return err
	}

	var adjuster *adaptive.Adjuster
	if cfg.Adaptive.Enabled {
		adjuster, err = adaptive.NewAdjuster(cfg.Adaptive, e.logger)
		if err != nil {
			return err
		}
	}

	var reranker *rerank.Reranker
	if cfg.Rerank.Enabled {
		reranker, err = rerank.New(cfg.Rerank, e.client, e.logger)
		if err != nil {
			return err
		}
	}

	e.fuser = fuser
	e.dense = dense
	e.adjuster = adjuster
	e.reranker = reranker
	return nil
}

// registerHealthChecks wires breaker state and index emptiness into the
// health monitor.
func (e *Engine) registerHealthChecks() {
	for _, cb := range e.breakers {
		cb := cb
		e.health.Register(cb.Name(), func(context.Context) (bool, error) {
			switch cb.State() {
			case reliability.StateOpen:
				return false, fmt.Errorf("circuit %s open after %d failures", cb.Name(), cb.Failures())
			case reliability.StateHalfOpen:
				return true, fmt.Errorf("circuit %s probing recovery", cb.Name())
			default:
				return false, nil
			}
		})
	}

	e.health.Register("bm25_index", func(context.Context) (bool, error) {
		for _, fs := range e.bm25.Stats() {
			if fs.DocumentCount > 0 {
				return false, nil
			}
		}
		return true, fmt.Errorf("bm25 index is empty")
	})
}

// UpdateDocuments replaces the retrievable corpus. The BM25 indexes swap
// atomically; a searcher that supports local indexing is refreshed too.
func (e *Engine) UpdateDocuments(ctx context.Context, docs []store.Document) error {
	e.bm25.Update(docs)

	if indexer, ok := e.searcher.(store.DocumentIndexer); ok {
		if err := indexer.IndexDocuments(ctx, docs); err != nil {
			return fmt.Errorf("retrieval: vector reindexing: %w", err)
		}
	}

	e.logger.Info("corpus updated", slog.Int("documents", len(docs)))
	return nil
}

// UpdateConfig hot-swaps the engine configuration. The new configuration
// is validated first; on error the old one stays active.
func (e *Engine) UpdateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("retrieval: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.fuser
	oldDense := e.dense
	oldAdj, oldRr := e.adjuster, e.reranker
	if err := e.rebuildComponents(cfg); err != nil {
		e.fuser, e.dense = old, oldDense
		e.adjuster, e.reranker = oldAdj, oldRr
		return err
	}
	e.cfg = cfg

	// Settings that live inside long-lived components follow the swap.
	e.bm25.SetFieldConcurrency(cfg.Performance.FieldConcurrency)
	for _, cb := range e.breakers {
		cb.Configure(cfg.Reliability.BreakerThreshold, cfg.Reliability.BreakerRecovery)
	}

	e.logger.Info("configuration updated",
		slog.String("fusion_method", cfg.Fusion.Method),
		slog.Bool("adaptive", cfg.Adaptive.Enabled),
		slog.Bool("progressive", cfg.Progressive.Enabled))
	return nil
}

// RecordFeedback ingests post-hoc per-path quality metrics. A no-op when
// adaptive weighting is disabled.
func (e *Engine) RecordFeedback(qc adaptive.QueryContext, perPath map[store.RetrievalPath]adaptive.PerformanceMetrics) {
	e.mu.RLock()
	adjuster := e.adjuster
	e.mu.RUnlock()

	if adjuster == nil {
		return
	}
	adjuster.RecordFeedback(qc, perPath)
}

// HealthCheck probes every registered component.
func (e *Engine) HealthCheck(ctx context.Context) reliability.Report {
	return e.health.Check(ctx)
}

// PerformanceStats is the engine observability snapshot.
type PerformanceStats struct {
	Operations map[string]reliability.LatencyStats   `json:"operations"`
	Breakers   map[string]string                     `json:"breakers"`
	Rerank     *rerank.Stats                         `json:"rerank,omitempty"`
	Queries    *telemetry.Snapshot                   `json:"queries"`
	FieldStats []store.FieldStats                    `json:"field_stats"`
}

// GetPerformanceStats summarizes trackers, breakers, caches, and corpus.
func (e *Engine) GetPerformanceStats() PerformanceStats {
	e.mu.RLock()
	reranker := e.reranker
	e.mu.RUnlock()

	stats := PerformanceStats{
		Operations: make(map[string]reliability.LatencyStats),
		Breakers:   make(map[string]string, len(e.breakers)),
		Queries:    e.queryMetrics.Snapshot(),
		FieldStats: e.bm25.Stats(),
	}
	for _, op := range e.perf.Operations() {
		stats.Operations[op] = e.perf.Stats(op)
	}
	for name, cb := range e.breakers {
		stats.Breakers[name] = cb.State().String()
	}
	if reranker != nil {
		s := reranker.Stats()
		stats.Rerank = &s
	}
	return stats
}

// AdjustmentHistory exposes recent adaptive weight changes, newest last.
func (e *Engine) AdjustmentHistory(n int) []adaptive.Adjustment {
	e.mu.RLock()
	adjuster := e.adjuster
	e.mu.RUnlock()

	if adjuster == nil {
		return nil
	}
	return adjuster.History(n)
}

// queryContext converts an analysis into the adaptive feedback context.
func queryContext(a query.Analysis) adaptive.QueryContext {
	return adaptive.QueryContext{
		Type:            string(a.Type),
		Complexity:      string(a.Complexity),
		SemanticDensity: a.SemanticDensity,
		KeywordDensity:  a.KeywordDensity,
		EntityCount:     len(a.Entities),
		HasNumbers:      a.HasNumbers(),
	}
}

// analyze returns the cached analysis for a query, computing on miss.
func (e *Engine) analyze(q string) query.Analysis {
	if a, ok := e.analyses.Get(q); ok {
		return a
	}
	a := e.analyzer.Analyze(q)
	e.analyses.Add(q, a)
	return a
}
