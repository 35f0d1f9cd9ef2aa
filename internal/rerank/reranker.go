package rerank

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/fusion"
)

// cachedScore is the cache payload: the reranked order by id and score.
// Documents themselves are never cached across queries.
type cachedScore struct {
	ID    string
	Score float64
}

// Outcome is a rerank invocation result. Err is informational: the
// documents are always usable, degraded order included.
type Outcome struct {
	Documents []*fusion.FusedDocument
	Strategy  string
	CacheHit  bool
	Fallback  bool
	Err       string
	Duration  time.Duration
}

// Stats are cumulative reranker counters.
type Stats struct {
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	APICalls    int64 `json:"api_calls"`
	Fallbacks   int64 `json:"fallbacks"`
	Degraded    int64 `json:"degraded"`
}

// Reranker runs a primary strategy with cached results and a one-shot
// fallback. It never returns an error to the caller.
type Reranker struct {
	primary  Strategy
	fallback Strategy
	topK     int
	timeout  time.Duration
	cache    *expirable.LRU[string, []cachedScore]
	logger   *slog.Logger

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	apiCalls    atomic.Int64
	fallbacks   atomic.Int64
	degraded    atomic.Int64
}

// New builds a reranker from validated configuration. The client may be
// nil when neither the primary nor the fallback strategy needs the API.
func New(cfg config.RerankConfig, client Client, logger *slog.Logger) (*Reranker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	primary, err := buildStrategy(cfg.Strategy, cfg, client)
	if err != nil {
		return nil, err
	}

	fallbackName := cfg.Fallback
	if fallbackName == "" {
		fallbackName = config.RerankScoreFusion
	}
	fallback, err := buildStrategy(fallbackName, cfg, client)
	if err != nil {
		return nil, err
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 1000
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Reranker{
		primary:  primary,
		fallback: fallback,
		topK:     cfg.TopK,
		timeout:  cfg.Timeout,
		cache:    expirable.NewLRU[string, []cachedScore](size, nil, ttl),
		logger:   logger,
	}, nil
}

func buildStrategy(name string, cfg config.RerankConfig, client Client) (Strategy, error) {
	switch name {
	case config.RerankAPI:
		return newAPIStrategy(client, cfg.BatchSize, cfg.MaxConcurrent)
	case config.RerankScoreFusion:
		return scoreFusionStrategy{}, nil
	case config.RerankHybrid:
		api, err := newAPIStrategy(client, cfg.BatchSize, cfg.MaxConcurrent)
		if err != nil {
			return nil, err
		}
		return hybridStrategy{api: api}, nil
	case config.RerankSimilarity:
		return similarityStrategy{}, nil
	default:
		return nil, fmt.Errorf("rerank: unknown strategy %q", name)
	}
}

// PrimaryStrategy returns the primary strategy name.
func (r *Reranker) PrimaryStrategy() string {
	return r.primary.Name()
}

// Rerank reorders docs for the query. On primary failure the fallback runs
// once; if both fail the original order truncated to topK is returned with
// the error recorded in the outcome. The caller never sees an error value.
func (r *Reranker) Rerank(ctx context.Context, query string, docs []*fusion.FusedDocument) *Outcome {
	start := time.Now()
	out := &Outcome{Strategy: r.primary.Name()}

	if len(docs) == 0 {
		out.Documents = []*fusion.FusedDocument{}
		out.Duration = time.Since(start)
		return out
	}

	key := r.cacheKey(query, docs, r.primary.Name())
	if scores, ok := r.cache.Get(key); ok {
		if ranked, ok := applyCached(docs, scores); ok {
			r.cacheHits.Add(1)
			out.Documents = ranked
			out.CacheHit = true
			out.Duration = time.Since(start)
			return out
		}
	}
	r.cacheMisses.Add(1)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.apiCalls.Add(1)
	ranked, err := r.primary.Rerank(ctx, query, docs, r.topK)
	if err == nil {
		r.cache.Add(key, toCached(ranked))
		out.Documents = ranked
		out.Duration = time.Since(start)
		return out
	}

	r.logger.Warn("primary rerank strategy failed",
		slog.String("strategy", r.primary.Name()),
		slog.String("error", err.Error()))

	r.fallbacks.Add(1)
	out.Fallback = true
	out.Err = fmt.Sprintf("primary %s failed: %v", r.primary.Name(), err)

	ranked, ferr := r.fallback.Rerank(ctx, query, docs, r.topK)
	if ferr == nil {
		out.Documents = ranked
		out.Strategy = r.fallback.Name()
		out.Duration = time.Since(start)
		return out
	}

	r.logger.Warn("fallback rerank strategy failed",
		slog.String("strategy", r.fallback.Name()),
		slog.String("error", ferr.Error()))

	// Degrade to the unreranked order.
	r.degraded.Add(1)
	out.Err = fmt.Sprintf("%s; fallback %s failed: %v", out.Err, r.fallback.Name(), ferr)
	out.Documents = truncate(docs, r.topK)
	out.Duration = time.Since(start)
	return out
}

// Stats returns the cumulative counters.
func (r *Reranker) Stats() Stats {
	return Stats{
		CacheHits:   r.cacheHits.Load(),
		CacheMisses: r.cacheMisses.Load(),
		APICalls:    r.apiCalls.Load(),
		Fallbacks:   r.fallbacks.Load(),
		Degraded:    r.degraded.Load(),
	}
}

// cacheKey hashes the query, the sorted candidate ids, and the strategy.
// Sorting makes the key independent of incoming document order.
func (r *Reranker) cacheKey(query string, docs []*fusion.FusedDocument, strategy string) string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write([]byte(strategy))
	return hex.EncodeToString(h.Sum(nil))
}

// applyCached maps cached scores onto the current documents. It fails if
// any cached id is missing, forcing a fresh rerank.
func applyCached(docs []*fusion.FusedDocument, scores []cachedScore) ([]*fusion.FusedDocument, bool) {
	byID := make(map[string]*fusion.FusedDocument, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	ranked := make([]*fusion.FusedDocument, 0, len(scores))
	for _, cs := range scores {
		d, ok := byID[cs.ID]
		if !ok {
			return nil, false
		}
		clone := *d
		clone.RerankScore = cs.Score
		clone.Reranked = true
		ranked = append(ranked, &clone)
	}
	return ranked, true
}

func toCached(ranked []*fusion.FusedDocument) []cachedScore {
	out := make([]cachedScore, len(ranked))
	for i, d := range ranked {
		out[i] = cachedScore{ID: d.ID, Score: d.RerankScore}
	}
	return out
}
