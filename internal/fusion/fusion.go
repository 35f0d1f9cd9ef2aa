// Package fusion merges per-path candidate rankings into one unified
// ranking. All methods are deterministic: identical inputs produce
// identical output order, with ties broken by first-seen order across the
// canonical path sequence.
package fusion

import (
	"fmt"
	"sort"

	"github.com/medfuse/medfuse/internal/config"
	"github.com/medfuse/medfuse/internal/store"
)

// Contribution records how one path ranked a document.
type Contribution struct {
	Rank   int     `json:"rank"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// FusedDocument is one document after fusion, carrying full score
// provenance for explain output and downstream reranking.
type FusedDocument struct {
	store.Document

	FusionScore      float64                                 `json:"fusion_score"`
	RerankScore      float64                                 `json:"rerank_score,omitempty"`
	Reranked         bool                                    `json:"reranked,omitempty"`
	DiversityPenalty float64                                 `json:"diversity_penalty,omitempty"`
	Contributions    map[store.RetrievalPath]Contribution    `json:"contributions"`

	// order is the first-seen position across paths, the deterministic
	// tie-break for equal scores.
	order int
}

// ScoreOf resolves the best available score for ranking: rerank when
// present, then fusion, then the strongest raw path score.
func (d *FusedDocument) ScoreOf() float64 {
	if d.Reranked {
		return d.RerankScore
	}
	if d.FusionScore > 0 {
		return d.FusionScore
	}
	var best float64
	for _, c := range d.Contributions {
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}

// BestSimilarity returns the vector path similarity, 0 when absent.
func (d *FusedDocument) BestSimilarity() float64 {
	return d.Contributions[store.PathVector].Score
}

// BestBM25 returns the strongest lexical path score, 0 when absent.
func (d *FusedDocument) BestBM25() float64 {
	var best float64
	for _, p := range store.BM25Paths() {
		if c, ok := d.Contributions[p]; ok && c.Score > best {
			best = c.Score
		}
	}
	return best
}

// Fuser merges per-path rankings with a method fixed at construction.
type Fuser struct {
	method           string
	rrfK             int
	normalize        bool
	finalTopK        int
	diversityPenalty float64
}

// FuserOption configures a Fuser.
type FuserOption func(*Fuser)

// New creates a fuser from validated fusion configuration.
func New(cfg config.FusionConfig) (*Fuser, error) {
	switch cfg.Method {
	case config.FusionWeightedRRF, config.FusionRRF, config.FusionWeightedSum, config.FusionMaxScore:
	default:
		return nil, fmt.Errorf("fusion: unknown method %q", cfg.Method)
	}

	f := &Fuser{
		method:           cfg.Method,
		rrfK:             cfg.RRFK,
		normalize:        cfg.NormalizeScores,
		finalTopK:        cfg.FinalTopK,
		diversityPenalty: cfg.DiversityPenalty,
	}
	if f.rrfK <= 0 {
		f.rrfK = 60
	}
	return f, nil
}

// Method returns the configured fusion method name.
func (f *Fuser) Method() string {
	return f.method
}

// Fuse merges per-path rankings into one list sorted by fusion score
// descending. Empty paths are skipped; all-empty input yields an empty
// slice. Weights are consumed as given and not renormalized here.
func (f *Fuser) Fuse(results map[store.RetrievalPath][]*store.Candidate, weights map[store.RetrievalPath]float64) []*FusedDocument {
	docs := make(map[string]*FusedDocument)
	var ordered []*FusedDocument

	// Canonical path order fixes insertion order and tie-breaking.
	for _, path := range store.AllPaths() {
		ranked := results[path]
		if len(ranked) == 0 {
			continue
		}
		weight := weights[path]
		raw := f.rawScores(ranked)

		for i, cand := range ranked {
			fd, ok := docs[cand.ID]
			if !ok {
				fd = &FusedDocument{
					Document:      cand.Document,
					Contributions: make(map[store.RetrievalPath]Contribution, 2),
					order:         len(ordered),
				}
				docs[cand.ID] = fd
				ordered = append(ordered, fd)
			}

			rank := i + 1
			fd.Contributions[path] = Contribution{
				Rank:   rank,
				Score:  cand.RawScore(),
				Weight: weight,
			}

			switch f.method {
			case config.FusionWeightedRRF:
				fd.FusionScore += weight / float64(f.rrfK+rank)
			case config.FusionRRF:
				fd.FusionScore += 1 / float64(f.rrfK+rank)
			case config.FusionWeightedSum:
				fd.FusionScore += weight * raw[i]
			case config.FusionMaxScore:
				// Weights do not apply here: the strongest raw score from
				// any single path wins outright.
				if raw[i] > fd.FusionScore {
					fd.FusionScore = raw[i]
				}
			}
		}
	}

	if len(ordered) == 0 {
		return []*FusedDocument{}
	}

	sortByScore(ordered)

	if f.diversityPenalty > 0 {
		applyDiversityPenalty(ordered, f.diversityPenalty)
		sortByScore(ordered)
	}

	if f.finalTopK > 0 && len(ordered) > f.finalTopK {
		ordered = ordered[:f.finalTopK]
	}
	return ordered
}

// rawScores returns the per-candidate raw scores for score-based methods,
// min-max normalized to [0,1] within the path when configured.
func (f *Fuser) rawScores(ranked []*store.Candidate) []float64 {
	raw := make([]float64, len(ranked))
	for i, c := range ranked {
		raw[i] = c.RawScore()
	}
	if !f.normalize || f.method == config.FusionWeightedRRF || f.method == config.FusionRRF {
		return raw
	}

	minS, maxS := raw[0], raw[0]
	for _, s := range raw[1:] {
		if s < minS {
			minS = s
		}
		if s > maxS {
			maxS = s
		}
	}
	if maxS == minS {
		// A flat path contributes its full weight to every member.
		for i := range raw {
			raw[i] = 1
		}
		return raw
	}
	for i := range raw {
		raw[i] = (raw[i] - minS) / (maxS - minS)
	}
	return raw
}

// sortByScore orders descending by fusion score; the stable sort keeps
// first-seen order on exact ties.
func sortByScore(docs []*FusedDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].FusionScore != docs[j].FusionScore {
			return docs[i].FusionScore > docs[j].FusionScore
		}
		return docs[i].order < docs[j].order
	})
}
