package store

// DedupStats reports what small-to-big deduplication removed, for
// observability.
type DedupStats struct {
	Input   int `json:"input"`
	Kept    int `json:"kept"`
	Removed int `json:"removed"`
}

// DedupeSmallToBig collapses multiple child-chunk hits that share one parent
// chunk, keeping only the first (highest-ranked) representative of each
// parent. Candidates without a parent id are treated as unique.
//
// Without this step a large chunk split into several overlapping children can
// occupy multiple top ranks within one path, inflating its RRF contribution
// relative to documents with a single representation.
//
// The input list must already be ranked best-first; the output preserves its
// order. Pure and synchronous.
func DedupeSmallToBig(ranked []*Candidate) ([]*Candidate, DedupStats) {
	stats := DedupStats{Input: len(ranked)}
	if len(ranked) == 0 {
		return []*Candidate{}, stats
	}

	seen := make(map[string]struct{}, len(ranked))
	kept := make([]*Candidate, 0, len(ranked))
	for _, c := range ranked {
		key := c.ParentKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, c)
	}

	stats.Kept = len(kept)
	stats.Removed = stats.Input - stats.Kept
	return kept, stats
}
