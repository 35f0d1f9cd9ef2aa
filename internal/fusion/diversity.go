package fusion

import (
	"strings"
)

// applyDiversityPenalty reduces the score of documents that heavily
// overlap a higher-ranked document. The penalty is the maximum pairwise
// token overlap against all higher-ranked documents, scaled by factor,
// applied once in a single pass over the ranked list.
func applyDiversityPenalty(ranked []*FusedDocument, factor float64) {
	if len(ranked) < 2 {
		return
	}

	tokenSets := make([]map[string]struct{}, len(ranked))
	for i, d := range ranked {
		tokenSets[i] = tokenSet(d.Content)
	}

	for i := 1; i < len(ranked); i++ {
		var maxOverlap float64
		for j := 0; j < i; j++ {
			if o := overlap(tokenSets[i], tokenSets[j]); o > maxOverlap {
				maxOverlap = o
			}
		}
		penalty := maxOverlap * factor
		ranked[i].DiversityPenalty = penalty
		ranked[i].FusionScore -= penalty
		if ranked[i].FusionScore < 0 {
			ranked[i].FusionScore = 0
		}
	}
}

// overlap is the Jaccard coefficient of two token sets.
func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	var common int
	for tok := range small {
		if _, ok := large[tok]; ok {
			common++
		}
	}
	union := len(a) + len(b) - common
	if union == 0 {
		return 0
	}
	return float64(common) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = struct{}{}
	}
	return set
}
