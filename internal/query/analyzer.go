// Package query analyzes raw queries and routes them to retrieval paths.
// Analysis is deterministic and pure: the same query always yields the same
// QueryAnalysis, and no I/O happens here.
package query

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/medfuse/medfuse/internal/store"
)

// Type classifies what kind of answer a query is after.
type Type string

const (
	TypeFactual     Type = "factual"
	TypeProcedural  Type = "procedural"
	TypeComparative Type = "comparative"
	TypeTemporal    Type = "temporal"
	TypeNumerical   Type = "numerical"
	TypeConceptual  Type = "conceptual"
	TypeMixed       Type = "mixed"
)

// Complexity buckets a query by structural effort.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Analysis is the read-only routing profile produced for one query.
type Analysis struct {
	Query      string
	Type       Type
	Complexity Complexity

	Entities []string
	Keywords []string

	SemanticDensity float64
	KeywordDensity  float64

	Confidence float64

	RecommendedPaths   []store.RetrievalPath
	RecommendedWeights map[store.RetrievalPath]float64
}

// HasNumbers reports whether the query carries numeric tokens, a signal the
// content path handles better than the keyword field.
func (a *Analysis) HasNumbers() bool {
	return numberRegex.MatchString(a.Query)
}

const (
	maxEntities = 10
	maxKeywords = 10

	// Paths whose normalized recommended weight clears this floor are
	// recommended; at least two paths are always recommended.
	recommendThreshold = 0.1
	minRecommended     = 2
)

var (
	yearRegex    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	acronymRegex = regexp.MustCompile(`\b[A-Z]{2,6}\b`)
	capRegex     = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
	numberRegex  = regexp.MustCompile(`\d`)
	wordRegex    = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// typePatterns maps each query type to its trigger phrases. Matching is
// case-insensitive substring matching over the whole query.
var typePatterns = map[Type][]string{
	TypeFactual:     {"what is", "what are", "define", "definition", "meaning of", "name the", "which drug", "list the"},
	TypeProcedural:  {"how to", "how do", "how should", "steps", "procedure", "protocol", "manage", "management of", "treat", "treatment of", "administer"},
	TypeComparative: {"compare", "comparison", "versus", " vs ", "difference between", "better than", "preferred over", "or is"},
	TypeTemporal:    {"when", "how long", "duration", "how often", "frequency", "after how", "onset", "until"},
	TypeNumerical:   {"how many", "how much", "dose", "dosage", "dosing", "rate of", "percentage", "incidence", "prevalence", "threshold"},
	TypeConceptual:  {"why", "explain", "mechanism", "pathophysiology", "cause of", "causes", "relationship between", "role of", "effect of"},
}

// abstractTerms signal semantically dense queries a dense retriever serves
// well; concrete identifiers push toward lexical paths instead.
var abstractTerms = map[string]struct{}{
	"mechanism": {}, "pathophysiology": {}, "effect": {}, "cause": {},
	"relationship": {}, "function": {}, "process": {}, "role": {},
	"impact": {}, "principle": {}, "concept": {}, "significance": {},
	"implication": {}, "interaction": {}, "association": {}, "outcome": {},
}

var conjunctions = map[string]struct{}{
	"and": {}, "or": {}, "but": {}, "because": {}, "while": {},
	"although": {}, "whereas": {}, "however": {}, "if": {},
}

var stopWords = store.BuildStopWordMap(store.DefaultStopWords)

// basePathWeights is the starting weight vector before per-query adjustment.
var basePathWeights = map[store.RetrievalPath]float64{
	store.PathVector:   0.40,
	store.PathKeywords: 0.20,
	store.PathSummary:  0.20,
	store.PathContent:  0.20,
}

// typeAdjustments are additive weight nudges keyed by detected type.
var typeAdjustments = map[Type]map[store.RetrievalPath]float64{
	TypeFactual:     {store.PathKeywords: 0.15, store.PathSummary: 0.05, store.PathVector: -0.10},
	TypeProcedural:  {store.PathContent: 0.15, store.PathVector: 0.05, store.PathKeywords: -0.10},
	TypeComparative: {store.PathVector: 0.10, store.PathSummary: 0.05},
	TypeTemporal:    {store.PathContent: 0.10, store.PathKeywords: 0.05},
	TypeNumerical:   {store.PathContent: 0.15, store.PathKeywords: 0.05, store.PathVector: -0.10},
	TypeConceptual:  {store.PathVector: 0.15, store.PathSummary: 0.05, store.PathKeywords: -0.10},
	TypeMixed:       {},
}

// Analyzer classifies queries. It is stateless and safe for concurrent use.
type Analyzer struct{}

// NewAnalyzer creates a query analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze produces the complete routing profile for a raw query. It never
// fails; a degenerate query yields a MIXED low-confidence analysis.
func (a *Analyzer) Analyze(raw string) Analysis {
	query := strings.TrimSpace(raw)
	lower := strings.ToLower(query)
	words := wordRegex.FindAllString(lower, -1)

	qt, typeClarity := detectType(lower)
	complexity := detectComplexity(words, lower)
	entities := extractEntities(query)
	keywords := extractKeywords(words)
	semDensity := semanticDensity(words)
	kwDensity := keywordDensity(query, words)

	analysis := Analysis{
		Query:           query,
		Type:            qt,
		Complexity:      complexity,
		Entities:        entities,
		Keywords:        keywords,
		SemanticDensity: semDensity,
		KeywordDensity:  kwDensity,
	}

	analysis.RecommendedWeights = recommendWeights(&analysis)
	analysis.RecommendedPaths = recommendPaths(analysis.RecommendedWeights)
	analysis.Confidence = confidence(typeClarity, complexity, len(entities)+len(keywords))

	return analysis
}

// detectType counts pattern hits per category; the clear winner names the
// type, ties (or no hits at all) fall back to MIXED. The second return is
// the winner's share of all hits, used for confidence.
func detectType(lower string) (Type, float64) {
	padded := " " + lower + " "

	hits := make(map[Type]int, len(typePatterns))
	total := 0
	for qt, patterns := range typePatterns {
		for _, p := range patterns {
			if strings.Contains(padded, p) {
				hits[qt]++
				total++
			}
		}
	}
	if total == 0 {
		return TypeMixed, 0
	}

	best, bestCount, tied := TypeMixed, 0, false
	for _, qt := range []Type{TypeFactual, TypeProcedural, TypeComparative, TypeTemporal, TypeNumerical, TypeConceptual} {
		switch {
		case hits[qt] > bestCount:
			best, bestCount, tied = qt, hits[qt], false
		case hits[qt] == bestCount && hits[qt] > 0:
			tied = true
		}
	}
	if tied {
		return TypeMixed, float64(bestCount) / float64(total)
	}
	return best, float64(bestCount) / float64(total)
}

// detectComplexity scores word count plus conjunction and question-mark
// counts: <=5 simple, <=15 moderate, else complex.
func detectComplexity(words []string, lower string) Complexity {
	score := len(words) + strings.Count(lower, "?")
	for _, w := range words {
		if _, ok := conjunctions[w]; ok {
			score++
		}
	}
	switch {
	case score <= 5:
		return ComplexitySimple
	case score <= 15:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

// extractEntities pulls capitalized terms, years, and acronyms, capped at 10.
func extractEntities(query string) []string {
	seen := make(map[string]struct{})
	var entities []string

	add := func(matches []string) {
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			entities = append(entities, m)
		}
	}

	add(acronymRegex.FindAllString(query, -1))
	add(yearRegex.FindAllString(query, -1))
	add(capRegex.FindAllString(query, -1))

	if len(entities) > maxEntities {
		entities = entities[:maxEntities]
	}
	return entities
}

// extractKeywords returns the most frequent stop-filtered tokens, capped at
// 10. Ties keep first-occurrence order for determinism.
func extractKeywords(words []string) []string {
	freq := make(map[string]int)
	order := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if freq[w] == 0 {
			order = append(order, w)
		}
		freq[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return order
}

// semanticDensity is the abstract-term ratio scaled to [0,1].
func semanticDensity(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	abstract := 0
	for _, w := range words {
		if _, ok := abstractTerms[w]; ok {
			abstract++
		}
	}
	return clamp01(3 * float64(abstract) / float64(len(words)))
}

// keywordDensity is the long-token plus proper-noun ratio scaled to [0,1].
func keywordDensity(query string, words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	long := 0
	for _, w := range words {
		if len(w) >= 7 {
			long++
		}
	}
	proper := len(capRegex.FindAllString(query, -1)) + len(acronymRegex.FindAllString(query, -1))
	return clamp01(2 * float64(long+proper) / float64(len(words)))
}

// recommendWeights starts from the base vector, applies additive nudges for
// type, complexity, and density signals, floors at zero, and normalizes.
func recommendWeights(a *Analysis) map[store.RetrievalPath]float64 {
	weights := make(map[store.RetrievalPath]float64, 4)
	for p, w := range basePathWeights {
		weights[p] = w
	}

	for p, delta := range typeAdjustments[a.Type] {
		weights[p] += delta
	}

	switch a.Complexity {
	case ComplexitySimple:
		weights[store.PathKeywords] += 0.10
		weights[store.PathVector] -= 0.05
	case ComplexityComplex:
		weights[store.PathVector] += 0.10
		weights[store.PathContent] += 0.05
		weights[store.PathKeywords] -= 0.05
	}

	if a.SemanticDensity > 0.5 {
		weights[store.PathVector] += 0.10
	}
	if a.KeywordDensity > 0.5 {
		weights[store.PathKeywords] += 0.05
		weights[store.PathContent] += 0.05
	}
	if len(a.Entities) >= 3 {
		weights[store.PathKeywords] += 0.05
	}

	var sum float64
	for p, w := range weights {
		if w < 0 {
			w = 0
			weights[p] = 0
		}
		sum += w
	}
	if sum == 0 {
		return map[store.RetrievalPath]float64{
			store.PathVector: 0.25, store.PathKeywords: 0.25,
			store.PathSummary: 0.25, store.PathContent: 0.25,
		}
	}
	for p := range weights {
		weights[p] /= sum
	}
	return weights
}

// recommendPaths selects every path above the threshold, topping up to the
// two best paths when fewer clear it.
func recommendPaths(weights map[store.RetrievalPath]float64) []store.RetrievalPath {
	var recommended []store.RetrievalPath
	for _, p := range store.AllPaths() {
		if weights[p] > recommendThreshold {
			recommended = append(recommended, p)
		}
	}
	if len(recommended) >= minRecommended {
		return recommended
	}

	ranked := store.AllPaths()
	sort.SliceStable(ranked, func(i, j int) bool {
		return weights[ranked[i]] > weights[ranked[j]]
	})
	return ranked[:minRecommended]
}

// confidence blends type clarity, complexity, and feature richness.
func confidence(typeClarity float64, complexity Complexity, features int) float64 {
	complexityScore := 0.5
	switch complexity {
	case ComplexitySimple:
		complexityScore = 1.0
	case ComplexityModerate:
		complexityScore = 0.7
	case ComplexityComplex:
		complexityScore = 0.4
	}
	featureScore := math.Min(1, float64(features)/8.0)

	return clamp01(0.45*typeClarity + 0.30*complexityScore + 0.25*featureScore)
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
