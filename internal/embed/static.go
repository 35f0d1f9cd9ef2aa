package embed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// StaticDimensions is the dimensionality of hash-based embeddings.
const StaticDimensions = 256

// Weights for vector generation: whole tokens dominate, character trigrams
// add robustness to inflection and typos.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var embedTokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// StaticEmbedder generates deterministic hash-based embeddings with no
// network or model dependency. Semantic quality is reduced; it exists for
// tests, local corpora, and degraded operation.
type StaticEmbedder struct{}

// NewStaticEmbedder creates a hash-based embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Dimensions returns the fixed embedding size.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// Embed generates a normalized embedding for the text.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, StaticDimensions)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vector, nil
	}

	for _, token := range embedTokenRegex.FindAllString(strings.ToLower(trimmed), -1) {
		vector[hashToIndex(token)] += tokenWeight
		for _, ngram := range ngrams(token, ngramSize) {
			vector[hashToIndex(ngram)] += ngramWeight
		}
	}

	normalize(vector)
	return vector, nil
}

func ngrams(token string, n int) []string {
	runes := []rune(token)
	if len(runes) <= n {
		return nil
	}
	out := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		out = append(out, string(runes[i:i+n]))
	}
	return out
}

func hashToIndex(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % StaticDimensions)
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}
