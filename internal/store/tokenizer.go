package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches letter/digit runs, unicode-aware so non-ASCII clinical
// terms survive tokenization.
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// DefaultStopWords is the English stop word list applied by the medical
// tokenizer. Domain terms ("dose", "patient") are deliberately not stopped.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "been", "but", "by",
	"can", "could", "do", "does", "for", "from", "had", "has", "have",
	"how", "if", "in", "into", "is", "it", "its", "may", "of", "on",
	"or", "should", "such", "than", "that", "the", "their", "then",
	"there", "these", "this", "to", "was", "were", "what", "when",
	"where", "which", "who", "why", "will", "with", "would",
}

// Tokenizer splits text with language-aware rules for medical prose:
// unicode word segmentation, lowercasing, stop word removal, and a minimum
// token length of 2 (single letters carry no BM25 signal).
type Tokenizer struct {
	stopWords map[string]struct{}
}

// NewTokenizer creates a tokenizer with the default stop word list.
func NewTokenizer() *Tokenizer {
	return NewTokenizerWithStopWords(DefaultStopWords)
}

// NewTokenizerWithStopWords creates a tokenizer with a custom stop word list.
func NewTokenizerWithStopWords(stopWords []string) *Tokenizer {
	return &Tokenizer{stopWords: BuildStopWordMap(stopWords)}
}

// Tokenize splits text into lowercased, stop-filtered tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		lower := strings.ToLower(w)
		if len(lower) < 2 {
			continue
		}
		if _, stop := t.stopWords[lower]; stop {
			continue
		}
		tokens = append(tokens, lower)
	}
	return tokens
}

// BuildStopWordMap converts a slice of stop words to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
