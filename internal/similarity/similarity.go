// Package similarity provides the cheap lexical and vector measures the
// retrieval engine scores with. No embeddings; token overlap and map
// cosine are good enough at this layer and cost nothing to compute.
package similarity

import (
	"math"
	"strings"
	"unicode"

	"mnemo/internal/experience"
)

// Tokenizer turns text into comparable tokens. Implementations must be
// safe for concurrent use.
type Tokenizer interface {
	Tokens(s string) []string
}

// CharBigram tokenizes into single characters plus character bigrams,
// after stripping punctuation. It handles languages without word
// boundaries as well as space-separated ones.
type CharBigram struct{}

// Tokens implements Tokenizer.
func (CharBigram) Tokens(s string) []string {
	runes := make([]rune, 0, len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			continue
		}
		runes = append(runes, r)
	}
	if len(runes) == 0 {
		return nil
	}

	tokens := make([]string, 0, 2*len(runes))
	for _, r := range runes {
		tokens = append(tokens, string(r))
	}
	for i := 0; i+1 < len(runes); i++ {
		tokens = append(tokens, string(runes[i:i+2]))
	}
	return tokens
}

// Jaccard returns the set-overlap ratio of two token slices.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, tok := range a {
		setA[tok] = true
	}
	setB := make(map[string]bool, len(b))
	for _, tok := range b {
		setB[tok] = true
	}

	shared := 0
	for tok := range setA {
		if setB[tok] {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// Text scores two strings with tok, in [0,1].
func Text(tok Tokenizer, a, b string) float64 {
	return Jaccard(tok.Tokens(a), tok.Tokens(b))
}

// Cosine computes cosine similarity between two sparse vectors over
// the union of their keys. Returns 0 when either vector has no mass.
func Cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dot, normA, normB := 0.0, 0.0, 0.0
	for k, va := range a {
		dot += va * b[k]
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// PurposeOverlap compares two purposes by their text and their desire
// vectors, each mapped into [0,1], averaged.
func PurposeOverlap(tok Tokenizer, aText string, aDesires map[string]float64, bText string, bDesires map[string]float64) float64 {
	text := Text(tok, aText, bText)
	desire := (Cosine(aDesires, bDesires) + 1) / 2
	return (text + desire) / 2
}

// Records scores two experience records: context, purpose, and means
// each contribute.
func Records(tok Tokenizer, a, b *experience.Record) float64 {
	context := Text(tok, a.Context, b.Context)
	purpose := PurposeOverlap(tok, a.Purpose, a.PurposeDesires, b.Purpose, b.PurposeDesires)
	means := Text(tok, a.Means, b.Means)
	return 0.3*context + 0.4*purpose + 0.3*means
}

// BoredomFactor detects repetition without payoff in a run of records:
// high similarity between consecutive recent records combined with low
// effectiveness. Returns 0 until there is enough history.
func BoredomFactor(tok Tokenizer, recent []*experience.Record) float64 {
	if len(recent) < 3 {
		return 0
	}
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	simSum := 0.0
	for i := 0; i+1 < len(recent); i++ {
		simSum += Records(tok, recent[i], recent[i+1])
	}
	avgSim := simSum / float64(len(recent)-1)

	effSum := 0.0
	for _, r := range recent {
		effSum += r.MeansEffectiveness
	}
	avgEff := effSum / float64(len(recent))

	if avgSim > 0.7 && avgEff < 0.4 {
		return math.Min(1.0, 0.5+0.5*avgSim*(1-avgEff))
	}
	return 0
}
