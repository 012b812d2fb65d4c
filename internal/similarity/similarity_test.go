package similarity

import (
	"math"
	"testing"

	"mnemo/internal/experience"
)

func TestCharBigramTokens(t *testing.T) {
	tok := CharBigram{}

	got := tok.Tokens("ab c!")
	// chars a,b,c plus bigrams ab,bc (punctuation and spaces stripped)
	want := []string{"a", "b", "c", "ab", "bc"}
	if len(got) != len(want) {
		t.Fatalf("Tokens = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokens = %v, want %v", got, want)
		}
	}

	if tok.Tokens("!!! ...") != nil {
		t.Error("punctuation-only input should produce no tokens")
	}
}

func TestJaccard(t *testing.T) {
	tok := CharBigram{}

	if got := Text(tok, "explore the cave", "explore the cave"); got != 1.0 {
		t.Errorf("identical text = %v, want 1", got)
	}
	if got := Text(tok, "abc", ""); got != 0 {
		t.Errorf("empty side = %v, want 0", got)
	}
	partial := Text(tok, "explore the cave", "explore the cove")
	if partial <= 0 || partial >= 1 {
		t.Errorf("near-identical text = %v, want in (0,1)", partial)
	}
	// Symmetry.
	if Text(tok, "one two", "two three") != Text(tok, "two three", "one two") {
		t.Error("Jaccard must be symmetric")
	}
}

func TestCosine(t *testing.T) {
	a := map[string]float64{"understanding": 1, "power": 0}
	b := map[string]float64{"understanding": 0.5}
	if got := Cosine(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("parallel vectors = %v, want 1", got)
	}

	c := map[string]float64{"power": 1}
	if got := Cosine(a, c); got != 0 {
		t.Errorf("orthogonal vectors = %v, want 0", got)
	}

	d := map[string]float64{"understanding": -1}
	if got := Cosine(a, d); math.Abs(got+1.0) > 1e-9 {
		t.Errorf("opposite vectors = %v, want -1", got)
	}

	if got := Cosine(nil, a); got != 0 {
		t.Errorf("nil vector = %v, want 0", got)
	}
	if got := Cosine(a, map[string]float64{"power": 0}); got != 0 {
		t.Errorf("zero-mass vector = %v, want 0", got)
	}
}

func TestPurposeOverlapRange(t *testing.T) {
	tok := CharBigram{}
	same := PurposeOverlap(tok, "gain insight", map[string]float64{"understanding": 1},
		"gain insight", map[string]float64{"understanding": 1})
	if math.Abs(same-1.0) > 1e-9 {
		t.Errorf("identical purposes = %v, want 1", same)
	}

	opposed := PurposeOverlap(tok, "abc", map[string]float64{"understanding": 1},
		"xyz", map[string]float64{"understanding": -1})
	if opposed != 0 {
		t.Errorf("disjoint text, opposite desires = %v, want 0", opposed)
	}
}

func rec(context, purpose, means string, eff float64) *experience.Record {
	return &experience.Record{
		Context:            context,
		Purpose:            purpose,
		PurposeDesires:     map[string]float64{"understanding": 0.8, "information": 0.2},
		Means:              means,
		MeansEffectiveness: eff,
	}
}

func TestRecordsWeighting(t *testing.T) {
	tok := CharBigram{}
	a := rec("dark corridor", "find the exit", "walk north", 0.5)

	if got := Records(tok, a, a); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("self similarity = %v, want 1", got)
	}

	b := rec("sunny meadow", "plant a garden", "dig holes", 0.5)
	low := Records(tok, a, b)
	if low >= 0.5 {
		t.Errorf("unrelated records = %v, want well below identical", low)
	}
}

func TestBoredomFactor(t *testing.T) {
	tok := CharBigram{}

	// Too little history.
	short := []*experience.Record{
		rec("cell", "escape", "push door", 0.1),
		rec("cell", "escape", "push door", 0.1),
	}
	if got := BoredomFactor(tok, short); got != 0 {
		t.Errorf("two records = %v, want 0", got)
	}

	// Five near-identical, ineffective attempts.
	var stuck []*experience.Record
	for i := 0; i < 5; i++ {
		stuck = append(stuck, rec("cell", "escape", "push the locked door", 0.1))
	}
	got := BoredomFactor(tok, stuck)
	if got <= 0.5 {
		t.Errorf("repetitive failure = %v, want > 0.5", got)
	}
	if got > 1 {
		t.Errorf("factor = %v, must not exceed 1", got)
	}

	// Same repetition but it keeps working: not boring.
	var winning []*experience.Record
	for i := 0; i < 5; i++ {
		winning = append(winning, rec("cell", "escape", "push the locked door", 0.9))
	}
	if got := BoredomFactor(tok, winning); got != 0 {
		t.Errorf("effective repetition = %v, want 0", got)
	}

	// Varied, effective behavior: not boring.
	varied := []*experience.Record{
		rec("cell", "escape", "push the door", 0.8),
		rec("yard", "exercise", "run laps quickly", 0.7),
		rec("mess hall", "eat", "queue for food", 0.9),
		rec("library", "learn", "read the atlas", 0.8),
	}
	if got := BoredomFactor(tok, varied); got != 0 {
		t.Errorf("varied behavior = %v, want 0", got)
	}
}
