package compaction

import (
	"strings"
	"testing"
)

func TestFindMergePairAdjacentTail(t *testing.T) {
	tests := []struct {
		name    string
		weights []int
		wantI   int
		wantJ   int
		wantOK  bool
	}{
		{"empty", nil, 0, 0, false},
		{"single", []int{1}, 0, 0, false},
		{"pair at head is protected", []int{1, 1}, 0, 0, false},
		{"pair past head", []int{1, 1, 1}, 1, 2, true},
		{"tail pair wins over earlier pair", []int{1, 2, 2, 4, 4}, 3, 4, true},
		{"equal but not adjacent", []int{1, 2, 4, 2}, 0, 0, false},
		{"head pair only", []int{2, 2, 4}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, j, ok := findMergePair(tt.weights, AdjacentTail)
			if i != tt.wantI || j != tt.wantJ || ok != tt.wantOK {
				t.Errorf("findMergePair(%v) = (%d,%d,%v), want (%d,%d,%v)",
					tt.weights, i, j, ok, tt.wantI, tt.wantJ, tt.wantOK)
			}
		})
	}
}

func TestFindMergePairEarliestAnywhere(t *testing.T) {
	tests := []struct {
		name    string
		weights []int
		wantI   int
		wantJ   int
		wantOK  bool
	}{
		{"empty", nil, 0, 0, false},
		{"no group", []int{1, 2, 4}, 0, 0, false},
		{"adjacent pair", []int{1, 1}, 0, 1, true},
		{"non-adjacent pair", []int{1, 2, 1}, 0, 2, true},
		{"earliest group wins", []int{2, 1, 1, 2}, 0, 3, true},
		{"first two of a larger group", []int{4, 1, 1, 1}, 1, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, j, ok := findMergePair(tt.weights, EarliestAnywhere)
			if i != tt.wantI || j != tt.wantJ || ok != tt.wantOK {
				t.Errorf("findMergePair(%v) = (%d,%d,%v), want (%d,%d,%v)",
					tt.weights, i, j, ok, tt.wantI, tt.wantJ, tt.wantOK)
			}
		})
	}
}

func TestMergeContentProportionalBudget(t *testing.T) {
	long := strings.Repeat("x", 500)

	// Equal weights split the budget evenly.
	got := mergeContent(long, 1, long, 1)
	if !strings.HasPrefix(got, "[early] ") || !strings.Contains(got, " | [recent] ") {
		t.Fatalf("merged content missing markers: %q", got)
	}
	early := got[len("[early] "):strings.Index(got, " | [recent] ")]
	if len(early) != 100+3 { // 100 runes plus the cut marker
		t.Errorf("equal-weight early share = %d chars, want 103", len(early))
	}

	// A heavier early side keeps more detail.
	heavy := mergeContent(long, 3, long, 1)
	heavyEarly := heavy[len("[early] "):strings.Index(heavy, " | [recent] ")]
	if len(heavyEarly) <= len(early) {
		t.Errorf("weight 3 early share (%d) should exceed weight 1 share (%d)", len(heavyEarly), len(early))
	}

	// Short content is never padded or cut.
	got = mergeContent("went north", 1, "found water", 1)
	if got != "[early] went north | [recent] found water" {
		t.Errorf("short content mangled: %q", got)
	}

	// The lighter side keeps at least a stub.
	skewed := mergeContent(long, 99, long, 1)
	recent := skewed[strings.Index(skewed, " | [recent] ")+len(" | [recent] "):]
	if len(recent) < 10 {
		t.Errorf("minimum share violated: %d chars", len(recent))
	}
}

func TestTruncRunes(t *testing.T) {
	if got := truncRunes("short", 10); got != "short" {
		t.Errorf("truncRunes(short) = %q", got)
	}
	if got := truncRunes("abcdefgh", 4); got != "abcd..." {
		t.Errorf("truncRunes = %q, want abcd...", got)
	}
	// Multi-byte runes count as one.
	if got := truncRunes("日本語のテキスト", 3); got != "日本語..." {
		t.Errorf("truncRunes = %q, want 日本語...", got)
	}
}
