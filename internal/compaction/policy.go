// Package compaction keeps unbounded event streams at logarithmic
// length by repeatedly merging equal-weight neighbors, the way a binary
// counter carries. Two stores share the mechanism: the Timeline (recent
// rolling context) and the Archive (full episodic history).
package compaction

import "strings"

// MergeMode selects how a merge candidate pair is chosen from a
// sequence of weights.
type MergeMode int

const (
	// AdjacentTail merges only adjacent equal-weight pairs, scanning
	// from the oldest end, and never touches the newest element. Used
	// by the Timeline, whose order must stay strictly temporal.
	AdjacentTail MergeMode = iota

	// EarliestAnywhere merges the first two members of the
	// equal-weight group that appears earliest in the sequence, even
	// when they are not adjacent. Used by the Archive; it trades the
	// strict binary-counter bound for merging thematically staler
	// segments first.
	EarliestAnywhere
)

// findMergePair returns the indices i < j of the next pair to merge
// under mode, or ok=false when nothing can merge.
//
// AdjacentTail expects weights ordered newest first and treats index 0
// as protected. EarliestAnywhere expects oldest first.
func findMergePair(weights []int, mode MergeMode) (i, j int, ok bool) {
	switch mode {
	case AdjacentTail:
		for i := len(weights) - 2; i >= 1; i-- {
			if weights[i] == weights[i+1] {
				return i, i + 1, true
			}
		}
		return 0, 0, false

	case EarliestAnywhere:
		// First index of each weight group, in sequence order.
		first := make(map[int]int)
		for idx, w := range weights {
			if _, seen := first[w]; !seen {
				first[w] = idx
			}
		}
		bestFirst := -1
		bestWeight := 0
		counts := make(map[int]int)
		for _, w := range weights {
			counts[w]++
		}
		for w, f := range first {
			if counts[w] < 2 {
				continue
			}
			if bestFirst == -1 || f < bestFirst {
				bestFirst = f
				bestWeight = w
			}
		}
		if bestFirst == -1 {
			return 0, 0, false
		}
		for idx := bestFirst + 1; idx < len(weights); idx++ {
			if weights[idx] == bestWeight {
				return bestFirst, idx, true
			}
		}
		return 0, 0, false
	}
	return 0, 0, false
}

// mergedContentBudget caps the text carried by a merged timeline entry.
const mergedContentBudget = 200

// mergeContent combines two entries' text, giving each a share of the
// budget proportional to its weight so heavier (longer-lived) history
// keeps more detail. Each side keeps at least a stub.
func mergeContent(early string, earlyWeight int, recent string, recentWeight int) string {
	total := earlyWeight + recentWeight
	if total <= 0 {
		total = 2
		earlyWeight, recentWeight = 1, 1
	}
	earlyBudget := mergedContentBudget * earlyWeight / total
	recentBudget := mergedContentBudget - earlyBudget
	if earlyBudget < 10 {
		earlyBudget = 10
	}
	if recentBudget < 10 {
		recentBudget = 10
	}

	var b strings.Builder
	b.WriteString("[early] ")
	b.WriteString(truncRunes(early, earlyBudget))
	b.WriteString(" | [recent] ")
	b.WriteString(truncRunes(recent, recentBudget))
	return b.String()
}

// truncRunes cuts s to at most n runes, marking the cut.
func truncRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
