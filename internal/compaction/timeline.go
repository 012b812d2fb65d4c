package compaction

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Entry is one slot of the rolling timeline. Weight counts how many
// pushed moments the entry has absorbed.
type Entry struct {
	Content string             `json:"content"`
	Weight  int                `json:"weight"`
	Start   time.Time          `json:"start"`
	End     time.Time          `json:"end"`
	Cycles  int                `json:"cycles"`
	Desires map[string]float64 `json:"desires,omitempty"`
	Kind    string             `json:"kind"` // "cycle" or "merged"
}

// Timeline is the recent-context store. Entries are held newest first;
// every push triggers compaction, so n pushes leave O(log n) entries.
// The newest entry is never merged, keeping the immediate past intact.
type Timeline struct {
	mu          sync.Mutex
	entries     []Entry // index 0 is newest
	totalPushes int
	totalMerges int
	path        string
}

type timelineFile struct {
	LastUpdated time.Time `json:"last_updated"`
	TotalPushes int       `json:"total_pushes"`
	TotalMerges int       `json:"total_merges"`
	Entries     []Entry   `json:"entries"`
}

// OpenTimeline loads the timeline at path, starting empty when the
// file does not exist. A corrupt file starts empty and is logged.
func OpenTimeline(path string) (*Timeline, error) {
	t := &Timeline{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read timeline: %w", err)
	}
	var f timelineFile
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("timeline: parse %s failed (%v), starting empty", path, err)
		return t, nil
	}
	t.entries = f.Entries
	t.totalPushes = f.TotalPushes
	t.totalMerges = f.TotalMerges
	return t, nil
}

// Push prepends a weight-1 entry and compacts. Compaction merges
// adjacent equal-weight pairs from the oldest end until none remain,
// never touching the newest entry. Fewer than three entries are left
// alone.
func (t *Timeline) Push(content string, desires map[string]float64) {
	now := time.Now()

	t.mu.Lock()
	entry := Entry{
		Content: content,
		Weight:  1,
		Start:   now,
		End:     now,
		Cycles:  1,
		Desires: copyDesires(desires),
		Kind:    "cycle",
	}
	t.entries = append([]Entry{entry}, t.entries...)
	t.totalPushes++

	if len(t.entries) >= 3 {
		t.compact()
	}
	t.mu.Unlock()

	if err := t.Flush(); err != nil {
		log.Printf("timeline: persist: %v", err)
	}
}

// compact runs merges until no adjacent equal-weight pair remains.
// Caller holds t.mu.
func (t *Timeline) compact() {
	for {
		weights := make([]int, len(t.entries))
		for i, e := range t.entries {
			weights[i] = e.Weight
		}
		i, j, ok := findMergePair(weights, AdjacentTail)
		if !ok {
			return
		}
		t.entries[i] = mergeEntries(t.entries[j], t.entries[i])
		t.entries = append(t.entries[:j], t.entries[j+1:]...)
		t.totalMerges++
	}
}

// mergeEntries folds the older entry into the newer one. The merged
// entry keeps the newer entry's desire snapshot and spans both time
// ranges.
func mergeEntries(older, newer Entry) Entry {
	return Entry{
		Content: mergeContent(older.Content, older.Weight, newer.Content, newer.Weight),
		Weight:  older.Weight + newer.Weight,
		Start:   older.Start,
		End:     newer.End,
		Cycles:  older.Cycles + newer.Cycles,
		Desires: copyDesires(newer.Desires),
		Kind:    "merged",
	}
}

func copyDesires(d map[string]float64) map[string]float64 {
	if d == nil {
		return nil
	}
	out := make(map[string]float64, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Recent returns the newest n entries. n of zero or less returns an
// empty slice.
func (t *Timeline) Recent(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 {
		return []Entry{}
	}
	if n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, n)
	copy(out, t.entries[:n])
	return out
}

// Structure returns the weights of the current entries, newest first.
// After n pushes this is [1] followed by the binary digits of n-1, so
// its length is logarithmic in n.
func (t *Timeline) Structure() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Weight
	}
	return out
}

// Len returns the current entry count.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// TimelineStats summarizes the store for diagnostics.
type TimelineStats struct {
	Entries     int   `json:"entries"`
	TotalPushes int   `json:"total_pushes"`
	TotalMerges int   `json:"total_merges"`
	Structure   []int `json:"structure"`
}

// Stats reports push and merge counters.
func (t *Timeline) Stats() TimelineStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := TimelineStats{
		Entries:     len(t.entries),
		TotalPushes: t.totalPushes,
		TotalMerges: t.totalMerges,
	}
	st.Structure = make([]int, len(t.entries))
	for i, e := range t.entries {
		st.Structure[i] = e.Weight
	}
	return st
}

// Flush writes the timeline file atomically.
func (t *Timeline) Flush() error {
	t.mu.Lock()
	f := timelineFile{
		LastUpdated: time.Now(),
		TotalPushes: t.totalPushes,
		TotalMerges: t.totalMerges,
		Entries:     t.entries,
	}
	data, err := json.MarshalIndent(&f, "", "  ")
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	return writeAtomic(t.path, data)
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
