package compaction

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"mnemo/internal/summarize"
)

// Event is one recorded moment: what was being thought, where, what was
// done, and what came back.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Thought   string    `json:"thought"`
	Context   string    `json:"context"`
	Action    string    `json:"action"`
	Result    string    `json:"result"`
}

// Segment groups consecutive events under one summary. Level counts
// how many merge generations produced it.
type Segment struct {
	ID         int64     `json:"id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Length     int       `json:"length"`
	Events     []Event   `json:"events"`
	Compressed bool      `json:"compressed"`
	Summary    string    `json:"summary"`
	KeyEvents  []string  `json:"key_events,omitempty"`
	Level      int       `json:"level"`
}

// Archive is the episodic history store. Segments are held oldest
// first; each recorded event may trigger at most one merge, which
// combines the first two segments of the earliest equal-length group,
// adjacent or not. Absorbed segments move to the retired set and stay
// addressable by ID.
type Archive struct {
	// recordMu serializes Record so a merge pair picked under mu stays
	// stable while the merged segment is built without the lock.
	recordMu sync.Mutex

	mu          sync.Mutex
	segments    []Segment // oldest first
	retired     map[int64]Segment
	nextID      int64
	totalEvents int
	totalMerges int

	summarizer summarize.Client
	path       string
}

type archiveFile struct {
	LastUpdated time.Time `json:"last_updated"`
	NextID      int64     `json:"next_id"`
	TotalEvents int       `json:"total_events"`
	TotalMerges int       `json:"total_merges"`
	Segments    []Segment `json:"segments"`
	Retired     []Segment `json:"retired,omitempty"`
}

// OpenArchive loads the archive at path. The summarizer may be nil, in
// which case merged segments get rule-based summaries.
func OpenArchive(path string, summarizer summarize.Client) (*Archive, error) {
	a := &Archive{
		retired:    make(map[int64]Segment),
		nextID:     1,
		summarizer: summarizer,
		path:       path,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return nil, fmt.Errorf("read archive: %w", err)
	}
	var f archiveFile
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("archive: parse %s failed (%v), starting empty", path, err)
		return a, nil
	}
	a.segments = f.Segments
	a.nextID = f.NextID
	a.totalEvents = f.TotalEvents
	a.totalMerges = f.TotalMerges
	for _, s := range f.Retired {
		a.retired[s.ID] = s
	}
	if a.nextID < 1 {
		a.nextID = 1
	}
	return a, nil
}

// Record appends one event as a fresh length-1 segment and runs a
// single merge attempt. The returned segment is the one the event
// landed in after compaction.
func (a *Archive) Record(ctx context.Context, thought, contextText, action, result string) Segment {
	now := time.Now()
	ev := Event{
		Timestamp: now,
		Thought:   thought,
		Context:   contextText,
		Action:    action,
		Result:    result,
	}

	a.recordMu.Lock()

	a.mu.Lock()
	seg := Segment{
		ID:      a.nextID,
		Start:   now,
		End:     now,
		Length:  1,
		Events:  []Event{ev},
		Summary: truncRunes(action, 50),
	}
	a.nextID++
	a.segments = append(a.segments, seg)
	a.totalEvents++

	lengths := make([]int, len(a.segments))
	for i, s := range a.segments {
		lengths[i] = s.Length
	}
	i, j, ok := findMergePair(lengths, EarliestAnywhere)
	var first, second Segment
	var mergedID int64
	if ok {
		first = cloneSegment(a.segments[i])
		second = cloneSegment(a.segments[j])
		mergedID = a.nextID
		a.nextID++
	}
	a.mu.Unlock()

	// Summarizing may hit the network, so the merged segment is built
	// without the state lock and swapped in afterwards. Readers see the
	// unmerged pair in the meantime.
	out := cloneSegment(seg)
	if ok {
		merged := a.mergeSegments(ctx, mergedID, first, second)

		a.mu.Lock()
		a.retired[first.ID] = first
		a.retired[second.ID] = second
		a.segments[i] = merged
		a.segments = append(a.segments[:j], a.segments[j+1:]...)
		a.totalMerges++
		a.mu.Unlock()

		if first.ID == seg.ID || second.ID == seg.ID {
			out = cloneSegment(merged)
		}
	}

	a.recordMu.Unlock()

	if err := a.Flush(); err != nil {
		log.Printf("archive: persist: %v", err)
	}
	return out
}

// mergeSegments builds the combined segment fully before it is swapped
// into the sequence. Caller holds recordMu but not mu.
func (a *Archive) mergeSegments(ctx context.Context, id int64, first, second Segment) Segment {
	events := make([]Event, 0, len(first.Events)+len(second.Events))
	events = append(events, first.Events...)
	events = append(events, second.Events...)

	start := first.Start
	if second.Start.Before(start) {
		start = second.Start
	}
	end := first.End
	if second.End.After(end) {
		end = second.End
	}
	level := first.Level
	if second.Level > level {
		level = second.Level
	}

	merged := Segment{
		ID:         id,
		Start:      start,
		End:        end,
		Length:     first.Length + second.Length,
		Events:     events,
		Compressed: true,
		Level:      level + 1,
	}
	merged.Summary, merged.KeyEvents = a.summarizeEvents(ctx, events)
	return merged
}

// summarizeEvents asks the summarizer for a narrative summary and key
// events, falling back to the rule-based digest and local extraction
// when it is unavailable or returns nothing.
func (a *Archive) summarizeEvents(ctx context.Context, events []Event) (string, []string) {
	if a.summarizer != nil {
		summary, keys, err := a.summarizer.Summarize(ctx, summaryPrompt(events))
		if err == nil && strings.TrimSpace(summary) != "" {
			if len(keys) == 0 {
				keys = keyEvents(events)
			}
			return strings.TrimSpace(summary), keys
		}
		if err != nil {
			log.Printf("archive: summarizer failed (%v), using rule summary", err)
		}
	}
	return ruleSummary(events), keyEvents(events)
}

func summaryPrompt(events []Event) string {
	var b strings.Builder
	b.WriteString("Summarize the following sequence of events in two or three sentences, keeping causes and outcomes. ")
	b.WriteString("Then list up to five key events, one per line, under a final line reading \"Key events:\".\n\n")
	for i, e := range events {
		fmt.Fprintf(&b, "%d. thought: %s | action: %s | result: %s\n", i+1, e.Thought, e.Action, e.Result)
	}
	return b.String()
}

// ruleSummary digests up to five events into numbered thought/action
// lines, noting how many were elided.
func ruleSummary(events []Event) string {
	var b strings.Builder
	shown := len(events)
	if shown > 5 {
		shown = 5
	}
	for i := 0; i < shown; i++ {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. thought: %s -> action: %s", i+1,
			truncRunes(events[i].Thought, 50), truncRunes(events[i].Action, 30))
	}
	if len(events) > shown {
		fmt.Fprintf(&b, "\n... and %d more events", len(events)-shown)
	}
	return b.String()
}

// keyEvents keeps the first five actions, truncated.
func keyEvents(events []Event) []string {
	var keys []string
	for _, e := range events {
		if len(keys) == 5 {
			break
		}
		keys = append(keys, truncRunes(e.Action, 20))
	}
	return keys
}

func cloneSegment(s Segment) Segment {
	out := s
	out.Events = append([]Event(nil), s.Events...)
	out.KeyEvents = append([]string(nil), s.KeyEvents...)
	return out
}

// Segment returns the segment with the given ID, active or retired.
func (a *Archive) Segment(id int64) (Segment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.segments {
		if a.segments[i].ID == id {
			return cloneSegment(a.segments[i]), true
		}
	}
	if s, ok := a.retired[id]; ok {
		return cloneSegment(s), true
	}
	return Segment{}, false
}

// Segments returns a snapshot of the active segments, oldest first.
func (a *Archive) Segments() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Segment, len(a.segments))
	for i := range a.segments {
		out[i] = cloneSegment(a.segments[i])
	}
	return out
}

// Structure returns the active segment lengths, oldest first.
func (a *Archive) Structure() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, len(a.segments))
	for i, s := range a.segments {
		out[i] = s.Length
	}
	return out
}

// Narrative renders the archive as a chronological story, one summary
// per segment.
func (a *Archive) Narrative() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var b strings.Builder
	for i, s := range a.segments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s ~ %s, %d events]\n%s",
			s.Start.Format("2006-01-02 15:04"), s.End.Format("2006-01-02 15:04"),
			s.Length, s.Summary)
	}
	return b.String()
}

// ArchiveStats summarizes the store for diagnostics.
type ArchiveStats struct {
	Segments    int   `json:"segments"`
	Retired     int   `json:"retired"`
	TotalEvents int   `json:"total_events"`
	TotalMerges int   `json:"total_merges"`
	Structure   []int `json:"structure"`
}

// Stats reports event and merge counters.
func (a *Archive) Stats() ArchiveStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := ArchiveStats{
		Segments:    len(a.segments),
		Retired:     len(a.retired),
		TotalEvents: a.totalEvents,
		TotalMerges: a.totalMerges,
	}
	st.Structure = make([]int, len(a.segments))
	for i, s := range a.segments {
		st.Structure[i] = s.Length
	}
	return st
}

// Flush writes the archive file atomically.
func (a *Archive) Flush() error {
	a.mu.Lock()
	f := archiveFile{
		LastUpdated: time.Now(),
		NextID:      a.nextID,
		TotalEvents: a.totalEvents,
		TotalMerges: a.totalMerges,
		Segments:    a.segments,
	}
	for _, s := range a.retired {
		f.Retired = append(f.Retired, s)
	}
	sort.Slice(f.Retired, func(i, j int) bool { return f.Retired[i].ID < f.Retired[j].ID })
	data, err := json.MarshalIndent(&f, "", "  ")
	a.mu.Unlock()

	if err != nil {
		return fmt.Errorf("marshal archive: %w", err)
	}
	return writeAtomic(a.path, data)
}
