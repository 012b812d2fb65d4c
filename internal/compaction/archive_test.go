package compaction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"mnemo/internal/summarize"
)

func testArchive(t *testing.T, client summarize.Client) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "archive.json"), client)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	return a
}

func recordN(a *Archive, n int) {
	for i := 1; i <= n; i++ {
		a.Record(context.Background(), fmt.Sprintf("thought %d", i), "test room",
			fmt.Sprintf("action %d", i), "ok")
	}
}

func TestArchiveMergeProgression(t *testing.T) {
	a := testArchive(t, nil)

	// One merge per record, earliest equal-length group first.
	want := map[int][]int{
		1:  {1},
		2:  {2},
		3:  {2, 1},
		4:  {2, 2},
		5:  {4, 1},
		7:  {4, 2, 1},
		10: {8, 1, 1},
		13: {8, 4, 1},
	}
	for n := 1; n <= 13; n++ {
		a.Record(context.Background(), "t", "c", "a", "r")
		if w, ok := want[n]; ok {
			if got := a.Structure(); !reflect.DeepEqual(got, w) {
				t.Fatalf("after %d events structure = %v, want %v", n, got, w)
			}
		}
		// Event count is conserved across merges.
		sum := 0
		for _, l := range a.Structure() {
			sum += l
		}
		if sum != n {
			t.Fatalf("after %d events lengths sum to %d", n, sum)
		}
	}
}

func TestRecordReturnsContainingSegment(t *testing.T) {
	a := testArchive(t, nil)

	first := a.Record(context.Background(), "t1", "c", "a1", "r")
	if first.Length != 1 || first.Compressed {
		t.Fatalf("first segment = %+v", first)
	}

	// The second event triggers the merge and lands in the merged segment.
	second := a.Record(context.Background(), "t2", "c", "a2", "r")
	if second.Length != 2 || !second.Compressed || second.Level != 1 {
		t.Fatalf("second segment = %+v", second)
	}
	if len(second.Events) != 2 {
		t.Fatalf("merged events = %d, want 2", len(second.Events))
	}
}

func TestRetiredSegmentsStayAddressable(t *testing.T) {
	a := testArchive(t, nil)
	recordN(a, 2) // IDs 1 and 2 merge into 3

	for _, id := range []int64{1, 2} {
		s, ok := a.Segment(id)
		if !ok {
			t.Fatalf("retired segment %d not addressable", id)
		}
		if s.Length != 1 || s.Compressed {
			t.Errorf("retired segment %d = %+v, want original length-1", id, s)
		}
	}

	merged, ok := a.Segment(3)
	if !ok || merged.Length != 2 {
		t.Errorf("merged segment = %+v ok=%v", merged, ok)
	}
	if _, ok := a.Segment(99); ok {
		t.Error("unknown ID should not resolve")
	}
}

func TestRuleSummaryFallback(t *testing.T) {
	a := testArchive(t, nil)
	recordN(a, 10) // leaves an 8-event segment up front

	segs := a.Segments()
	big := segs[0]
	if big.Length != 8 {
		t.Fatalf("front segment length = %d, want 8", big.Length)
	}
	if !strings.Contains(big.Summary, "1. thought:") {
		t.Errorf("rule summary missing numbered lines: %q", big.Summary)
	}
	if !strings.Contains(big.Summary, "and 3 more events") {
		t.Errorf("rule summary missing elision note: %q", big.Summary)
	}
	if len(big.KeyEvents) != 5 {
		t.Errorf("key events = %d, want capped at 5", len(big.KeyEvents))
	}
}

func TestSummarizerIsUsedWhenAvailable(t *testing.T) {
	mock := &summarize.Mock{
		Response:  "the agent explored and found water",
		KeyEvents: []string{"found water"},
	}
	a := testArchive(t, mock)
	recordN(a, 2)

	if len(mock.Calls) != 1 {
		t.Fatalf("summarizer calls = %d, want 1", len(mock.Calls))
	}
	if !strings.Contains(mock.Calls[0], "thought 1") {
		t.Errorf("prompt missing event detail: %q", mock.Calls[0])
	}
	s, _ := a.Segment(3)
	if s.Summary != "the agent explored and found water" {
		t.Errorf("summary = %q, want mock response", s.Summary)
	}
	if !reflect.DeepEqual(s.KeyEvents, []string{"found water"}) {
		t.Errorf("key events = %v, want the summarizer's", s.KeyEvents)
	}
}

func TestSummarizerWithoutKeyEventsUsesLocalExtraction(t *testing.T) {
	mock := &summarize.Mock{Response: "two uneventful moments"}
	a := testArchive(t, mock)
	recordN(a, 2)

	s, _ := a.Segment(3)
	if len(s.KeyEvents) != 2 {
		t.Fatalf("key events = %v, want the 2 actions", s.KeyEvents)
	}
	if s.KeyEvents[0] != "action 1" {
		t.Errorf("key events = %v", s.KeyEvents)
	}
}

func TestSummarizerErrorFallsBackToRules(t *testing.T) {
	mock := &summarize.Mock{Err: errors.New("model offline")}
	a := testArchive(t, mock)
	recordN(a, 2)

	s, _ := a.Segment(3)
	if !strings.Contains(s.Summary, "1. thought:") {
		t.Errorf("expected rule summary after summarizer error, got %q", s.Summary)
	}
	if len(s.KeyEvents) != 2 {
		t.Errorf("key events = %v, want local extraction", s.KeyEvents)
	}
}

// gatedSummarizer blocks inside Summarize until released, standing in
// for a slow network round trip.
type gatedSummarizer struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSummarizer) Summarize(ctx context.Context, prompt string) (string, []string, error) {
	close(g.entered)
	<-g.release
	return "merged while readers kept going", nil, nil
}

func TestReadersNotBlockedBySummarizer(t *testing.T) {
	g := &gatedSummarizer{entered: make(chan struct{}), release: make(chan struct{})}
	a := testArchive(t, g)
	a.Record(context.Background(), "t1", "c", "a1", "r")

	done := make(chan Segment)
	go func() {
		done <- a.Record(context.Background(), "t2", "c", "a2", "r")
	}()

	// With the merge in flight, reads return the unmerged pair instead
	// of waiting on the summarizer.
	<-g.entered
	if got := a.Stats().TotalEvents; got != 2 {
		t.Errorf("TotalEvents mid-merge = %d, want 2", got)
	}
	if got := a.Structure(); !reflect.DeepEqual(got, []int{1, 1}) {
		t.Errorf("structure mid-merge = %v, want [1 1]", got)
	}
	close(g.release)

	seg := <-done
	if seg.Summary != "merged while readers kept going" {
		t.Errorf("summary = %q", seg.Summary)
	}
	if got := a.Structure(); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("structure after merge = %v, want [2]", got)
	}
}

func TestArchivePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")
	a, err := OpenArchive(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		a.Record(context.Background(), "t", "c", "a", "r")
	}
	before := a.Structure()

	a2, err := OpenArchive(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := a2.Structure(); !reflect.DeepEqual(got, before) {
		t.Fatalf("reloaded structure = %v, want %v", got, before)
	}
	// Retired set survives the reload.
	if _, ok := a2.Segment(1); !ok {
		t.Error("retired segment lost on reload")
	}
	// IDs keep counting from where they left off.
	seg := a2.Record(context.Background(), "t", "c", "a", "r")
	st := a2.Stats()
	if st.TotalEvents != 6 {
		t.Errorf("TotalEvents = %d, want 6", st.TotalEvents)
	}
	if seg.ID == 0 {
		t.Error("new segment did not get an ID")
	}
}

func TestNarrative(t *testing.T) {
	a := testArchive(t, nil)
	recordN(a, 3)

	n := a.Narrative()
	if !strings.Contains(n, "2 events") || !strings.Contains(n, "1 events") {
		t.Errorf("narrative missing segment headers: %q", n)
	}
}
