package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestSplitKeyEvents(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		summary string
		keys    []string
	}{
		{
			name:    "no heading",
			in:      "the agent crossed the river and rested",
			summary: "the agent crossed the river and rested",
		},
		{
			name:    "bulleted list",
			in:      "Crossed the river.\n\nKey events:\n- waded in\n- reached the bank",
			summary: "Crossed the river.",
			keys:    []string{"waded in", "reached the bank"},
		},
		{
			name:    "numbered list and blank lines",
			in:      "Found shelter.\nKey Events:\n1. saw the cave\n\n2. lit a fire\n",
			summary: "Found shelter.",
			keys:    []string{"saw the cave", "lit a fire"},
		},
		{
			name:    "heading with nothing under it",
			in:      "Nothing much happened.\nKey events:\n",
			summary: "Nothing much happened.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, keys := splitKeyEvents(tt.in)
			if summary != tt.summary {
				t.Errorf("summary = %q, want %q", summary, tt.summary)
			}
			if !reflect.DeepEqual(keys, tt.keys) {
				t.Errorf("keys = %v, want %v", keys, tt.keys)
			}
		})
	}
}

func TestOllamaSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"response": "The agent explored the cave.\nKey events:\n- lit a torch",
		})
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "test-model")
	summary, keys, err := o.Summarize(context.Background(), "summarize this")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "The agent explored the cave." {
		t.Errorf("summary = %q", summary)
	}
	if len(keys) != 1 || keys[0] != "lit a torch" {
		t.Errorf("keys = %v", keys)
	}
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL, "missing")
	if _, _, err := o.Summarize(context.Background(), "x"); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
