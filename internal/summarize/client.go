package summarize

import (
	"context"
	"fmt"

	"mnemo/internal/config"
)

// Client is the interface for summary providers. The archive treats a
// nil Client as "no provider" and falls back to rule-based summaries.
// Providers that cannot pick out key events may return none; callers
// then fall back to their own extraction.
type Client interface {
	Summarize(ctx context.Context, prompt string) (summary string, keyEvents []string, err error)
}

// NewClient creates a summarizer based on the config provider setting.
// Provider "none" returns a nil Client without error.
func NewClient(cfg config.SummarizerConfig) (Client, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "ollama":
		url := cfg.URL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "llama3.2"
		}
		return NewOllama(url, model), nil
	default:
		return nil, fmt.Errorf("unknown summarizer provider: %q", cfg.Provider)
	}
}
