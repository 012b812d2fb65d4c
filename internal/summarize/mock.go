package summarize

import "context"

// Mock is a test double for the summarizer Client interface.
type Mock struct {
	Response  string
	KeyEvents []string
	Err       error
	Calls     []string // records prompts sent
}

// Summarize records the call and returns the mock response.
func (m *Mock) Summarize(ctx context.Context, prompt string) (string, []string, error) {
	m.Calls = append(m.Calls, prompt)
	return m.Response, m.KeyEvents, m.Err
}
