package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama calls a local Ollama instance for segment summaries.
type Ollama struct {
	url    string
	model  string
	client *http.Client
}

// NewOllama creates a new Ollama summarizer.
func NewOllama(url, model string) *Ollama {
	return &Ollama{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Summarize sends a prompt to Ollama's generate endpoint. When the
// response carries a "Key events:" section, its lines come back as key
// events; otherwise the whole response is the summary.
func (o *Ollama) Summarize(ctx context.Context, prompt string) (string, []string, error) {
	reqBody := map[string]any{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": 0.3,
			"num_predict": 512,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("ollama api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("ollama api status %d: %s", resp.StatusCode, respBody)
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", nil, fmt.Errorf("decode response: %w", err)
	}
	summary, keys := splitKeyEvents(result.Response)
	return summary, keys, nil
}

// splitKeyEvents separates the narrative part of a model response from
// the list under a trailing "Key events:" heading. Bullet and number
// prefixes on list lines are stripped.
func splitKeyEvents(text string) (string, []string) {
	lines := strings.Split(text, "\n")
	cut := -1
	for i, line := range lines {
		if strings.EqualFold(strings.TrimSpace(line), "key events:") {
			cut = i
			break
		}
	}
	if cut < 0 {
		return strings.TrimSpace(text), nil
	}

	var keys []string
	for _, line := range lines[cut+1:] {
		item := strings.TrimSpace(line)
		item = strings.TrimLeft(item, "-*0123456789.")
		item = strings.TrimSpace(item)
		if item != "" {
			keys = append(keys, item)
		}
	}
	return strings.TrimSpace(strings.Join(lines[:cut], "\n")), keys
}
