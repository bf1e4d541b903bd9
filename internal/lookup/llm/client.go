// Package llm wraps a profile's LLM adapter with token-budget pre-flight,
// request timeouts, and JSON response normalization.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"lookupcore/internal/lookup"
)

// ReservedOutputTokens is the output budget subtracted from the model's
// context window before dispatch.
const ReservedOutputTokens = 2048

// DefaultTimeout bounds a single LLM request.
const DefaultTimeout = 30 * time.Second

const rawResponseTruncateLen = 500

// ErrNoTokenizer signals that an adapter has no model tokenizer; the client
// falls back to a character-count estimate.
var ErrNoTokenizer = errors.New("llm: no tokenizer for model")

// Adapter is the per-profile LLM backend.
type Adapter interface {
	Provider() string
	Model() string
	ContextLimit() int
	CountTokens(ctx context.Context, text string) (int, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client executes one prompt against one adapter.
type Client struct {
	adapter Adapter
	timeout time.Duration
}

func NewClient(adapter Adapter, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{adapter: adapter, timeout: timeout}
}

func (c *Client) Provider() string { return c.adapter.Provider() }
func (c *Client) Model() string    { return c.adapter.Model() }

// EstimateTokens is the tokenizer fallback: one token per four characters,
// rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// CheckContextWindow counts prompt tokens and fails with
// ContextWindowExceededError when the prompt does not fit. No LLM call is
// dispatched on failure.
func (c *Client) CheckContextWindow(ctx context.Context, prompt string) (int, error) {
	count, err := c.adapter.CountTokens(ctx, prompt)
	if err != nil || count <= 0 {
		count = EstimateTokens(prompt)
	}
	limit := c.adapter.ContextLimit() - ReservedOutputTokens
	if count > limit {
		return count, &lookup.ContextWindowExceededError{
			TokenCount:   count,
			ContextLimit: limit,
			Model:        c.adapter.Model(),
		}
	}
	return count, nil
}

// Complete runs the pre-flight check, dispatches the prompt once under the
// request timeout, and returns the normalized JSON object. The returned
// string is the raw response text for caching; the map is never nil on
// success.
func (c *Client) Complete(ctx context.Context, prompt string) (raw string, parsed map[string]any, callTime time.Duration, err error) {
	if _, err := c.CheckContextWindow(ctx, prompt); err != nil {
		return "", nil, 0, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err = c.adapter.Complete(callCtx, prompt)
	callTime = time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", nil, callTime, &lookup.LLMTimeoutError{Err: err}
		}
		var re *lookup.RetrievalError
		if errors.As(err, &re) {
			return "", nil, callTime, &lookup.LLMError{Err: re}
		}
		return "", nil, callTime, &lookup.LLMError{Err: err}
	}
	return raw, Normalize(raw), callTime, nil
}

// ExtractJSON parses a JSON object out of a response, tolerating chat noise
// around it: direct parse first, then the substring between the first '{'
// and the last '}'.
func ExtractJSON(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	var obj map[string]any
	if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
		return obj, nil
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &obj); err == nil {
			return obj, nil
		}
	}
	return nil, &lookup.ParseError{Err: fmt.Errorf("no JSON object in response")}
}

// Normalize always yields an object: a parsed one, or the synthetic fallback
// carrying the truncated raw text with low confidence.
func Normalize(text string) map[string]any {
	if obj, err := ExtractJSON(text); err == nil {
		return obj
	}
	truncated := text
	if len(truncated) > rawResponseTruncateLen {
		truncated = truncated[:rawResponseTruncateLen]
	}
	return map[string]any{
		"raw_response": truncated,
		"confidence":   0.3,
		"warning":      "response was not valid JSON",
	}
}
