package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// OpenAIAdapter calls any OpenAI-compatible chat completions endpoint and
// asks for a JSON object response.
type OpenAIAdapter struct {
	http         *http.Client
	apiKey       string
	model        string
	baseURL      string
	contextLimit int
	temperature  *float64
}

// NewOpenAIAdapter creates an adapter. An empty apiKey falls back to the
// OPENAI_API_KEY env var; an empty baseURL targets api.openai.com.
func NewOpenAIAdapter(apiKey, baseURL, model string, contextLimit int, temperature *float64) *OpenAIAdapter {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.openai.com/v1/chat/completions"
	}
	if contextLimit <= 0 {
		contextLimit = ContextLimitFor("openai", model)
	}
	return &OpenAIAdapter{
		// Per-request deadlines come from the caller's context.
		http:         &http.Client{},
		apiKey:       apiKey,
		model:        model,
		baseURL:      baseURL,
		contextLimit: contextLimit,
		temperature:  temperature,
	}
}

func (o *OpenAIAdapter) Provider() string  { return "openai" }
func (o *OpenAIAdapter) Model() string     { return o.model }
func (o *OpenAIAdapter) ContextLimit() int { return o.contextLimit }

// CountTokens has no local tokenizer; the client falls back to estimation.
func (o *OpenAIAdapter) CountTokens(_ context.Context, _ string) (int, error) {
	return 0, ErrNoTokenizer
}

type chatReq struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAIAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatReq{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature:    o.temperature,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		const max = 2048
		if len(body) > max {
			body = body[:max]
		}
		return "", fmt.Errorf("openai: unexpected status %s: %s", resp.Status, string(body))
	}

	var out chatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return out.Choices[0].Message.Content, nil
}
