package llm

import (
	"context"
	"fmt"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiAdapter is a thin wrapper around the official genai client.
// Cross-cutting concerns (budget checks, timeouts, normalization) live in
// Client.
type GeminiAdapter struct {
	cli          *genai.Client
	model        string
	contextLimit int
	temperature  *float64
}

func NewGeminiAdapter(ctx context.Context, model string, contextLimit int, temperature *float64) (*GeminiAdapter, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if contextLimit <= 0 {
		contextLimit = ContextLimitFor("gemini", model)
	}
	return &GeminiAdapter{cli: cli, model: model, contextLimit: contextLimit, temperature: temperature}, nil
}

func (g *GeminiAdapter) Provider() string  { return "gemini" }
func (g *GeminiAdapter) Model() string     { return g.model }
func (g *GeminiAdapter) ContextLimit() int { return g.contextLimit }

func (g *GeminiAdapter) CountTokens(ctx context.Context, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	resp, err := g.cli.Models.CountTokens(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}}, nil)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	if g.temperature != nil {
		t := float32(*g.temperature)
		cfg.Temperature = &t
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}}, cfg)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
