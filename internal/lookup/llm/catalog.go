package llm

import (
	"context"
	"fmt"
	"strings"

	"lookupcore/internal/lookup"
)

// Known context windows per (provider, model). Unknown models get a
// conservative default.
var contextLimits = map[string]int{
	"gemini/gemini-2.5-flash": 1048576,
	"gemini/gemini-2.5-pro":   1048576,
	"openai/gpt-4o":           128000,
	"openai/gpt-4o-mini":      128000,
	"openai/gpt-4-turbo":      128000,
	"openai/gpt-3.5-turbo":    16385,
}

const defaultContextLimit = 8192

// ContextLimitFor returns the model's context window in tokens.
func ContextLimitFor(provider, model string) int {
	if limit, ok := contextLimits[strings.ToLower(provider)+"/"+strings.ToLower(model)]; ok {
		return limit
	}
	return defaultContextLimit
}

// Factory builds an Adapter from a template's llm_config.
type Factory func(ctx context.Context, cfg lookup.LLMConfig) (Adapter, error)

// DefaultFactory resolves the provider name to a concrete adapter.
// openaiBaseURL may point at any OpenAI-compatible endpoint.
func DefaultFactory(openaiBaseURL string) Factory {
	return func(ctx context.Context, cfg lookup.LLMConfig) (Adapter, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
		case "gemini", "google":
			return NewGeminiAdapter(ctx, cfg.Model, 0, cfg.Temperature)
		case "openai", "":
			return NewOpenAIAdapter("", openaiBaseURL, cfg.Model, 0, cfg.Temperature), nil
		default:
			return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
		}
	}
}
