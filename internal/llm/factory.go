package llm

import (
	"fmt"

	"github.com/scrypster/atelier/internal/config"
)

// NewTextGenerator creates the TextGenerator for the configured provider and
// wraps it with the configured call-rate limit.
func NewTextGenerator(cfg config.LLMConfig) (TextGenerator, error) {
	var gen TextGenerator
	switch cfg.LLMProvider {
	case "openai", "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider requires ATELIER_OPENAI_API_KEY")
		}
		gen = NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL})
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ATELIER_ANTHROPIC_API_KEY")
		}
		gen = NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel})
	case "ollama":
		gen = NewOllamaClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: cfg.OllamaModel})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.LLMProvider)
	}

	if cfg.RequestsPerSec > 0 {
		gen = NewRateLimitedGenerator(gen, cfg.RequestsPerSec, cfg.Burst)
	}
	return gen, nil
}
