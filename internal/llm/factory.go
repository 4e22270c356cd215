package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agenthands/roundup/internal/config"
)

func NewClient(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (LLMClient, error) {
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		c := NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL).
			WithLimits(cfg.MaxTokens, cfg.Temperature).
			WithJSONMode(cfg.JSONMode)
		return c, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		return c.WithJSONMode(cfg.JSONMode).WithLimits(cfg.MaxTokens, cfg.Temperature), nil

	case "claude":
		c := NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL).
			WithLimits(cfg.MaxTokens, cfg.Temperature).
			WithJSONMode(cfg.JSONMode)
		return c, nil

	case "ollama":
		// Ollama serves an OpenAI-compatible API under /v1.
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}

		logger.Info().Str("base_url", baseURL).Str("model", cfg.Model).Msg("Initializing Ollama via OpenAI-compatible API")

		// Ollama ignores the key but the client requires one.
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}

		c := NewOpenAIClient(apiKey, cfg.Model, baseURL).
			WithLimits(cfg.MaxTokens, cfg.Temperature).
			WithJSONMode(cfg.JSONMode)
		return c, nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
