package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cheersanimesh/research-knowledge-graph/internal/config"
)

// NewClient builds the configured provider and wraps it with the mandatory
// timeout/retry policy. The returned embedder may be nil when the provider
// has no embedding endpoint (claude); callers must handle that.
func NewClient(ctx context.Context, cfg config.LLMConfig) (Client, Embedder, error) {
	client, embedder, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	r := WithRetry(client, embedder, timeout, cfg.MaxRetries)
	if embedder == nil {
		return r, nil, nil
	}
	return r, r, nil
}

func newProvider(ctx context.Context, cfg config.LLMConfig) (Client, Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		c := NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.EmbeddingModel, cfg.BaseURL)
		return c, c, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.EmbeddingModel)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil

	case "claude":
		return NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil, nil

	case "ollama":
		// Ollama speaks the OpenAI-compatible API; the key is a dummy.
		baseURL := strings.TrimRight(cfg.BaseURL, "/")
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", baseURL)
		}
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		c := NewOpenAIClient(apiKey, cfg.Model, cfg.EmbeddingModel, baseURL)
		return c, c, nil

	default:
		return nil, nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
