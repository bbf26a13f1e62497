// Package rag answers questions locally over indexed normas.
package rag

import (
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/httpretry"
)

// NewModel creates the language model described by cfg
func NewModel(cfg config.LLMConfig) (llms.Model, error) {
	// generation can take minutes on local models; retries would duplicate work
	client := httpretry.NewClient(httpretry.Config{Timeout: 10 * time.Minute})

	switch cfg.Provider {
	case "ollama", "":
		opts := []ollama.Option{
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(client),
		}
		if cfg.URL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.URL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama model: %w", err)
		}
		return llm, nil

	case "openai":
		opts := []openai.Option{openai.WithHTTPClient(client)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.APIKey != "" {
			opts = append(opts, openai.WithToken(cfg.APIKey))
		}
		if cfg.URL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.URL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return llm, nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}
