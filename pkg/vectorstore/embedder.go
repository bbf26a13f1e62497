package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/killallgit/normachat/pkg/httpretry"
)

const (
	// MaxTextLength is the maximum length of text that can be embedded
	MaxTextLength = 8192
	// MaxBatchSize is the maximum number of texts that can be embedded in one batch
	MaxBatchSize = 100
)

// LangChainEmbedder wraps a langchaingo embedder
type LangChainEmbedder struct {
	embedder embeddings.Embedder
	provider string

	mu         sync.RWMutex
	dimensions int
}

func embedderHTTPConfig(config EmbedderConfig) httpretry.Config {
	cfg := httpretry.Config{
		Timeout:     config.HTTPTimeout,
		MaxRetries:  config.MaxRetries,
		BackoffBase: config.RetryBackoff,
		AllMethods:  true,
	}
	if cfg.Timeout == 0 {
		cfg = httpretry.DefaultConfig()
		cfg.AllMethods = true
		cfg.Timeout = 60 * time.Second
	}
	return cfg
}

// NewOllamaEmbedder creates an embedder backed by an Ollama server
func NewOllamaEmbedder(config EmbedderConfig) (*LangChainEmbedder, error) {
	opts := []ollama.Option{
		ollama.WithModel(config.Model),
		ollama.WithHTTPClient(httpretry.NewClient(embedderHTTPConfig(config))),
	}
	if config.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(config.BaseURL))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &LangChainEmbedder{embedder: embedder, provider: "ollama"}, nil
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI API
func NewOpenAIEmbedder(config EmbedderConfig) (*LangChainEmbedder, error) {
	opts := []openai.Option{
		openai.WithHTTPClient(httpretry.NewClient(embedderHTTPConfig(config))),
	}
	if config.APIKey != "" {
		opts = append(opts, openai.WithToken(config.APIKey))
	}
	if config.Model != "" {
		opts = append(opts, openai.WithEmbeddingModel(config.Model))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &LangChainEmbedder{embedder: embedder, provider: "openai"}, nil
}

// EmbedText generates an embedding for a single text
func (le *LangChainEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}

	vectors, err := le.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, wrapEmbeddingError(err, "embed_text", le.provider)
	}
	if len(vectors) == 0 {
		return nil, wrapEmbeddingError(errors.New("no embeddings returned"), "embed_text", le.provider)
	}

	le.observe(vectors[0])
	return vectors[0], nil
}

// EmbedTexts generates embeddings for multiple texts
func (le *LangChainEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	vectors, err := le.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, wrapEmbeddingError(err, "embed_texts", le.provider)
	}
	if len(vectors) != len(texts) {
		return nil, wrapEmbeddingError(
			fmt.Errorf("got %d embeddings for %d texts", len(vectors), len(texts)), "embed_texts", le.provider)
	}

	le.observe(vectors[0])
	return vectors, nil
}

// Dimensions returns the embedding size, zero until the first embedding is produced
func (le *LangChainEmbedder) Dimensions() int {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.dimensions
}

func (le *LangChainEmbedder) observe(v []float32) {
	le.mu.Lock()
	defer le.mu.Unlock()
	if le.dimensions == 0 {
		le.dimensions = len(v)
	}
}

func validateText(text string) error {
	if text == "" {
		return ErrEmptyText
	}
	if len(text) > MaxTextLength {
		return fmt.Errorf("%w: %d > %d characters", ErrTextTooLong, len(text), MaxTextLength)
	}
	return nil
}

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return errors.New("no texts to embed")
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}
	for i, text := range texts {
		if err := validateText(text); err != nil {
			return fmt.Errorf("text at index %d: %w", i, err)
		}
	}
	return nil
}

// CreateEmbedder creates an embedder based on configuration
func CreateEmbedder(config EmbedderConfig) (Embedder, error) {
	if config.Model == "" {
		switch config.Provider {
		case "ollama":
			config.Model = "nomic-embed-text"
		case "openai":
			config.Model = "text-embedding-3-small"
		}
	}

	switch config.Provider {
	case "ollama":
		return NewOllamaEmbedder(config)
	case "openai":
		return NewOpenAIEmbedder(config)
	case "mock":
		return NewMockEmbedder(DefaultMockDimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedder provider: %q", config.Provider)
	}
}
