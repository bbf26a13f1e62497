package vectorstore

import (
	"context"
	"time"
)

// Store manages named collections of embedded documents
type Store interface {
	// CreateCollection creates a new collection with the given name
	CreateCollection(name string, metadata map[string]any) (Collection, error)

	// GetCollection retrieves an existing collection by name
	GetCollection(name string) (Collection, error)

	// ListCollections returns all collection names
	ListCollections() ([]string, error)

	// DeleteCollection removes a collection and all its documents
	DeleteCollection(name string) error

	Close() error
}

// Collection is a set of documents searchable by similarity
type Collection interface {
	Name() string

	// AddDocuments embeds documents without an embedding and stores them
	AddDocuments(ctx context.Context, docs []Document) error

	// Query performs a similarity search
	Query(ctx context.Context, query string, k int, opts ...QueryOption) ([]Result, error)

	// QueryWithEmbedding performs a similarity search using a pre-computed embedding
	QueryWithEmbedding(ctx context.Context, embedding []float32, k int, opts ...QueryOption) ([]Result, error)

	Delete(ctx context.Context, ids []string) error
	Count() (int, error)
	Clear(ctx context.Context) error
}

// Metadata keys set on indexed norma chunks
const (
	MetaNormaID = "norma_id"
	MetaTitle   = "title"
	MetaSource  = "source"
	MetaChunk   = "chunk"
)

// Document is a unit of text stored in a collection
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any

	// Embedding is generated on insert when empty
	Embedding []float32
}

// Result is a search hit
type Result struct {
	Document Document

	// Score is the cosine similarity (higher is better)
	Score float32

	// Distance is 1 - Score
	Distance float32
}

// QueryOption represents options for querying
type QueryOption interface {
	apply(*queryOptions)
}

type queryOptions struct {
	filter   map[string]any
	minScore float32
}

// WithFilter restricts results to documents whose metadata matches every key
func WithFilter(filter map[string]any) QueryOption {
	return filterOption{filter: filter}
}

type filterOption struct {
	filter map[string]any
}

func (f filterOption) apply(opts *queryOptions) {
	opts.filter = f.filter
}

// WithMinScore drops results below score
func WithMinScore(score float32) QueryOption {
	return minScoreOption{score: score}
}

type minScoreOption struct {
	score float32
}

func (m minScoreOption) apply(opts *queryOptions) {
	opts.minScore = m.score
}

// Embedder generates embeddings from text
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// EmbedderConfig represents embedder configuration
type EmbedderConfig struct {
	// Provider is one of "ollama", "openai" or "mock"
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Error is returned by store operations
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode classifies store errors
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeCollectionNotFound
	ErrCodeCollectionExists
	ErrCodeInvalidEmbedding
	ErrCodeEmbeddingGeneration
	ErrCodePersistence
)
