package retrieval

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/schema"

	"github.com/killallgit/normachat/pkg/vectorstore"
)

// Retriever finds the chunks most similar to a query
type Retriever struct {
	collection vectorstore.Collection
	config     Config
}

// Config contains configuration for the retriever
type Config struct {
	// MaxDocuments is the maximum number of chunks to retrieve
	MaxDocuments int

	// ScoreThreshold is the minimum similarity score required
	ScoreThreshold float32

	// Filter restricts results by chunk metadata, e.g. source
	Filter map[string]any
}

// NewRetriever creates a new retriever
func NewRetriever(collection vectorstore.Collection, config Config) *Retriever {
	if config.MaxDocuments <= 0 {
		config.MaxDocuments = 4
	}
	return &Retriever{collection: collection, config: config}
}

// Retrieve returns the relevant chunks for a query
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]vectorstore.Document, error) {
	results, err := r.RetrieveWithScores(ctx, query)
	if err != nil {
		return nil, err
	}

	documents := make([]vectorstore.Document, len(results))
	for i, result := range results {
		documents[i] = result.Document
	}
	return documents, nil
}

// RetrieveWithScores returns the relevant chunks with their similarity scores, best first
func (r *Retriever) RetrieveWithScores(ctx context.Context, query string) ([]vectorstore.Result, error) {
	if r.collection == nil {
		return nil, fmt.Errorf("vector store not initialized")
	}

	var opts []vectorstore.QueryOption
	if r.config.ScoreThreshold > 0 {
		opts = append(opts, vectorstore.WithMinScore(r.config.ScoreThreshold))
	}
	if len(r.config.Filter) > 0 {
		opts = append(opts, vectorstore.WithFilter(r.config.Filter))
	}

	results, err := r.collection.Query(ctx, query, r.config.MaxDocuments, opts...)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	return results, nil
}

// LangChainRetriever adapts Retriever to langchaingo's schema.Retriever
type LangChainRetriever struct {
	retriever *Retriever
}

var _ schema.Retriever = (*LangChainRetriever)(nil)

// NewLangChainRetriever creates a new langchaingo-compatible retriever
func NewLangChainRetriever(retriever *Retriever) *LangChainRetriever {
	return &LangChainRetriever{retriever: retriever}
}

// GetRelevantDocuments implements schema.Retriever
func (l *LangChainRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	results, err := l.retriever.RetrieveWithScores(ctx, query)
	if err != nil {
		return nil, err
	}

	docs := make([]schema.Document, len(results))
	for i, result := range results {
		docs[i] = schema.Document{
			PageContent: result.Document.Content,
			Metadata:    result.Document.Metadata,
			Score:       result.Score,
		}
	}
	return docs, nil
}
