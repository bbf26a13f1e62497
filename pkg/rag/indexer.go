package rag

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/norma"
	"github.com/killallgit/normachat/pkg/retrieval"
	"github.com/killallgit/normachat/pkg/vectorstore"
)

// IndexStats summarizes an indexing run
type IndexStats struct {
	Normas  int
	Chunks  int
	Skipped []int64
}

// Indexer chunks normas and stores them in a collection
type Indexer struct {
	collection vectorstore.Collection
	splitter   textsplitter.TextSplitter
	onProgress func(n norma.Norma, chunks int)
}

// IndexerOption configures an Indexer
type IndexerOption func(*Indexer)

// WithProgress is called after each norma is stored
func WithProgress(fn func(n norma.Norma, chunks int)) IndexerOption {
	return func(ix *Indexer) { ix.onProgress = fn }
}

// NewIndexer creates an indexer writing to collection
func NewIndexer(collection vectorstore.Collection, chunks retrieval.ChunkConfig, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		collection: collection,
		splitter:   retrieval.NewSplitter(chunks),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Index stores every norma with text. Normas without text are skipped and reported.
// Re-indexing a norma overwrites its chunks by id.
func (ix *Indexer) Index(ctx context.Context, normas ...norma.Norma) (IndexStats, error) {
	var stats IndexStats
	for _, n := range normas {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		docs, err := retrieval.NormaDocuments(n, ix.splitter)
		if err != nil {
			logger.Warn("rag: skipping norma %d: %v", n.ID, err)
			stats.Skipped = append(stats.Skipped, n.ID)
			continue
		}
		if err := ix.collection.AddDocuments(ctx, docs); err != nil {
			return stats, fmt.Errorf("indexing norma %d: %w", n.ID, err)
		}

		stats.Normas++
		stats.Chunks += len(docs)
		logger.Debug("rag: indexed %s as %d chunks", n.DisplayName(), len(docs))
		if ix.onProgress != nil {
			ix.onProgress(n, len(docs))
		}
	}
	return stats, nil
}
