package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/killallgit/normachat/pkg/backend"
	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/legal"
	"github.com/killallgit/normachat/pkg/legal/infoleg"
	"github.com/killallgit/normachat/pkg/legal/saij"
	"github.com/killallgit/normachat/pkg/rag"
	"github.com/killallgit/normachat/pkg/retrieval"
	"github.com/killallgit/normachat/pkg/vectorstore"
)

// commandContext is cancelled on interrupt
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func newBackend() (*backend.Client, error) {
	return backend.FromConfig(config.Get())
}

// newSources builds both legislation clients around one limiter
func newSources() (*infoleg.Client, *saij.Client) {
	cfg := config.Get()
	limiter := legal.LimiterFromConfig(cfg.Sources)
	return infoleg.New(cfg.Infoleg, infoleg.WithLimiter(limiter)),
		saij.New(cfg.SAIJ, saij.WithLimiter(limiter))
}

// openCollection opens the configured vector collection, creating it if needed
func openCollection() (vectorstore.Collection, func(), error) {
	cfg := config.Get()
	if !cfg.VectorStore.Enabled {
		return nil, nil, fmt.Errorf("vector store is disabled (vectorstore.enabled)")
	}
	store, err := vectorstore.NewStoreFromConfig(cfg.VectorStore)
	if err != nil {
		return nil, nil, err
	}
	col, err := vectorstore.GetOrCreateCollection(store, cfg.VectorStore.Collection, nil)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return col, func() { store.Close() }, nil
}

func chunkConfig() retrieval.ChunkConfig {
	idx := config.Get().VectorStore.Indexer
	return retrieval.ChunkConfig{ChunkSize: idx.ChunkSize, ChunkOverlap: idx.ChunkOverlap}
}

// newPipeline wires retrieval over col with the configured model
func newPipeline(col vectorstore.Collection) (*rag.Pipeline, error) {
	cfg := config.Get()
	model, err := rag.NewModel(cfg.LLM)
	if err != nil {
		return nil, err
	}
	retriever := retrieval.NewRetriever(col, retrieval.Config{
		MaxDocuments:   cfg.RAG.TopK,
		ScoreThreshold: cfg.RAG.ScoreThreshold,
	})
	augmenter := retrieval.NewAugmenter(retriever, retrieval.AugmenterConfig{
		MaxContextLength: cfg.RAG.MaxContextLength,
	})
	return rag.NewPipeline(augmenter, model), nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid norma id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
