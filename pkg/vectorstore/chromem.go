package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/logger"
)

// ChromemStore implements Store using chromem-go
type ChromemStore struct {
	db             *chromem.DB
	embedder       Embedder
	persistenceDir string
	mu             sync.RWMutex
}

// NewChromemStore creates an in-memory store, or a persistent one under persistenceDir
func NewChromemStore(embedder Embedder, persistenceDir string, enablePersistence bool) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	var db *chromem.DB
	if enablePersistence && persistenceDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(persistenceDir, false)
		if err != nil {
			return nil, &Error{
				Code:    ErrCodePersistence,
				Message: fmt.Sprintf("failed to open persistent store at %s", persistenceDir),
				Cause:   err,
			}
		}
		logger.Debug("vectorstore: opened persistent store at %s", persistenceDir)
	} else {
		db = chromem.NewDB()
	}

	return &ChromemStore{
		db:             db,
		embedder:       embedder,
		persistenceDir: persistenceDir,
	}, nil
}

// NewStoreFromConfig builds the embedder and store described by cfg
func NewStoreFromConfig(cfg config.VectorStoreConfig) (*ChromemStore, error) {
	embedder, err := CreateEmbedder(EmbedderConfig{
		Provider: cfg.Embedder.Provider,
		Model:    cfg.Embedder.Model,
		BaseURL:  cfg.Embedder.BaseURL,
		APIKey:   cfg.Embedder.APIKey,
	})
	if err != nil {
		return nil, err
	}

	return NewChromemStore(embedder, config.ResolvePath(cfg.PersistenceDir), cfg.EnablePersistence)
}

func (cs *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return cs.embedder.EmbedText(ctx, text)
	}
}

// CreateCollection creates a new collection
func (cs *ChromemStore) CreateCollection(name string, metadata map[string]any) (Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if existing := cs.db.GetCollection(name, nil); existing != nil {
		return nil, &Error{
			Code:    ErrCodeCollectionExists,
			Message: fmt.Sprintf("collection %s already exists", name),
		}
	}

	col, err := cs.db.CreateCollection(name, stringify(metadata), cs.embeddingFunc())
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeCollectionExists,
			Message: fmt.Sprintf("failed to create collection %s", name),
			Cause:   err,
		}
	}

	return &ChromemCollection{collection: col, embedder: cs.embedder, name: name}, nil
}

// GetCollection retrieves an existing collection
func (cs *ChromemStore) GetCollection(name string) (Collection, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	col := cs.db.GetCollection(name, cs.embeddingFunc())
	if col == nil {
		return nil, &Error{
			Code:    ErrCodeCollectionNotFound,
			Message: fmt.Sprintf("collection %s not found", name),
		}
	}

	return &ChromemCollection{collection: col, embedder: cs.embedder, name: name}, nil
}

// ListCollections returns all collection names in order
func (cs *ChromemStore) ListCollections() ([]string, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	collections := cs.db.ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteCollection removes a collection and all its documents
func (cs *ChromemStore) DeleteCollection(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := cs.db.DeleteCollection(name); err != nil {
		return &Error{
			Code:    ErrCodeCollectionNotFound,
			Message: fmt.Sprintf("failed to delete collection %s", name),
			Cause:   err,
		}
	}
	return nil
}

// Close releases the store. chromem persists on every write, so there is nothing to flush.
func (cs *ChromemStore) Close() error {
	return nil
}

// ChromemCollection implements Collection using chromem
type ChromemCollection struct {
	collection *chromem.Collection
	embedder   Embedder
	name       string
	mu         sync.RWMutex
}

// Name returns the collection name
func (cc *ChromemCollection) Name() string {
	return cc.name
}

// AddDocuments adds documents to the collection
func (cc *ChromemCollection) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	for _, doc := range docs {
		if err := validateDocumentID(doc.ID); err != nil {
			return err
		}
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	// Embed in batches for the documents that need it
	var pending []int
	for i := range docs {
		if len(docs[i].Embedding) == 0 {
			pending = append(pending, i)
		}
	}
	for start := 0; start < len(pending); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(pending))
		texts := make([]string, 0, end-start)
		for _, idx := range pending[start:end] {
			texts = append(texts, docs[idx].Content)
		}
		vectors, err := cc.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return &Error{
				Code:    ErrCodeEmbeddingGeneration,
				Message: fmt.Sprintf("failed to embed %d documents", len(texts)),
				Cause:   err,
			}
		}
		for j, idx := range pending[start:end] {
			docs[idx].Embedding = vectors[j]
		}
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  stringify(doc.Metadata),
			Embedding: doc.Embedding,
		}
	}

	if err := cc.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Query performs a similarity search
func (cc *ChromemCollection) Query(ctx context.Context, query string, k int, opts ...QueryOption) ([]Result, error) {
	embedding, err := cc.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, &Error{Code: ErrCodeEmbeddingGeneration, Message: "failed to embed query", Cause: err}
	}
	return cc.QueryWithEmbedding(ctx, embedding, k, opts...)
}

// QueryWithEmbedding performs a similarity search using a pre-computed embedding
func (cc *ChromemCollection) QueryWithEmbedding(ctx context.Context, embedding []float32, k int, opts ...QueryOption) ([]Result, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	options := &queryOptions{}
	for _, opt := range opts {
		opt.apply(options)
	}

	docCount := cc.collection.Count()
	if docCount == 0 || k <= 0 {
		return []Result{}, nil
	}
	if k > docCount {
		k = docCount
	}

	chromemResults, err := cc.collection.QueryEmbedding(ctx, embedding, k, buildChromemWhere(options), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	results := make([]Result, 0, len(chromemResults))
	for _, cr := range chromemResults {
		if options.minScore > 0 && cr.Similarity < options.minScore {
			continue
		}
		metadata := make(map[string]any, len(cr.Metadata))
		for k, v := range cr.Metadata {
			metadata[k] = v
		}
		results = append(results, Result{
			Document: Document{
				ID:        cr.ID,
				Content:   cr.Content,
				Metadata:  metadata,
				Embedding: cr.Embedding,
			},
			Score:    cr.Similarity,
			Distance: 1 - cr.Similarity,
		})
	}
	return results, nil
}

// Delete removes documents by ID
func (cc *ChromemCollection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()

	if err := cc.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of documents in the collection
func (cc *ChromemCollection) Count() (int, error) {
	return cc.collection.Count(), nil
}

// Clear removes all documents from the collection
func (cc *ChromemCollection) Clear(ctx context.Context) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	count := cc.collection.Count()
	if count == 0 {
		return nil
	}

	dims := cc.embedder.Dimensions()
	if dims == 0 {
		return fmt.Errorf("cannot clear collection %s: unknown embedding dimensions", cc.name)
	}

	// chromem has no list operation; a query over every document yields all ids
	probe := make([]float32, dims)
	probe[0] = 1
	all, err := cc.collection.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	if err := cc.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	return nil
}

func buildChromemWhere(opts *queryOptions) map[string]string {
	if len(opts.filter) == 0 {
		return nil
	}
	return stringify(opts.filter)
}

// stringify converts metadata to the string map chromem stores
func stringify(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// GetOrCreateCollection gets a collection or creates it if it doesn't exist
func GetOrCreateCollection(store Store, name string, metadata map[string]any) (Collection, error) {
	col, err := store.GetCollection(name)
	if err == nil {
		return col, nil
	}

	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodeCollectionNotFound {
		return store.CreateCollection(name, metadata)
	}
	return nil, err
}
