package cache

import (
	"context"

	"github.com/killallgit/normachat/pkg/backend"
	"github.com/killallgit/normachat/pkg/norma"
)

// Lookuper resolves norma ids in batches
type Lookuper interface {
	LookupNormas(ctx context.Context, ids []int64) (*backend.LookupResult, error)
}

// NormaLookup caches batch lookups of norma ids for the lifetime of the value
type NormaLookup struct {
	cache *BatchCache[*backend.LookupResult]
}

// NewNormaLookup wraps client with a batch cache
func NewNormaLookup(client Lookuper, opts ...Option) *NormaLookup {
	return &NormaLookup{cache: New(client.LookupNormas, opts...)}
}

// Lookup returns the found and missing normas for ids
func (l *NormaLookup) Lookup(ctx context.Context, ids []int64) (*backend.LookupResult, error) {
	return l.cache.Get(ctx, ids)
}

// Normas returns the found normas for ids in id order
func (l *NormaLookup) Normas(ctx context.Context, ids []int64) ([]norma.Norma, error) {
	res, err := l.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := res.ByID()
	out := make([]norma.Norma, 0, len(byID))
	for _, id := range norma.UniqueIDs(ids) {
		if n, ok := byID[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Invalidate forgets the cached result for ids
func (l *NormaLookup) Invalidate(ids []int64) {
	l.cache.Invalidate(ids)
}

// Reset forgets every cached result
func (l *NormaLookup) Reset() {
	l.cache.Reset()
}
