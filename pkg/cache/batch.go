// Package cache memoizes batched lookups keyed by a normalized id set.
package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/norma"
)

// FetchFunc loads the value for a normalized id set
type FetchFunc[V any] func(ctx context.Context, ids []int64) (V, error)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// BatchCache memoizes FetchFunc results per id set.
// Concurrent callers for the same set share one fetch. Errors are not stored.
type BatchCache[V any] struct {
	fetch FetchFunc[V]
	ttl   time.Duration
	now   func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry[V]
	// generation is bumped by Reset and Invalidate so a fetch that started
	// before them does not repopulate the cache
	generation uint64
}

// Option configures a BatchCache
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL expires entries after ttl; zero keeps them until Reset
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock overrides the time source used for expiry
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache around fetch
func New[V any](fetch FetchFunc[V], opts ...Option) *BatchCache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &BatchCache[V]{
		fetch:   fetch,
		ttl:     o.ttl,
		now:     o.now,
		entries: make(map[string]entry[V]),
	}
}

// Key normalizes ids into the cache key: distinct, ascending, comma separated
func Key(ids []int64) string {
	unique := norma.UniqueIDs(ids)
	parts := make([]string, len(unique))
	for i, id := range unique {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// Get returns the cached value for ids, joining an in-flight fetch or starting one.
// A caller whose ctx ends stops waiting; the shared fetch keeps running for the others.
func (c *BatchCache[V]) Get(ctx context.Context, ids []int64) (V, error) {
	key := Key(ids)
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}

		c.mu.RLock()
		gen := c.generation
		c.mu.RUnlock()

		// detached so one caller cancelling does not fail everybody sharing the call
		v, err := c.fetch(context.WithoutCancel(ctx), norma.UniqueIDs(ids))
		if err != nil {
			return v, err
		}

		c.mu.Lock()
		if c.generation == gen {
			c.entries[key] = entry[V]{value: v, expiresAt: c.expiry()}
		}
		c.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			logger.Debug("cache: joined in-flight fetch for [%s]", key)
		}
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		// a nil interface V comes back as a nil any
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Peek returns a cached value without fetching
func (c *BatchCache[V]) Peek(ids []int64) (V, bool) {
	return c.lookup(Key(ids))
}

func (c *BatchCache[V]) lookup(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *BatchCache[V]) expiry() time.Time {
	if c.ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(c.ttl)
}

// Invalidate drops the entry for ids
func (c *BatchCache[V]) Invalidate(ids []int64) {
	key := Key(ids)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.generation++
	c.group.Forget(key)
}

// Reset drops every entry
func (c *BatchCache[V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
	c.generation++
}

// Len returns the number of stored entries, expired ones included until next access
func (c *BatchCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
