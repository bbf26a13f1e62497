package optimistic

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FavoritesClient persists favorite normas remotely
type FavoritesClient interface {
	AddFavorite(ctx context.Context, normaID int64) error
	RemoveFavorite(ctx context.Context, normaID int64) error
}

// Favorites is the local set of favorite normas
type Favorites struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

// NewFavorites creates a set seeded with ids
func NewFavorites(ids ...int64) *Favorites {
	f := &Favorites{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		f.ids[id] = struct{}{}
	}
	return f
}

// Has reports whether id is a favorite
func (f *Favorites) Has(id int64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.ids[id]
	return ok
}

// IDs returns the favorites in ascending order
func (f *Favorites) IDs() []int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]int64, 0, len(f.ids))
	for id := range f.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *Favorites) set(id int64, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if on {
		f.ids[id] = struct{}{}
	} else {
		delete(f.ids, id)
	}
}

// Toggle returns a command flipping id; the target state is fixed when the command is built
func (f *Favorites) Toggle(client FavoritesClient, id int64) Command {
	target := !f.Has(id)
	return Func{
		Name:       fmt.Sprintf("favorite:%d", id),
		ApplyFn:    func() { f.set(id, target) },
		RollbackFn: func() { f.set(id, !target) },
		ExecuteFn: func(ctx context.Context) error {
			if target {
				return client.AddFavorite(ctx, id)
			}
			return client.RemoveFavorite(ctx, id)
		},
	}
}
