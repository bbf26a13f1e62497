package backend

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/killallgit/normachat/pkg/norma"
	"github.com/killallgit/normachat/pkg/optimistic"
)

var _ optimistic.FavoritesClient = (*Client)(nil)

// LookupResult partitions a batch lookup
type LookupResult struct {
	Found    []norma.Norma `json:"found"`
	NotFound []int64       `json:"not_found"`
}

// ByID indexes the found normas
func (r *LookupResult) ByID() map[int64]norma.Norma {
	out := make(map[int64]norma.Norma, len(r.Found))
	for _, n := range r.Found {
		out[n.ID] = n
	}
	return out
}

type lookupRequest struct {
	IDs []int64 `json:"ids"`
}

// LookupNormas resolves a set of norma ids in one request
func (c *Client) LookupNormas(ctx context.Context, ids []int64) (*LookupResult, error) {
	ids = norma.UniqueIDs(ids)
	if len(ids) == 0 {
		return &LookupResult{}, nil
	}

	var out LookupResult
	if err := c.do(ctx, http.MethodPost, "/normas/batch", nil, lookupRequest{IDs: ids}, &out); err != nil {
		return nil, fmt.Errorf("looking up %d normas: %w", len(ids), err)
	}
	for i := range out.Found {
		out.Found[i].Source = norma.SourceBackend
	}
	return &out, nil
}

type favoriteRequest struct {
	NormaID int64 `json:"norma_id"`
}

// ListFavorites returns the ids of the user's favorite normas
func (c *Client) ListFavorites(ctx context.Context) ([]int64, error) {
	var out []favoriteRequest
	if err := c.do(ctx, http.MethodGet, "/favorites", nil, nil, &out); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(out))
	for _, f := range out {
		ids = append(ids, f.NormaID)
	}
	return norma.UniqueIDs(ids), nil
}

// AddFavorite marks a norma as favorite
func (c *Client) AddFavorite(ctx context.Context, normaID int64) error {
	return c.do(ctx, http.MethodPost, "/favorites", nil, favoriteRequest{NormaID: normaID}, nil)
}

// RemoveFavorite unmarks a norma
func (c *Client) RemoveFavorite(ctx context.Context, normaID int64) error {
	return c.do(ctx, http.MethodDelete, "/favorites/"+strconv.FormatInt(normaID, 10), nil, nil, nil)
}
