// Package saij searches legislation in the SAIJ public index.
package saij

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/legal"
	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/norma"
)

// DefaultBaseURL is the public SAIJ host
const DefaultBaseURL = "https://www.saij.gob.ar"

// legislationFacet restricts results to legislation documents
const legislationFacet = "Total|Tipo de Documento/Legislación|Fecha|Organismo|Publicación|Tema|Estado de Vigencia|Autor|Jurisdicción"

// MaxPageSize is the largest page the index serves
const MaxPageSize = 100

// Client queries the SAIJ search endpoint
type Client struct {
	baseURL string
	fetcher *legal.Fetcher
}

// Option configures a Client
type Option func(*options)

type options struct {
	http    *http.Client
	limiter *rate.Limiter
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.http = c }
}

// WithLimiter shares a rate limiter with other source clients
func WithLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// New creates a client
func New(cfg config.SourceConfig, opts ...Option) *Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	baseURL := strings.TrimRight(cfg.URL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		fetcher: legal.NewFetcher(o.http, o.limiter, cfg.Timeout),
	}
}

// SearchResult is one page of hits
type SearchResult struct {
	Total  int
	Normas []norma.Norma
	// Skipped counts hits that could not be mapped to a norma id
	Skipped int
}

// Search returns hits offset..offset+size for query
func (c *Client) Search(ctx context.Context, query string, offset, size int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	if offset < 0 {
		offset = 0
	}
	if size <= 0 || size > MaxPageSize {
		size = MaxPageSize
	}

	q := url.Values{}
	q.Set("r", query)
	q.Set("o", strconv.Itoa(offset))
	q.Set("p", strconv.Itoa(size))
	q.Set("f", legislationFacet)
	q.Set("s", "")
	q.Set("v", "colapsada")
	searchURL := c.baseURL + "/busqueda?" + q.Encode()

	resp, err := c.fetcher.Get(ctx, searchURL, "application/json")
	if err != nil {
		return nil, fmt.Errorf("saij search: %w", err)
	}
	defer resp.Body.Close()

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("saij search: failed to decode response: %w", err)
	}

	result := &SearchResult{Total: payload.SearchResults.Total}
	for _, hit := range payload.SearchResults.Documents {
		n, err := hit.norma()
		if err != nil {
			logger.Debug("saij: skipping hit %s: %v", hit.UUID, err)
			result.Skipped++
			continue
		}
		n.URL = c.baseURL + "/" + hit.UUID
		result.Normas = append(result.Normas, n)
	}
	return result, nil
}

type searchResponse struct {
	SearchResults struct {
		Total     int   `json:"totalSearchResults"`
		Documents []hit `json:"documentResultList"`
	} `json:"searchResults"`
}

type hit struct {
	UUID string `json:"uuid"`
	// Abstract is itself a JSON document serialized as a string
	Abstract string `json:"documentAbstract"`
}

type abstract struct {
	Document struct {
		Content content `json:"content"`
	} `json:"document"`
}

type content struct {
	InfolegID    flexID    `json:"id-infoleg"`
	Type         textField `json:"tipo-norma"`
	Number       textField `json:"numero-norma"`
	Title        textField `json:"titulo-norma"`
	Summary      textField `json:"sintesis"`
	Date         string    `json:"fecha"`
	Jurisdiction textField `json:"jurisdiccion"`
	Agency       textField `json:"organismo"`
}

func (h hit) norma() (norma.Norma, error) {
	if h.Abstract == "" {
		return norma.Norma{}, fmt.Errorf("empty abstract")
	}
	var a abstract
	if err := json.Unmarshal([]byte(h.Abstract), &a); err != nil {
		return norma.Norma{}, fmt.Errorf("malformed abstract: %w", err)
	}
	c := a.Document.Content
	if c.InfolegID <= 0 {
		return norma.Norma{}, fmt.Errorf("no infoleg id")
	}

	n := norma.Norma{
		ID:           int64(c.InfolegID),
		Type:         string(c.Type),
		Number:       string(c.Number),
		Title:        string(c.Title),
		Summary:      string(c.Summary),
		Jurisdiction: string(c.Jurisdiction),
		Agency:       string(c.Agency),
		Source:       norma.SourceSAIJ,
	}
	if c.Date != "" {
		if t, err := time.Parse("2006-01-02", c.Date); err == nil {
			n.PublishedAt = t
		}
	}
	return n, nil
}

// textField accepts either a plain string or a coded object such as
// {"codigo":"LEY","texto":"Ley"}
type textField string

func (f *textField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = textField(strings.TrimSpace(s))
		return nil
	}
	var obj struct {
		Texto       string `json:"texto"`
		Descripcion string `json:"descripcion"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// other shapes carry nothing we display
		*f = ""
		return nil
	}
	if obj.Texto != "" {
		*f = textField(strings.TrimSpace(obj.Texto))
	} else {
		*f = textField(strings.TrimSpace(obj.Descripcion))
	}
	return nil
}

// flexID accepts a number or a numeric string
type flexID int64

func (id *flexID) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = flexID(v)
	return nil
}
