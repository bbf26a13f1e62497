// Package infoleg downloads norma texts from the InfoLEG public archive.
package infoleg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"

	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/legal"
	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/norma"
)

// DefaultBaseURL is the public InfoLEG host
const DefaultBaseURL = "https://servicios.infoleg.gob.ar"

// rangeSize is the width of the anexos directories ids are grouped in
const rangeSize = 5000

// Variant selects which text of a norma to download
type Variant string

const (
	// Original is the text as published
	Original Variant = "norma.htm"
	// Updated is the consolidated text with later amendments applied
	Updated Variant = "texact.htm"
)

// Client fetches InfoLEG pages
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

// New creates a client for baseURL
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

// RangeDir returns the anexos directory holding id, e.g. "20000-24999"
func RangeDir(id int64) string {
	lo := id / rangeSize * rangeSize
	return fmt.Sprintf("%d-%d", lo, lo+rangeSize-1)
}

// PageURL returns the address of a norma page
func (c *Client) PageURL(id int64, v Variant) string {
	return fmt.Sprintf("%s/infolegInternet/anexos/%s/%d/%s", c.baseURL, RangeDir(id), id, v)
}

// FetchText downloads the published text of a norma
func (c *Client) FetchText(ctx context.Context, id int64) (string, error) {
	n, err := c.Fetch(ctx, id, Original)
	if err != nil {
		return "", err
	}
	return n.Text, nil
}

// Fetch downloads a norma page and returns it as a Norma with Text and Title set
func (c *Client) Fetch(ctx context.Context, id int64, v Variant) (norma.Norma, error) {
	if id <= 0 {
		return norma.Norma{}, fmt.Errorf("invalid norma id %d", id)
	}
	pageURL := c.PageURL(id, v)

	resp, err := c.fetcher.Get(ctx, pageURL, "text/html")
	if err != nil {
		return norma.Norma{}, fmt.Errorf("infoleg %d: %w", id, err)
	}
	defer resp.Body.Close()

	page, err := ExtractText(decodeBody(resp.Body, resp.Header.Get("Content-Type")))
	if err != nil {
		return norma.Norma{}, fmt.Errorf("infoleg %d: %w", id, err)
	}
	if page.Text == "" {
		return norma.Norma{}, fmt.Errorf("infoleg %d: page has no text", id)
	}
	logger.Debug("infoleg: norma %d has %d chars", id, len(page.Text))

	return norma.Norma{
		ID:     id,
		Title:  page.Title,
		Text:   page.Text,
		URL:    pageURL,
		Source: norma.SourceInfoleg,
	}, nil
}

// decodeBody converts the page to UTF-8. The archive serves Windows-1252
// and rarely declares it, so only an explicit utf-8 charset skips decoding.
func decodeBody(body io.Reader, contentType string) io.Reader {
	switch legal.Charset(contentType) {
	case "utf-8", "utf8":
		return body
	default:
		return charmap.Windows1252.NewDecoder().Reader(body)
	}
}
