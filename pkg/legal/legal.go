// Package legal holds what the public legislation source clients share:
// a request rate limiter and the HTTP fetch helper built on it.
package legal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/httpretry"
	"github.com/killallgit/normachat/pkg/logger"
)

// UserAgent identifies the client to the public sources
const UserAgent = "normachat/1.0 (+https://github.com/killallgit/normachat)"

// ErrNotFound matches a StatusError for a 404 response
var ErrNotFound = errors.New("document not found")

// StatusError is returned when a source answers with a non-200 status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// NewLimiter creates the limiter shared by every source client.
// A non-positive rate disables limiting.
func NewLimiter(ratePerSecond float64, burst int) *rate.Limiter {
	if ratePerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

// LimiterFromConfig creates the shared limiter from the sources settings
func LimiterFromConfig(c config.SourcesConfig) *rate.Limiter {
	return NewLimiter(c.RatePerSecond, c.Burst)
}

// Fetcher performs rate limited GET requests
type Fetcher struct {
	http    *http.Client
	limiter *rate.Limiter
}

// NewFetcher creates a fetcher. A nil client gets a retrying client with timeout;
// a nil limiter disables limiting.
func NewFetcher(client *http.Client, limiter *rate.Limiter, timeout time.Duration) *Fetcher {
	if client == nil {
		cfg := httpretry.DefaultConfig()
		if timeout > 0 {
			cfg.Timeout = timeout
		}
		client = httpretry.NewClient(cfg)
	}
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	return &Fetcher{http: client, limiter: limiter}
}

// Get waits for the limiter and fetches rawURL. The caller closes the body.
func (f *Fetcher) Get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	start := time.Now()
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	logger.Debug("legal: GET %s -> %d (%s)", rawURL, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// Charset returns the lowercased charset parameter of a Content-Type header, if any
func Charset(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}
