// Package httpretry provides an http.RoundTripper that retries transient failures.
package httpretry

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/killallgit/normachat/pkg/logger"
)

// Config configures retries
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	// AllMethods also retries non-idempotent methods whose body can be replayed.
	// Embedding endpoints use POST but are safe to repeat.
	AllMethods bool
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		BackoffBase: 100 * time.Millisecond,
	}
}

// Transport retries requests on network errors and 5xx responses
// with exponential backoff and jitter.
type Transport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
	allMethods bool
}

// NewTransport wraps base, falling back to http.DefaultTransport when nil
func NewTransport(base http.RoundTripper, cfg Config) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	return &Transport{
		base:       base,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.BackoffBase,
		allMethods: cfg.AllMethods,
	}
}

// NewClient creates an http.Client using a retrying transport
func NewClient(cfg Config) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: NewTransport(http.DefaultTransport, cfg),
	}
}

func (t *Transport) retryable(req *http.Request) bool {
	if t.maxRetries <= 0 {
		return false
	}
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		return true
	}
	return t.allMethods && (req.Body == nil || req.GetBody != nil)
}

// RoundTrip executes the request, retrying when allowed
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.retryable(req) {
		return t.base.RoundTrip(req)
	}

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		attemptReq := req.Clone(req.Context())
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			attemptReq.Body = body
		}

		resp, err = t.base.RoundTrip(attemptReq)

		// Don't retry on success or client errors
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if attempt == t.maxRetries {
			break
		}

		wait := t.backoff * time.Duration(1<<uint(attempt))
		jitter := time.Duration(rand.Int63n(int64(wait/4) + 1))
		sleep := wait + jitter

		// Not enough time left for another attempt
		if deadline, ok := req.Context().Deadline(); ok && time.Until(deadline) < sleep {
			break
		}

		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		logger.Debug("httpretry: %s %s failed, retrying in %s (attempt %d/%d)",
			req.Method, req.URL.Path, sleep, attempt+1, t.maxRetries)

		select {
		case <-time.After(sleep):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", t.maxRetries+1, err)
	}
	return resp, nil
}
