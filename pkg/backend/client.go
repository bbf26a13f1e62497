package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/killallgit/normachat/pkg/config"
	"github.com/killallgit/normachat/pkg/httpretry"
	"github.com/killallgit/normachat/pkg/logger"
)

const apiPrefix = "/api/v1"

// Options configures a Client
type Options struct {
	BaseURL string
	// Token is sent as a bearer credential when not empty
	Token   string
	Timeout time.Duration
	// Retry applies to GET requests only; writes and message sends go out once
	Retry httpretry.Config
	// Transport overrides the underlying round tripper, mostly for tests
	Transport http.RoundTripper
}

// Client talks to the chat backend REST API
type Client struct {
	baseURL *url.URL
	token   string

	// http carries regular requests and is bounded by Timeout.
	// stream carries message sends whose body stays open for the whole reply,
	// so it relies on the request context instead.
	http   *http.Client
	stream *http.Client
}

// New creates a backend client
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("backend url is required")
	}
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", opts.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q: missing scheme or host", opts.BaseURL)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &Client{
		baseURL: u,
		token:   opts.Token,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: httpretry.NewTransport(base, opts.Retry),
		},
		stream: &http.Client{Transport: base},
	}, nil
}

// FromConfig creates a client from the backend section of the loaded config
func FromConfig(cfg *config.Config) (*Client, error) {
	retry := httpretry.DefaultConfig()
	retry.MaxRetries = cfg.Backend.MaxRetries
	return New(Options{
		BaseURL: cfg.Backend.URL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
		Retry:   retry,
	})
}

// BaseURL returns the configured backend url
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + apiPrefix + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends a request and decodes a JSON response into out when out is not nil
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	logger.Debug("backend: %s %s -> %d (%s)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
