// Package http provides HTTP client infrastructure for lecture-platform
// interactions with built-in retry logic, rate limiting, and error handling.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"echosync/retry"
)

// Client wraps an HTTP client with retry logic, per-host rate limiting, and
// a transport failure breaker. It never follows redirects: the platform uses
// redirects to its login host to signal an expired session, and callers need
// to see them.
type Client struct {
	base        *http.Client
	config      *Config
	rateLimiter *RateLimiter
	breaker     *Breaker
}

// Config holds HTTP client configuration including retry and rate limit settings.
type Config struct {
	// Timeout for individual HTTP requests
	Timeout time.Duration

	// Retry configuration
	Retry retry.Config

	// User agent for HTTP requests
	UserAgent string

	// RequestsPerSecond caps the per-host request rate (0 = unlimited)
	RequestsPerSecond float64

	// Breaker configuration
	Breaker BreakerConfig
}

// DefaultConfig returns sensible defaults for HTTP client configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:           30 * time.Second,
		Retry:             retry.DefaultConfig(),
		UserAgent:         "echosync/1.0",
		RequestsPerSecond: 5.0,
		Breaker:           DefaultBreakerConfig(),
	}
}

// New creates a new HTTP client with the given configuration. The cookie jar
// carries the authenticated session; it may be nil for unauthenticated use.
func New(cfg *Config, jar http.CookieJar) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	base := &http.Client{
		Timeout: cfg.Timeout,
		Jar:     jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Client{
		base:        base,
		config:      cfg,
		rateLimiter: NewRateLimiter(cfg.RequestsPerSecond),
		breaker:     NewBreaker(cfg.Breaker),
	}
}

// Response represents an HTTP response with status code and body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Get performs a GET request with retry logic.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

// Do performs an HTTP request with retry logic. Transient transport and 5xx
// failures are retried with backoff; redirects and other non-2xx statuses
// are returned to the caller immediately as typed errors.
func (c *Client) Do(ctx context.Context, method, urlStr string, headers map[string]string) (*Response, error) {
	host := extractHost(urlStr)

	// Fail fast if the host has been unreachable
	if err := c.breaker.Allow(host); err != nil {
		return nil, err
	}

	var lastResp *Response

	err := retry.Do(ctx, c.config.Retry, c.isRetryableHTTPError, func(ctx context.Context) error {
		if err := c.rateLimiter.Wait(ctx, urlStr); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
		if err != nil {
			return err
		}

		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.base.Do(req)
		if err != nil {
			c.breaker.RecordFailure(host)
			return fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()
		c.breaker.RecordSuccess(host)

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			return &RedirectError{
				StatusCode: resp.StatusCode,
				Location:   resp.Header.Get("Location"),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			bodyBytes, _ := io.ReadAll(resp.Body)
			return &HTTPError{
				StatusCode: resp.StatusCode,
				Body:       bodyBytes,
			}
		}

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}

		lastResp = &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	if lastResp == nil {
		return nil, ErrNoResponse
	}
	return lastResp, nil
}

// isRetryableHTTPError determines if an HTTP error is retryable.
func (c *Client) isRetryableHTTPError(err error) bool {
	// Use default retry classifier for generic errors
	if !retry.IsRetryable(err) {
		return false
	}

	// Redirects are a signal, not a failure
	if _, ok := err.(*RedirectError); ok {
		return false
	}

	// HTTP errors are retryable for 5xx and 429 only
	if httpErr, ok := err.(*HTTPError); ok {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}

	return true
}

// Close closes the HTTP client connections and releases all resources.
func (c *Client) Close() error {
	if c.base != nil {
		c.base.CloseIdleConnections()
	}
	return nil
}
