// Package fetch downloads remote sources for proxy-mode transforms.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maauso/transform-api/internal/failure"
)

// Static errors for fetch operations.
var (
	// ErrURLRequired is returned when no URL is given.
	ErrURLRequired = errors.New("fetch: URL is required")
	// ErrServerError is returned when the origin returns a 5xx status code.
	ErrServerError = errors.New("fetch: server error")
	// ErrRateLimited is returned when the origin returns a 429 status code.
	ErrRateLimited = errors.New("fetch: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("fetch: request failed")
	// ErrTooLarge is returned when the body exceeds the configured limit.
	ErrTooLarge = errors.New("fetch: response too large")
)

const (
	// DefaultMaxBytes bounds a fetched body.
	DefaultMaxBytes = 64 << 20
	// DefaultUserAgent identifies the service to origins.
	DefaultUserAgent = "transform-api/1.0"
)

// Client retrieves a remote resource.
type Client interface {
	// Fetch returns the body of url.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPClient is the HTTP implementation of Client.
type HTTPClient struct {
	httpClient  *http.Client
	userAgent   string
	maxRetries  int
	baseBackoff time.Duration
	maxBytes    int64
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-attempt timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = &http.Client{Timeout: d}
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(hc *HTTPClient) {
		hc.userAgent = ua
	}
}

// WithMaxBytes caps the accepted body size.
func WithMaxBytes(n int64) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxBytes = n
	}
}

// NewClient creates a new fetch HTTP client.
func NewClient(opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		userAgent:   DefaultUserAgent,
		maxRetries:  3,
		baseBackoff: 500 * time.Millisecond,
		maxBytes:    DefaultMaxBytes,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Fetch downloads url, retrying network errors, 5xx and 429 responses with
// exponential backoff.
func (c *HTTPClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, failure.New(failure.ErrFetch, "fetch", ErrURLRequired)
	}

	body, err := c.doRequestWithRetry(ctx, url)
	if err != nil {
		kind := failure.ErrFetch
		if ctx.Err() != nil {
			kind = failure.ErrCancelled
		}
		return nil, failure.New(kind, "fetch", err).With("url", url)
	}
	return body, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		body, err := c.doRequest(ctx, url)
		if err == nil {
			return body, nil
		}

		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("fetch: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("fetch: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("fetch: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d", ErrServerError, resp.StatusCode)}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &retryableError{err: ErrRateLimited}
		}
		return nil, fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode)
	}

	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, c.maxBytes)
	}

	return body, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
