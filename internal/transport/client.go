package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"hlsget/internal/config"
	"hlsget/internal/logger"
)

const retryDelay = 100 * time.Millisecond

// FetchError is the terminal failure of a fetch after the retry budget is
// exhausted. It wraps the last attempt's error.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client issues HTTP GET requests with a fixed browser-like header profile,
// a per-request timeout and a bounded retry loop. It is safe for concurrent
// use; the underlying http.Client pools connections across workers.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
	headers    map[string]string
	timeout    time.Duration
	retries    int
}

// New creates a client from the given configuration.
func New(log logger.Logger, cfg *config.Config) *Client {
	return &Client{
		httpClient: &http.Client{},
		logger:     log,
		headers:    cfg.Headers,
		timeout:    cfg.RequestTimeout,
		retries:    cfg.Retries,
	}
}

// Fetch downloads the body at rawURL. Transient failures and non-2xx
// responses are retried up to the configured budget; the last error is
// surfaced wrapped in a *FetchError.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retries; attempt++ {
		data, err := c.attempt(ctx, rawURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		c.logger.Warnf("fetch attempt %d/%d failed for %s: %v", attempt, c.retries, rawURL, err)

		if ctx.Err() != nil {
			break
		}
		if attempt < c.retries {
			time.Sleep(retryDelay)
		}
	}

	return nil, &FetchError{URL: rawURL, Attempts: c.retries, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, rawURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("received non-2xx status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}
