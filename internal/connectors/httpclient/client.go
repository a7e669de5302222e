// Package httpclient is the shared HTTP layer for API-backed connectors:
// bearer auth, dual-strategy rate limiting and bounded retries with
// exponential backoff.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/artdig/artdig/internal/logger"
)

const (
	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the retry budget for retryable failures.
	DefaultMaxRetries = 3

	// maxErrorBody caps how much of an error response body is read into the
	// error message.
	maxErrorBody = 512

	userAgent = "artdig/1.0"
)

// Options configure a Client.
type Options struct {
	// Token is an optional bearer token.
	Token string

	// RateLimit is the proactive throttle in requests per second.
	// Zero means DefaultRate.
	RateLimit float64

	// MaxRetries overrides DefaultMaxRetries when positive.
	MaxRetries int

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration
}

// Client wraps http.Client with rate limiting and retries.
type Client struct {
	http       *http.Client
	limiter    *RateLimiter
	maxRetries int
}

// New creates a client. When a token is configured, requests are
// authenticated via an oauth2 static token source.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	httpClient := &http.Client{Timeout: timeout}
	if opts.Token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(
			context.WithValue(context.Background(), oauth2.HTTPClient, httpClient), src)
		httpClient.Timeout = timeout
	}

	return &Client{
		http:       httpClient,
		limiter:    NewRateLimiter(opts.RateLimit),
		maxRetries: maxRetries,
	}
}

// Limiter exposes the rate limiter for connectors that inspect quota state.
func (c *Client) Limiter() *RateLimiter {
	return c.limiter
}

// Get fetches a URL and returns the response body. Retryable failures
// (5xx, 429, transport errors) are retried with exponential backoff up to
// the retry budget; 4xx responses fail immediately as *APIError.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			logger.Debug("Retrying %s in %s (attempt %d/%d)", url, backoff, attempt, c.maxRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := c.get(ctx, url, headers)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		if !retryableRequest(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

// PostJSON sends a JSON body and decodes the JSON response into out, with
// the same retry classification as Get.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			logger.Debug("Retrying %s in %s (attempt %d/%d)", url, backoff, attempt, c.maxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		respBody, err := c.post(ctx, url, headers, body)
		if err == nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decoding response from %s: %w", url, err)
			}
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return err
		}
		if !retryableRequest(err) {
			return err
		}
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}

func (c *Client) post(ctx context.Context, url string, headers map[string]string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if err := c.limiter.CheckRateLimit(resp); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			URL:        url,
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return respBody, nil
}

// GetJSON fetches a URL and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", url, err)
	}
	defer resp.Body.Close()

	if err := c.limiter.CheckRateLimit(resp); err != nil {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
			URL:        url,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, nil
}

// retryableRequest treats transport errors as retryable alongside the
// status-based classification.
func retryableRequest(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	// Rate limits and transport-level failures (connection reset, timeout)
	// are worth another attempt.
	return true
}
