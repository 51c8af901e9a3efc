// Package httpx is the shared outbound HTTP layer for tools: one token
// bucket per external provider family, exponential-backoff retries for
// idempotent GETs, and bounded response bodies.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const (
	// defaultSpacing is the minimum interval between request starts within
	// one provider family.
	defaultSpacing = 100 * time.Millisecond

	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = 2 * time.Second
	retryMaxAttempts     = 3

	maxBody     = 5 << 20 // 5MB success response limit
	errMaxBody  = 1 << 20 // 1MB error response limit
	errBodyShow = 200     // max chars of error body surfaced to callers

	userAgent = "TripWise/1.0 (Travel Assistant)"
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Client is the process-wide outbound HTTP client shared by all tools.
type Client struct {
	http    *http.Client
	spacing time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Client with the default inter-call spacing.
// No client-level Timeout: request lifetime is controlled exclusively via
// the caller's context so tool deadlines and the turn deadline compose.
func New() *Client {
	return NewWithSpacing(defaultSpacing)
}

// NewWithSpacing creates a Client with a custom per-family spacing.
func NewWithSpacing(spacing time.Duration) *Client {
	if spacing <= 0 {
		spacing = defaultSpacing
	}
	return &Client{
		http:     &http.Client{},
		spacing:  spacing,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns (lazily creating) the token bucket for a provider family.
func (c *Client) limiter(family string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[family]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.spacing), 1)
		c.limiters[family] = l
	}
	return l
}

// do performs one request attempt: wait for the bucket, send, read the
// bounded body, classify non-2xx into StatusError.
func (c *Client) do(ctx context.Context, family string, req *http.Request) ([]byte, error) {
	if err := c.limiter(family).Wait(ctx); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errMaxBody))
		show := string(body)
		if len(show) > errBodyShow {
			show = show[:errBodyShow]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(show)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// GetJSON fetches url with retries and decodes the JSON response into out.
// Only GETs are retried: transient failures (5xx, network) back off
// exponentially; 4xx responses fail immediately.
func (c *Client) GetJSON(ctx context.Context, family, rawURL string, headers map[string]string, out any) error {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		data, err := c.do(ctx, family, req)
		if err != nil {
			if se, ok := err.(*StatusError); ok && se.Code < 500 {
				return nil, backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return data, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(retryMaxAttempts))
	if err != nil {
		return unwrapPermanent(err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PostJSON sends body as JSON and decodes the response into out.
// POSTs are never retried: the tools that use them are not idempotent from
// the provider's perspective (quota consumption, searches billed per call).
func (c *Client) PostJSON(ctx context.Context, family, rawURL string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	data, err := c.do(ctx, family, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PostForm sends a URL-encoded form and decodes the JSON response into out.
// Not retried, same as PostJSON.
func (c *Client) PostForm(ctx context.Context, family, rawURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	data, err := c.do(ctx, family, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// GetRaw fetches url without retries and returns the bounded raw body plus
// content type. Used by the page extractor, which decodes charsets itself.
func (c *Client) GetRaw(ctx context.Context, family, rawURL string, headers map[string]string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if err := c.limiter(family).Wait(ctx); err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{Code: resp.StatusCode, Body: resp.Status}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// unwrapPermanent strips the backoff wrapper so callers see the original
// StatusError / context error.
func unwrapPermanent(err error) error {
	var pe *backoff.PermanentError
	if errors.As(err, &pe) && pe.Unwrap() != nil {
		return pe.Unwrap()
	}
	return err
}
