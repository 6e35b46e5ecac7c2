// Package netclient is a small JSON-over-HTTP client with retry.
//
// Only transport failures (connection refused, reset, timeouts) are retried,
// with exponential backoff and no jitter. A response with a non-2xx status or
// a body that cannot be decoded is final: retrying would get the same answer.
package netclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// maxErrorBody caps how much of a failed response is kept on the error.
const maxErrorBody = 4 << 10

// Config holds configuration for the client.
type Config struct {
	// MaxRetries is the total number of attempts per request
	MaxRetries int

	// FirstDelay is the wait after the first failed attempt.
	// Attempt n waits FirstDelay * 2^(n-1).
	FirstDelay time.Duration

	// MaxDelay caps a single wait (0 = FirstDelay * 2^MaxRetries)
	MaxDelay time.Duration

	// Timeout bounds one attempt, not the whole retry loop (0 = none)
	Timeout time.Duration

	// UserAgent is sent with every request when set
	UserAgent string

	// HTTPClient overrides the transport (nil = a client with Timeout)
	HTTPClient *http.Client

	// Logger receives retry notices (nil = discard)
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		FirstDelay: 2 * time.Second,
		Timeout:    30 * time.Second,
		UserAgent:  "emtodo",
	}
}

// Client performs JSON requests.
type Client struct {
	http   *http.Client
	config Config
	logger *slog.Logger
}

// New creates a client. Zero MaxRetries and FirstDelay take their defaults.
func New(config Config) *Client {
	defaults := DefaultConfig()
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.FirstDelay <= 0 {
		config.FirstDelay = defaults.FirstDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = config.FirstDelay << config.MaxRetries
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		http:   httpClient,
		config: config,
		logger: logger,
	}
}

// Endpoint describes one request target.
type Endpoint struct {
	Method string
	URL    string
	Header http.Header
	Query  url.Values
}

// GetJSON fetches rawURL and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out interface{}) error {
	return c.Do(ctx, Endpoint{Method: http.MethodGet, URL: rawURL}, nil, out)
}

// Do sends body (JSON-encoded, nil = no body) to the endpoint and decodes the
// response into out (nil = discard). Transport errors are retried.
func (c *Client) Do(ctx context.Context, ep Endpoint, body, out interface{}) error {
	if ep.Method == "" {
		ep.Method = http.MethodGet
	}

	target, err := ep.resolve()
	if err != nil {
		return &Error{Kind: KindEncode, Method: ep.Method, URL: ep.URL, Err: err}
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindEncode, Method: ep.Method, URL: target, Err: err}
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.FirstDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.config.MaxDelay

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.attempt(ctx, ep, target, payload, out)
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.config.MaxRetries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("request failed, retrying",
				"method", ep.Method, "url", target,
				"attempt", attempt, "max", c.config.MaxRetries,
				"wait", wait, "error", err)
		}),
	)
	if err == nil {
		return nil
	}

	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr
	}
	// Cancellation while waiting between attempts surfaces as the bare
	// context error.
	return &Error{Kind: KindCanceled, Method: ep.Method, URL: target, Err: err}
}

func (c *Client) attempt(ctx context.Context, ep Endpoint, target string, payload []byte, out interface{}) error {
	if ctx.Err() != nil {
		return &Error{Kind: KindCanceled, Method: ep.Method, URL: target, Err: context.Cause(ctx)}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, target, reader)
	if err != nil {
		return &Error{Kind: KindEncode, Method: ep.Method, URL: target, Err: err}
	}
	for key, values := range ep.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return &Error{Kind: KindCanceled, Method: ep.Method, URL: target, Err: context.Cause(ctx)}
		}
		return &Error{Kind: KindTransport, Method: ep.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{
			Kind:       KindStatus,
			Method:     ep.Method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return &Error{Kind: KindCanceled, Method: ep.Method, URL: target, Err: context.Cause(ctx)}
		}
		return &Error{Kind: KindDecode, Method: ep.Method, URL: target, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// resolve merges Query into URL.
func (ep Endpoint) resolve() (string, error) {
	u, err := url.Parse(ep.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ep.URL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q: scheme and host are required", ep.URL)
	}
	if len(ep.Query) > 0 {
		q := u.Query()
		for key, values := range ep.Query {
			q.Del(key)
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
