// Package exchange provides the typed REST client for the ad exchange
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	werrors "github.com/wrale/wrale-adplay/internal/wadplayd/errors"
	"github.com/wrale/wrale-adplay/internal/wadplayd/metrics"
)

// maxBodyBytes bounds how much of an exchange response is read
const maxBodyBytes = 4 << 20

// Client provides the three exchange calls used by an ad cycle
type Client struct {
	// baseURL is the root URL for all API requests
	baseURL *url.URL
	// httpClient is the underlying HTTP client
	httpClient *http.Client
	// token is the bearer credential; it is never logged
	token string
	// timeout bounds each individual attempt
	timeout time.Duration
	retry   RetryPolicy
	logger  zerolog.Logger
	metrics *metrics.Metrics
	// wait sleeps between attempts; replaced in tests
	wait func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithToken sets the bearer credential
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the hard timeout applied to every attempt
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithRetryPolicy sets the retry budget and backoff
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "exchange").Logger()
	}
}

// WithMetrics records attempts and retries
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new exchange client
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL: %q", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		timeout:    5 * time.Second,
		retry:      DefaultRetryPolicy(),
		logger:     zerolog.Nop(),
		wait:       sleepContext,
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// response is a fully read exchange answer that was not retried away
type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// reason extracts a human-readable reason from an error body
func (r *response) reason() string {
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(r.body, &apiErr); err == nil {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		if apiErr.Error != "" {
			return apiErr.Error
		}
	}
	return http.StatusText(r.status)
}

// doRequest performs an exchange call applying the timeout and retry policy.
// 5xx answers and transport failures are retried; any other answer is
// returned to the caller for interpretation. Only an exhausted retry budget
// or a cancelled context produce an error.
func (c *Client) doRequest(ctx context.Context, op, method, pathStr string, query url.Values, body interface{}) (*response, error) {
	// pathStr is already escaped; JoinPath keeps encoded segments intact
	u := c.baseURL.JoinPath(pathStr)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error encoding request body: %w", err)
		}
	}

	attempts := c.retry.attempts()
	requestID := uuid.NewString()
	var lastErr error

	for attempt := 1; ; attempt++ {
		resp, err := c.attempt(ctx, op, method, u.String(), requestID, payload, attempt)
		if err == nil && resp.status < 500 {
			return resp, nil
		}

		if err != nil {
			lastErr = err
			if ctx.Err() != nil || !werrors.IsRetryable(err) {
				// The caller gave up, or the request could not be built
				return nil, lastErr
			}
		} else {
			lastErr = werrors.NewError(
				"SERVER_FAILURE",
				fmt.Sprintf("exchange answered %d after %d attempt(s): %s", resp.status, attempt, resp.reason()),
				"exchange."+op,
				werrors.ErrServer,
			)
		}

		if attempt >= attempts {
			c.logger.Error().
				Err(lastErr).
				Str("op", op).
				Str("requestId", requestID).
				Int("attempts", attempt).
				Msg("exchange call failed")
			return nil, lastErr
		}

		delay := c.retry.backoff(attempt)
		c.logger.Warn().
			Err(lastErr).
			Str("op", op).
			Str("requestId", requestID).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Dur("delay", delay).
			Msg("retrying exchange call")
		c.metrics.IncExchangeRetry(op)

		if err := c.wait(ctx, delay); err != nil {
			return nil, werrors.NewError("TRANSPORT_FAILURE", "cancelled during backoff", "exchange."+op,
				fmt.Errorf("%w: %v", werrors.ErrTransport, err))
		}
	}
}

// attempt performs a single HTTP exchange bounded by the per-call timeout
func (c *Client) attempt(ctx context.Context, op, method, target, requestID string, payload []byte, n int) (*response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json, application/xml;q=0.9")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveExchange(op, 0)
		return nil, werrors.NewError("TRANSPORT_FAILURE", "exchange unreachable", "exchange."+op,
			fmt.Errorf("%w: %v", werrors.ErrTransport, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.ObserveExchange(op, 0)
		return nil, werrors.NewError("TRANSPORT_FAILURE", "error reading exchange response", "exchange."+op,
			fmt.Errorf("%w: %v", werrors.ErrTransport, err))
	}

	c.metrics.ObserveExchange(op, resp.StatusCode)
	c.logger.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", req.URL.Path).
		Str("requestId", requestID).
		Int("attempt", n).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("exchange call")

	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
