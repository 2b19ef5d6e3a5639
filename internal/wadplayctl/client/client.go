// Package client provides an HTTP client for the wadplayd host API
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wrale/wrale-adplay/api/types/v1alpha1"
)

// Client talks to a running wadplayd
type Client struct {
	// baseURL is the root URL for all API requests
	baseURL *url.URL
	// httpClient is the underlying HTTP client
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTLSConfig sets custom TLS configuration
func WithTLSConfig(config *tls.Config) ClientOption {
	return func(c *Client) {
		c.httpClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: config},
			Timeout:   30 * time.Second,
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new API client
func NewClient(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host are required", baseURL)
	}
	u.Path = ""

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// doRequest performs an HTTP request against the API root
func (c *Client) doRequest(ctx context.Context, method, pathStr string, query url.Values, body interface{}) (*http.Response, error) {
	u := c.baseURL.JoinPath("/api/v1alpha1", pathStr)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	return resp, nil
}

// Status returns the serialized status of the current cycle
func (c *Client) Status(ctx context.Context) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/status", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := handleResponse(resp); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("error reading status: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Trigger sends the display trigger
func (c *Client) Trigger(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/trigger", nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return handleResponse(resp)
}

// StartCycle starts a cycle. screenID, when set, is passed as the launch
// query override under param.
func (c *Client) StartCycle(ctx context.Context, param, screenID string) (*v1alpha1.CycleStarted, error) {
	query := url.Values{}
	if screenID != "" {
		query.Set(param, screenID)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/cycles", query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var started v1alpha1.CycleStarted
	if err := decodeResponse(resp, &started); err != nil {
		return nil, err
	}
	return &started, nil
}

// ListCycles returns up to limit journal records, newest first
func (c *Client) ListCycles(ctx context.Context, limit int) ([]v1alpha1.CycleRecord, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/cycles", query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list v1alpha1.CycleRecordList
	if err := decodeResponse(resp, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// SetIdentity replaces the host identity properties
func (c *Client) SetIdentity(ctx context.Context, props v1alpha1.IdentityProperties) error {
	resp, err := c.doRequest(ctx, http.MethodPut, "/identity", nil, props)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return handleResponse(resp)
}

// GetIdentity returns the host identity properties
func (c *Client) GetIdentity(ctx context.Context) (*v1alpha1.IdentityProperties, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/identity", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var props v1alpha1.IdentityProperties
	if err := decodeResponse(resp, &props); err != nil {
		return nil, err
	}
	return &props, nil
}
