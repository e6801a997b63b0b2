// Package client provides a thin HTTP client for the shopmon API, used by
// the CLI commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/donaldgifford/shopmon/internal/coordinator"
)

// Client is a thin HTTP client for the shopmon API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new API client targeting the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// ConnectionsResponse is the body of GET /api/v1/connections.
type ConnectionsResponse struct {
	Connections []coordinator.Status `json:"connections"`
}

// ListConnections returns the status of every configured connection.
func (c *Client) ListConnections(ctx context.Context) (*ConnectionsResponse, error) {
	var out ConnectionsResponse
	if err := c.get(ctx, "/api/v1/connections", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshResponse is the body of a single-connection refresh.
type RefreshResponse struct {
	Status coordinator.Status `json:"status"`
}

// RefreshConnection triggers a refresh cycle for one connection.
func (c *Client) RefreshConnection(ctx context.Context, id string) (*RefreshResponse, error) {
	var out RefreshResponse
	if err := c.post(ctx, "/api/v1/connections/"+id+"/refresh", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshAllResponse is the body of POST /api/v1/refresh.
type RefreshAllResponse struct {
	Refreshed []string          `json:"refreshed"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// RefreshAll triggers a refresh cycle for every connection.
func (c *Client) RefreshAll(ctx context.Context) (*RefreshAllResponse, error) {
	var out RefreshAllResponse
	if err := c.post(ctx, "/api/v1/refresh", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QuotaResponse is the body of GET /api/v1/quota.
type QuotaResponse struct {
	DailyLimit int64  `json:"daily_limit"`
	DailyUsed  int64  `json:"daily_used"`
	Remaining  int64  `json:"remaining"`
	ResetAt    string `json:"reset_at"`
}

// GetQuota returns the current API quota status.
func (c *Client) GetQuota(ctx context.Context) (*QuotaResponse, error) {
	var out QuotaResponse
	if err := c.get(ctx, "/api/v1/quota", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get performs a GET request and decodes the JSON response into dst.
func (c *Client) get(ctx context.Context, path string, dst any) error {
	return c.do(ctx, http.MethodGet, path, nil, dst)
}

// post performs a POST request with a JSON body and decodes the response into dst.
func (c *Client) post(ctx context.Context, path string, body, dst any) error {
	return c.do(ctx, http.MethodPost, path, body, dst)
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isConnectionRefused(err) {
			return fmt.Errorf("API server not running at %s", c.baseURL)
		}
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("API error (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	if dst != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, dst); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

func isConnectionRefused(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connect: connection refused")
}
