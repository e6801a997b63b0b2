package etsy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/donaldgifford/shopmon/internal/metrics"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

const defaultAPIBaseURL = "https://openapi.etsy.com/v3/application"

// DirectClient implements ShopClient against the Etsy v3 API using OAuth
// bearer tokens plus the client id as x-api-key.
type DirectClient struct {
	shopID      string
	apiKey      string
	tokens      TokenProvider
	baseURL     string
	client      *http.Client
	rateLimiter *RateLimiter
	log         *slog.Logger
}

// DirectOption configures the DirectClient.
type DirectOption func(*DirectClient)

// WithBaseURL overrides the default Etsy API base URL.
func WithBaseURL(u string) DirectOption {
	return func(c *DirectClient) {
		c.baseURL = u
	}
}

// WithDirectHTTPClient overrides the default HTTP client.
func WithDirectHTTPClient(hc *http.Client) DirectOption {
	return func(c *DirectClient) {
		c.client = hc
	}
}

// WithDirectRateLimiter injects a client-side rate limiter. When set, every
// fetch goes through Wait() first.
func WithDirectRateLimiter(r *RateLimiter) DirectOption {
	return func(c *DirectClient) {
		c.rateLimiter = r
	}
}

// WithDirectLogger sets a custom logger.
func WithDirectLogger(l *slog.Logger) DirectOption {
	return func(c *DirectClient) {
		c.log = l
	}
}

// NewDirectClient creates a direct-mode Etsy API client for one shop.
func NewDirectClient(shopID, apiKey string, tokens TokenProvider, opts ...DirectOption) *DirectClient {
	c := &DirectClient{
		shopID:  shopID,
		apiKey:  apiKey,
		tokens:  tokens,
		baseURL: defaultAPIBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchShop retrieves shop info, normalizing the payload shape.
func (c *DirectClient) FetchShop(ctx context.Context) (*domain.ShopInfo, error) {
	body, err := c.get(ctx, "/shops/"+c.shopID)
	if err != nil {
		return nil, fmt.Errorf("fetching shop %s: %w", c.shopID, err)
	}
	shop, err := normalizeShopPayload(body)
	if err != nil {
		return nil, fmt.Errorf("fetching shop %s: %w", c.shopID, err)
	}
	return shop, nil
}

// FetchListings retrieves up to apiFetchLimit active listings plus the
// upstream total count.
func (c *DirectClient) FetchListings(ctx context.Context) ([]domain.Listing, int, error) {
	path := fmt.Sprintf("/shops/%s/listings/active?limit=%d", c.shopID, apiFetchLimit)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching listings for shop %s: %w", c.shopID, err)
	}

	var page listingsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, fmt.Errorf("parsing listings response: %w", err)
	}
	return page.Results, page.Count, nil
}

// FetchTransactions retrieves up to apiFetchLimit recent transactions plus
// the upstream total count. A payload without a count falls back to the
// delivered transaction count.
func (c *DirectClient) FetchTransactions(ctx context.Context) ([]domain.Transaction, int, error) {
	path := fmt.Sprintf("/shops/%s/transactions?limit=%d", c.shopID, apiFetchLimit)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching transactions for shop %s: %w", c.shopID, err)
	}

	var page transactionsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, fmt.Errorf("parsing transactions response: %w", err)
	}

	count := page.Count
	if count == 0 {
		count = len(page.Results)
	}
	return page.Results, count, nil
}

func (c *DirectClient) get(ctx context.Context, path string) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			metrics.DailyQuotaLimitHits.Inc()
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		metrics.APICallsTotal.Inc()
		metrics.DailyQuotaUsage.Set(float64(c.rateLimiter.DailyCount()))
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting auth token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if err := c.classify(resp, body, path); err != nil {
		return nil, err
	}
	return body, nil
}

// classify maps response statuses onto the error taxonomy. Only the direct
// transport maps 401 to an auth failure; the proxy gates its own auth.
func (c *DirectClient) classify(resp *http.Response, body []byte, path string) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		c.log.Error("authentication failed",
			"shop_id", c.shopID,
			"endpoint", path,
		)
		return &AuthError{Reason: "API returned 401 for shop " + c.shopID}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.log.Warn("rate limit hit",
			"shop_id", c.shopID,
			"endpoint", path,
			"retry_after", retryAfter,
		)
		metrics.RateLimitHitsTotal.Inc()
		return &RateLimitError{RetryAfter: retryAfter, Endpoint: path}
	default:
		c.log.Error("API request failed",
			"shop_id", c.shopID,
			"endpoint", path,
			"status", resp.StatusCode,
		)
		return &APIError{Status: resp.StatusCode, Endpoint: path, Body: truncate(body, 256)}
	}
}

// parseRetryAfter interprets a Retry-After header in seconds, defaulting to
// 60 when absent or malformed.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 60 * time.Second
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 60 * time.Second
	}
	return time.Duration(secs) * time.Second
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
