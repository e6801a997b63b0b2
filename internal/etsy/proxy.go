package etsy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/donaldgifford/shopmon/internal/hmacsig"
	"github.com/donaldgifford/shopmon/internal/metrics"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

// ProxyClient implements ShopClient against a trusted OAuth proxy using a
// shared API key plus HMAC request signing instead of OAuth. The proxy owns
// authentication against Etsy, so a 401 here is not mapped to AuthError.
type ProxyClient struct {
	baseURL     string
	signer      *hmacsig.Signer
	client      *http.Client
	rateLimiter *RateLimiter
	log         *slog.Logger

	mu     sync.Mutex
	shopID string
}

// ProxyOption configures the ProxyClient.
type ProxyOption func(*ProxyClient)

// WithProxyHTTPClient overrides the default HTTP client.
func WithProxyHTTPClient(hc *http.Client) ProxyOption {
	return func(c *ProxyClient) {
		c.client = hc
	}
}

// WithProxyRateLimiter injects a client-side rate limiter.
func WithProxyRateLimiter(r *RateLimiter) ProxyOption {
	return func(c *ProxyClient) {
		c.rateLimiter = r
	}
}

// WithProxyLogger sets a custom logger.
func WithProxyLogger(l *slog.Logger) ProxyOption {
	return func(c *ProxyClient) {
		c.log = l
	}
}

// NewProxyClient creates a proxy-mode client. shopID may be empty, in which
// case it is discovered from the proxy's shop list on first use.
func NewProxyClient(baseURL, shopID string, signer *hmacsig.Signer, opts ...ProxyOption) *ProxyClient {
	c := &ProxyClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     slog.Default(),
		shopID:  shopID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health probes the proxy's health endpoint. Used by readiness checks.
func (c *ProxyClient) Health(ctx context.Context) error {
	_, err := c.get(ctx, "/health")
	if err != nil {
		return fmt.Errorf("proxy health check: %w", err)
	}
	return nil
}

// FetchShop retrieves shop info via the proxy, discovering the shop id
// first when it was not configured.
func (c *ProxyClient) FetchShop(ctx context.Context) (*domain.ShopInfo, error) {
	shopID, err := c.resolveShopID(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, "/api/v1/shops/"+shopID)
	if err != nil {
		return nil, fmt.Errorf("fetching shop %s via proxy: %w", shopID, err)
	}
	shop, err := normalizeShopPayload(body)
	if err != nil {
		return nil, fmt.Errorf("fetching shop %s via proxy: %w", shopID, err)
	}
	return shop, nil
}

// FetchListings retrieves up to apiFetchLimit active listings plus the
// upstream total count.
func (c *ProxyClient) FetchListings(ctx context.Context) ([]domain.Listing, int, error) {
	shopID, err := c.resolveShopID(ctx)
	if err != nil {
		return nil, 0, err
	}

	path := fmt.Sprintf("/api/v1/shops/%s/listings/active?limit=%d", shopID, apiFetchLimit)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching listings for shop %s via proxy: %w", shopID, err)
	}

	var page listingsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, fmt.Errorf("parsing proxy listings response: %w", err)
	}
	return page.Results, page.Count, nil
}

// FetchTransactions retrieves recent transactions plus a count, falling
// back to the delivered count when the payload omits one.
func (c *ProxyClient) FetchTransactions(ctx context.Context) ([]domain.Transaction, int, error) {
	shopID, err := c.resolveShopID(ctx)
	if err != nil {
		return nil, 0, err
	}

	body, err := c.get(ctx, "/api/v1/shops/"+shopID+"/transactions")
	if err != nil {
		return nil, 0, fmt.Errorf("fetching transactions for shop %s via proxy: %w", shopID, err)
	}

	var page transactionsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, fmt.Errorf("parsing proxy transactions response: %w", err)
	}

	count := page.Count
	if count == 0 {
		count = len(page.Results)
	}
	return page.Results, count, nil
}

// resolveShopID returns the configured shop id or discovers it from the
// proxy's shop list (first shop wins).
func (c *ProxyClient) resolveShopID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shopID != "" {
		return c.shopID, nil
	}

	body, err := c.get(ctx, "/api/v1/shops")
	if err != nil {
		return "", fmt.Errorf("discovering shop id via proxy: %w", err)
	}

	var shops []struct {
		ShopID json.Number `json:"shop_id"`
	}
	if err := json.Unmarshal(body, &shops); err != nil {
		return "", fmt.Errorf("parsing proxy shop list: %w", err)
	}
	if len(shops) == 0 {
		return "", fmt.Errorf("no shops found via proxy")
	}

	c.shopID = shops[0].ShopID.String()
	c.log.Info("discovered shop id via proxy", "shop_id", c.shopID)
	return c.shopID, nil
}

func (c *ProxyClient) get(ctx context.Context, path string) ([]byte, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			metrics.DailyQuotaLimitHits.Inc()
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		metrics.APICallsTotal.Inc()
		metrics.DailyQuotaUsage.Set(float64(c.rateLimiter.DailyCount()))
	}

	// The signature covers the path without query parameters, matching
	// what the proxy verifies.
	signPath := path
	if i := strings.IndexByte(signPath, '?'); i >= 0 {
		signPath = signPath[:i]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating proxy request: %w", err)
	}
	for k, v := range c.signer.Headers(http.MethodGet, signPath, "") {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing proxy request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading proxy response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.log.Warn("proxy rate limit hit", "endpoint", path, "retry_after", retryAfter)
		metrics.RateLimitHitsTotal.Inc()
		return nil, &RateLimitError{RetryAfter: retryAfter, Endpoint: path}
	default:
		c.log.Error("proxy request failed", "endpoint", path, "status", resp.StatusCode)
		return nil, &APIError{Status: resp.StatusCode, Endpoint: path, Body: truncate(body, 256)}
	}
}
