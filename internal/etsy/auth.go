package etsy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/donaldgifford/shopmon/internal/metrics"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

const (
	defaultTokenURL = "https://api.etsy.com/v3/public/oauth/token" //nolint:gosec // not a credential
	refreshBuffer   = 60 * time.Second
)

// CredentialSaver persists a refreshed credential back into the owning
// configuration record. The store is expected to serialize concurrent
// writes for a given connection; the provider itself writes sequentially.
type CredentialSaver interface {
	SaveCredential(ctx context.Context, connectionID string, cred domain.Credential) error
}

// RefreshTokenProvider implements TokenProvider for direct-mode connections
// using the OAuth2 refresh_token grant. The current credential is refreshed
// proactively once within 60 seconds of expiry, not only after a failure.
// Refresh is never retried here: a refresh that fails with the same
// credential will keep failing, so the failure escalates to the caller.
type RefreshTokenProvider struct {
	connectionID string
	clientID     string
	clientSecret string
	tokenURL     string
	client       *http.Client
	saver        CredentialSaver
	log          *slog.Logger

	mu      sync.Mutex
	cred    domain.Credential
	nowFunc func() time.Time
}

// AuthOption configures the RefreshTokenProvider.
type AuthOption func(*RefreshTokenProvider)

// WithTokenURL overrides the default Etsy token endpoint.
func WithTokenURL(u string) AuthOption {
	return func(p *RefreshTokenProvider) {
		p.tokenURL = u
	}
}

// WithAuthHTTPClient overrides the default HTTP client.
func WithAuthHTTPClient(c *http.Client) AuthOption {
	return func(p *RefreshTokenProvider) {
		p.client = c
	}
}

// WithAuthLogger sets a custom logger.
func WithAuthLogger(l *slog.Logger) AuthOption {
	return func(p *RefreshTokenProvider) {
		p.log = l
	}
}

// WithAuthNowFunc overrides the time function for testing.
func WithAuthNowFunc(f func() time.Time) AuthOption {
	return func(p *RefreshTokenProvider) {
		p.nowFunc = f
	}
}

// NewRefreshTokenProvider creates a token provider seeded with the stored
// credential for a connection. Refreshed credentials are persisted through
// the saver.
func NewRefreshTokenProvider(
	connectionID, clientID, clientSecret string,
	cred domain.Credential,
	saver CredentialSaver,
	opts ...AuthOption,
) *RefreshTokenProvider {
	p := &RefreshTokenProvider{
		connectionID: connectionID,
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     defaultTokenURL,
		client:       &http.Client{Timeout: 10 * time.Second},
		saver:        saver,
		log:          slog.Default(),
		cred:         cred,
		nowFunc:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Token returns a valid access token, refreshing proactively when the
// stored credential is within the expiry buffer.
func (p *RefreshTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cred.AccessToken != "" && !p.cred.ExpiresWithin(p.nowFunc(), refreshBuffer) {
		return p.cred.AccessToken, nil
	}

	return p.refreshLocked(ctx)
}

// Credential returns a copy of the current credential.
func (p *RefreshTokenProvider) Credential() domain.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cred
}

func (p *RefreshTokenProvider) refreshLocked(ctx context.Context) (string, error) {
	token, err := p.doRefreshLocked(ctx)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
		return "", err
	}
	metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
	return token, nil
}

func (p *RefreshTokenProvider) doRefreshLocked(ctx context.Context) (string, error) {
	if p.cred.RefreshToken == "" {
		return "", &AuthError{Reason: "no refresh token available"}
	}
	if p.clientID == "" || p.clientSecret == "" {
		return "", &AuthError{Reason: "missing client credentials for token refresh"}
	}

	p.log.Info("refreshing access token",
		"connection_id", p.connectionID,
		"expires_at", p.cred.ExpiresAt,
	)

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"refresh_token": {p.cred.RefreshToken},
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.tokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &AuthError{Reason: "token refresh request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Reason: "reading refresh response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{
			Reason: fmt.Sprintf("token refresh failed (status %d)", resp.StatusCode),
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	var refreshed refreshResponse
	if err := json.Unmarshal(body, &refreshed); err != nil {
		return "", &AuthError{Reason: "parsing refresh response", Err: err}
	}
	if refreshed.AccessToken == "" {
		return "", &AuthError{Reason: "refresh response missing access token"}
	}

	expiresIn := refreshed.ExpiresIn
	if expiresIn == 0 {
		expiresIn = 3600
	}

	cred := domain.Credential{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		ExpiresAt:    p.nowFunc().Add(time.Duration(expiresIn) * time.Second),
	}
	if cred.RefreshToken == "" {
		// Etsy rotates refresh tokens, but keep the old one if the
		// response omits a new one.
		cred.RefreshToken = p.cred.RefreshToken
	}
	p.cred = cred

	if p.saver != nil {
		if err := p.saver.SaveCredential(ctx, p.connectionID, cred); err != nil {
			// The in-memory credential is still valid; losing the write
			// costs one extra refresh after restart.
			p.log.Error("persisting refreshed credential failed",
				"connection_id", p.connectionID,
				"error", err,
			)
		}
	}

	p.log.Info("access token refreshed",
		"connection_id", p.connectionID,
		"expires_at", cred.ExpiresAt,
	)

	return cred.AccessToken, nil
}
