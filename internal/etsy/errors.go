package etsy

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// AuthError indicates the access credential is invalid or expired and could
// not be refreshed. There is no automatic recourse at this layer; callers
// either fall back to cached data or escalate to re-authentication.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication expired: %s: %v", e.Reason, e.Err)
	}
	return "authentication expired: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError indicates the upstream rejected the call with HTTP 429.
// RetryAfter carries the server's hint when present.
type RateLimitError struct {
	RetryAfter time.Duration
	Endpoint   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf(
		"rate limit exceeded (429) on %s, retry after %s",
		e.Endpoint, e.RetryAfter,
	)
}

// APIError is any non-200 response not otherwise classified.
type APIError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d) on %s: %s", e.Status, e.Endpoint, e.Body)
}

// transientMarkers are inspected as a fallback for errors that do not carry
// one of the typed classifications above, mirroring upstream failure text.
var transientMarkers = []string{
	"rate limit",
	"429",
	"too many requests",
	"token",
	"refresh",
	"timeout",
	"deadline exceeded",
	"connection",
	"quota",
}

// IsTransient reports whether err is a failure class expected to resolve
// itself: rate limiting, token hiccups, network blips. Transient failures are
// masked with cached data rather than surfaced to dependents.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
