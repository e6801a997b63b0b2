// Package hmacsig signs proxy requests with HMAC-SHA256 over a canonical
// request representation. Signatures are single-use in principle because the
// current Unix timestamp is part of the signed message; enforcing an expiry
// window is the proxy's responsibility.
package hmacsig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Header names used by the trusted proxy.
const (
	HeaderSignature = "X-HA-Signature"
	HeaderTimestamp = "X-HA-Timestamp"
)

// securityHeaders are the only request headers included in the canonical
// message when present.
var securityHeaders = map[string]bool{
	"content-type":   true,
	"content-length": true,
	"host":           true,
}

// Signer computes request signatures with a shared secret. It holds no
// mutable state and is safe for concurrent use.
type Signer struct {
	apiKey  string
	secret  []byte
	nowFunc func() time.Time
}

// Option configures the Signer.
type Option func(*Signer)

// WithNowFunc overrides the time function for testing.
func WithNowFunc(f func() time.Time) Option {
	return func(s *Signer) {
		s.nowFunc = f
	}
}

// New creates a Signer for the given API key and shared secret.
func New(apiKey, secret string, opts ...Option) *Signer {
	s := &Signer{
		apiKey:  apiKey,
		secret:  []byte(secret),
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign computes the HMAC-SHA256 signature for a request. The canonical
// message is METHOD|PATH|TIMESTAMP|API_KEY|BODY, optionally followed by a
// JSON object of the sorted security-relevant headers. It returns the
// base64-encoded signature and the Unix timestamp that was signed.
func (s *Signer) Sign(method, path, body string, headers map[string]string) (string, string) {
	timestamp := strconv.FormatInt(s.nowFunc().Unix(), 10)

	parts := []string{
		strings.ToUpper(method),
		path,
		timestamp,
		s.apiKey,
		body,
	}

	if encoded := canonicalHeaders(headers); encoded != "" {
		parts = append(parts, encoded)
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.Join(parts, "|")))

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), timestamp
}

// Headers returns the full signed header set for a proxy request.
func (s *Signer) Headers(method, path, body string) map[string]string {
	signature, timestamp := s.Sign(method, path, body, nil)

	return map[string]string{
		"Authorization": "Bearer " + s.apiKey,
		"Accept":        "application/json",
		HeaderSignature: signature,
		HeaderTimestamp: timestamp,
	}
}

// canonicalHeaders encodes the security-relevant subset of headers as a JSON
// object with sorted keys, or returns "" when none apply. The proxy verifier
// reproduces this block with ", " between pairs and ": " between key and
// value, so those exact separators are part of the signed message.
func canonicalHeaders(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}

	keys := make([]string, 0, len(headers))
	filtered := make(map[string]string, len(headers))
	for k, v := range headers {
		if securityHeaders[strings.ToLower(k)] {
			keys = append(keys, k)
			filtered[k] = v
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(filtered[k])
		b.Write(kb)
		b.WriteString(": ")
		b.Write(vb)
	}
	b.WriteByte('}')

	return b.String()
}
