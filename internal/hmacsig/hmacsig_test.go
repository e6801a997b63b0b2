package hmacsig_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/shopmon/internal/hmacsig"
)

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestSigner_Sign_Deterministic(t *testing.T) {
	t.Parallel()

	s := hmacsig.New("key-1", "secret-1", hmacsig.WithNowFunc(fixedClock(1700000000)))

	sig1, ts1 := s.Sign("GET", "/api/v1/shops/42", "", nil)
	sig2, ts2 := s.Sign("GET", "/api/v1/shops/42", "", nil)

	assert.Equal(t, "1700000000", ts1)
	assert.Equal(t, ts1, ts2)
	assert.Equal(t, sig1, sig2)

	// The signature must match an independent HMAC computation over the
	// canonical message.
	mac := hmac.New(sha256.New, []byte("secret-1"))
	mac.Write([]byte("GET|/api/v1/shops/42|1700000000|key-1|"))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, sig1)
}

func TestSigner_Sign_InputSensitivity(t *testing.T) {
	t.Parallel()

	clock := fixedClock(1700000000)
	base := hmacsig.New("key-1", "secret-1", hmacsig.WithNowFunc(clock))
	baseSig, _ := base.Sign("GET", "/api/v1/shops/42", "", nil)

	tests := []struct {
		name string
		sign func() string
	}{
		{
			name: "different method",
			sign: func() string {
				sig, _ := base.Sign("POST", "/api/v1/shops/42", "", nil)
				return sig
			},
		},
		{
			name: "different path",
			sign: func() string {
				sig, _ := base.Sign("GET", "/api/v1/shops/43", "", nil)
				return sig
			},
		},
		{
			name: "different body",
			sign: func() string {
				sig, _ := base.Sign("GET", "/api/v1/shops/42", `{"a":1}`, nil)
				return sig
			},
		},
		{
			name: "different api key",
			sign: func() string {
				other := hmacsig.New("key-2", "secret-1", hmacsig.WithNowFunc(clock))
				sig, _ := other.Sign("GET", "/api/v1/shops/42", "", nil)
				return sig
			},
		},
		{
			name: "different secret",
			sign: func() string {
				other := hmacsig.New("key-1", "secret-2", hmacsig.WithNowFunc(clock))
				sig, _ := other.Sign("GET", "/api/v1/shops/42", "", nil)
				return sig
			},
		},
		{
			name: "different timestamp",
			sign: func() string {
				other := hmacsig.New("key-1", "secret-1", hmacsig.WithNowFunc(fixedClock(1700000001)))
				sig, _ := other.Sign("GET", "/api/v1/shops/42", "", nil)
				return sig
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotEqual(t, baseSig, tt.sign())
		})
	}
}

func TestSigner_Sign_MethodUppercased(t *testing.T) {
	t.Parallel()

	s := hmacsig.New("key-1", "secret-1", hmacsig.WithNowFunc(fixedClock(1700000000)))

	lower, _ := s.Sign("get", "/health", "", nil)
	upper, _ := s.Sign("GET", "/health", "", nil)
	assert.Equal(t, upper, lower)
}

func TestSigner_Sign_SecurityHeaders(t *testing.T) {
	t.Parallel()

	s := hmacsig.New("key-1", "secret-1", hmacsig.WithNowFunc(fixedClock(1700000000)))

	plain, _ := s.Sign("POST", "/api/v1/shops", "{}", nil)
	withHeaders, _ := s.Sign("POST", "/api/v1/shops", "{}", map[string]string{
		"Content-Type": "application/json",
	})
	assert.NotEqual(t, plain, withHeaders)

	// Non-security headers are excluded from the canonical message.
	withIgnored, _ := s.Sign("POST", "/api/v1/shops", "{}", map[string]string{
		"X-Trace-ID": "abc123",
	})
	assert.Equal(t, plain, withIgnored)
}

func TestSigner_Sign_HeaderBlockCanonicalForm(t *testing.T) {
	t.Parallel()

	s := hmacsig.New("key-1", "secret-1", hmacsig.WithNowFunc(fixedClock(1700000000)))

	sig, _ := s.Sign("POST", "/api/v1/shops", `{"a":1}`, map[string]string{
		"Content-Type": "application/json",
		"Host":         "proxy.local",
	})

	// The header block is serialized with sorted keys, ", " between pairs,
	// and ": " between key and value; the proxy's verifier rebuilds exactly
	// this string, so the separators are load-bearing.
	mac := hmac.New(sha256.New, []byte("secret-1"))
	mac.Write([]byte(`POST|/api/v1/shops|1700000000|key-1|{"a":1}|` +
		`{"Content-Type": "application/json", "Host": "proxy.local"}`))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, sig)
}

func TestSigner_Headers(t *testing.T) {
	t.Parallel()

	s := hmacsig.New("my-api-key", "secret", hmacsig.WithNowFunc(fixedClock(1700000000)))

	headers := s.Headers("GET", "/api/v1/shops/7", "")

	assert.Equal(t, "Bearer my-api-key", headers["Authorization"])
	assert.Equal(t, "application/json", headers["Accept"])
	assert.Equal(t, "1700000000", headers[hmacsig.HeaderTimestamp])

	sig := headers[hmacsig.HeaderSignature]
	require.NotEmpty(t, sig)
	decoded, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	assert.Len(t, decoded, sha256.Size)
}

func TestSigner_Concurrent(t *testing.T) {
	t.Parallel()

	s := hmacsig.New("key-1", "secret-1", hmacsig.WithNowFunc(fixedClock(1700000000)))

	const goroutines = 16
	results := make(chan string, goroutines)

	for range goroutines {
		go func() {
			sig, _ := s.Sign("GET", "/api/v1/shops", "", nil)
			results <- sig
		}()
	}

	first := <-results
	for range goroutines - 1 {
		assert.Equal(t, first, <-results)
	}
	assert.False(t, strings.ContainsAny(first, "|"), "signature must be base64")
}
