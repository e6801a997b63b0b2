package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/shopmon/internal/api/handlers"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(_ context.Context) error {
	return f.err
}

func doProbe(t *testing.T, h func(echo.Context) error, path string) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := handlers.NewHealthHandler(fakePinger{})
	rec := doProbe(t, h.Healthz, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		store      handlers.Pinger
		probes     []handlers.ReadinessProbe
		wantStatus int
		wantBody   string
	}{
		{
			name:       "all healthy",
			store:      fakePinger{},
			wantStatus: http.StatusOK,
			wantBody:   `"ready"`,
		},
		{
			name:       "store unreachable",
			store:      fakePinger{err: errors.New("connection refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "store: connection refused",
		},
		{
			name:  "proxy probe failing",
			store: fakePinger{},
			probes: []handlers.ReadinessProbe{
				{
					Name:  "proxy[my-shop]",
					Check: func(_ context.Context) error { return errors.New("proxy health check: 503") },
				},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "proxy[my-shop]",
		},
		{
			name:       "nil store is skipped",
			store:      nil,
			wantStatus: http.StatusOK,
			wantBody:   `"ready"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := handlers.NewHealthHandler(tt.store, tt.probes...)
			rec := doProbe(t, h.Readyz, "/readyz")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
