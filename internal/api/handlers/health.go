// Package handlers implements HTTP handlers for the shopmon API.
package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessProbe is a named dependency check run by readyz. Proxy-mode
// connections contribute their proxy /health probe here.
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler provides health and readiness endpoints.
type HealthHandler struct {
	store  Pinger
	probes []ReadinessProbe
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(s Pinger, probes ...ReadinessProbe) *HealthHandler {
	return &HealthHandler{store: s, probes: probes}
}

// Healthz returns 200 if the process is running.
func (*HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz returns 200 if the credential store and every registered probe are
// reachable, 503 otherwise.
func (h *HealthHandler) Readyz(c echo.Context) error {
	ctx := c.Request().Context()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": "store: " + err.Error(),
			})
		}
	}

	for _, probe := range h.probes {
		if err := probe.Check(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": probe.Name + ": " + err.Error(),
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
