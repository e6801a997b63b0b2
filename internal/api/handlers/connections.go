package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/donaldgifford/shopmon/internal/coordinator"
)

// ConnectionsHandler serves connection listings and refresh triggers.
type ConnectionsHandler struct {
	manager *coordinator.Manager
}

// NewConnectionsHandler creates a new ConnectionsHandler.
func NewConnectionsHandler(m *coordinator.Manager) *ConnectionsHandler {
	return &ConnectionsHandler{manager: m}
}

// ListConnectionsOutput is the response body for the connection list.
type ListConnectionsOutput struct {
	Body struct {
		Connections []coordinator.Status `json:"connections" doc:"Status of every configured connection"`
	}
}

// ListConnections returns the status of every configured connection.
func (h *ConnectionsHandler) ListConnections(_ context.Context, _ *struct{}) (*ListConnectionsOutput, error) {
	resp := &ListConnectionsOutput{}
	resp.Body.Connections = h.manager.Statuses()
	return resp, nil
}

// RefreshConnectionInput identifies the connection to refresh.
type RefreshConnectionInput struct {
	ID string `path:"id" example:"my-shop" doc:"Connection id"`
}

// RefreshOutput is the response body for refresh triggers.
type RefreshOutput struct {
	Body struct {
		Status coordinator.Status `json:"status" doc:"Connection status after the refresh cycle"`
	}
}

// RefreshConnection runs one refresh cycle for a single connection. When a
// cycle is already in flight the request joins it.
func (h *ConnectionsHandler) RefreshConnection(ctx context.Context, in *RefreshConnectionInput) (*RefreshOutput, error) {
	c, ok := h.manager.Get(in.ID)
	if !ok {
		return nil, huma.Error404NotFound("unknown connection: " + in.ID)
	}

	if err := c.Refresh(ctx); err != nil {
		return nil, huma.Error502BadGateway("refresh failed: " + err.Error())
	}

	resp := &RefreshOutput{}
	resp.Body.Status = c.Status()
	return resp, nil
}

// RefreshAllOutput is the response body for the refresh-all trigger.
type RefreshAllOutput struct {
	Body struct {
		Refreshed []string          `json:"refreshed" doc:"Connections that completed successfully"`
		Failed    map[string]string `json:"failed,omitempty" doc:"Connections that failed, with the error"`
	}
}

// RefreshAll refreshes every connection concurrently and reports the
// per-connection outcome.
func (h *ConnectionsHandler) RefreshAll(ctx context.Context, _ *struct{}) (*RefreshAllOutput, error) {
	errs := h.manager.RefreshAll(ctx)

	resp := &RefreshAllOutput{}
	for _, id := range h.manager.IDs() {
		if err, failed := errs[id]; failed {
			if resp.Body.Failed == nil {
				resp.Body.Failed = make(map[string]string)
			}
			resp.Body.Failed[id] = err.Error()
			continue
		}
		resp.Body.Refreshed = append(resp.Body.Refreshed, id)
	}
	return resp, nil
}

// RegisterConnectionRoutes registers connection endpoints with the Huma API.
func RegisterConnectionRoutes(api huma.API, h *ConnectionsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-connections",
		Method:      http.MethodGet,
		Path:        "/api/v1/connections",
		Summary:     "List shop connections",
		Description: "Returns the refresh status of every configured shop connection.",
		Tags:        []string{"connections"},
	}, h.ListConnections)

	huma.Register(api, huma.Operation{
		OperationID: "refresh-connection",
		Method:      http.MethodPost,
		Path:        "/api/v1/connections/{id}/refresh",
		Summary:     "Refresh one connection",
		Description: "Runs one refresh cycle for the connection, joining any cycle already in flight.",
		Tags:        []string{"connections"},
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, h.RefreshConnection)

	huma.Register(api, huma.Operation{
		OperationID: "refresh-all",
		Method:      http.MethodPost,
		Path:        "/api/v1/refresh",
		Summary:     "Refresh all connections",
		Description: "Runs one refresh cycle for every configured connection.",
		Tags:        []string{"connections"},
	}, h.RefreshAll)
}
