package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/donaldgifford/shopmon/internal/coordinator"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

// SnapshotHandler serves the last published snapshot for a connection.
type SnapshotHandler struct {
	manager *coordinator.Manager
	options func() domain.Options
}

// NewSnapshotHandler creates a new SnapshotHandler. The options func supplies
// the current display limits, applied at read time.
func NewSnapshotHandler(m *coordinator.Manager, options func() domain.Options) *SnapshotHandler {
	if options == nil {
		options = func() domain.Options { return domain.DefaultOptions() }
	}
	return &SnapshotHandler{manager: m, options: options}
}

// GetSnapshotInput identifies the connection.
type GetSnapshotInput struct {
	ID string `path:"id" example:"my-shop" doc:"Connection id"`
}

// GetSnapshotOutput is the response body for the snapshot endpoint.
type GetSnapshotOutput struct {
	Body struct {
		Snapshot          *domain.Snapshot `json:"snapshot" doc:"Last published snapshot, trimmed to the display limits"`
		ListingsTotal     int              `json:"listings_total"     doc:"Total active listings upstream"`
		TransactionsTotal int              `json:"transactions_total" doc:"Total transactions upstream"`
	}
}

// GetSnapshot returns the connection's snapshot with display limits applied.
// The stored snapshot itself is immutable; the trim happens on a copy.
func (h *SnapshotHandler) GetSnapshot(_ context.Context, in *GetSnapshotInput) (*GetSnapshotOutput, error) {
	c, ok := h.manager.Get(in.ID)
	if !ok {
		return nil, huma.Error404NotFound("unknown connection: " + in.ID)
	}

	snap := c.Snapshot()
	if snap == nil {
		return nil, huma.Error404NotFound("no snapshot yet for connection: " + in.ID)
	}

	opts := h.options()
	trimmed := *snap
	trimmed.Listings = limit(snap.Listings, opts.ListingsDisplayLimit)
	trimmed.Transactions = limit(snap.Transactions, opts.TransactionsDisplayLimit)

	resp := &GetSnapshotOutput{}
	resp.Body.Snapshot = &trimmed
	resp.Body.ListingsTotal = snap.ListingsCount
	resp.Body.TransactionsTotal = snap.TransactionsCount
	return resp, nil
}

func limit[T any](items []T, n int) []T {
	if n <= 0 || len(items) <= n {
		return items
	}
	return items[:n]
}

// RegisterSnapshotRoutes registers the snapshot endpoint with the Huma API.
func RegisterSnapshotRoutes(api huma.API, h *SnapshotHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/api/v1/connections/{id}/snapshot",
		Summary:     "Get the latest shop snapshot",
		Description: "Returns the last published snapshot for a connection, " +
			"with listings and transactions trimmed to the configured display limits.",
		Tags:   []string{"connections"},
		Errors: []int{http.StatusNotFound},
	}, h.GetSnapshot)
}
