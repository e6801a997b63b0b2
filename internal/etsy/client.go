// Package etsy provides Etsy shop data clients abstracted behind interfaces
// for testability. Two transports exist: DirectClient talks to the Etsy v3
// API with OAuth credentials, ProxyClient talks to a trusted proxy with
// HMAC-signed requests.
package etsy

import (
	"context"

	domain "github.com/donaldgifford/shopmon/pkg/types"
)

// apiFetchLimit caps listings/transactions page size for cost control.
// This is a policy constant, not an API limit.
const apiFetchLimit = 10

// ShopClient defines the operations a refresh cycle needs from either
// transport. Counts are the upstream totals, which may differ from the
// delivered page size.
type ShopClient interface {
	FetchShop(ctx context.Context) (*domain.ShopInfo, error)
	FetchListings(ctx context.Context) ([]domain.Listing, int, error)
	FetchTransactions(ctx context.Context) ([]domain.Transaction, int, error)
}

// TokenProvider defines the interface for obtaining OAuth2 access tokens.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// listingsResponse is the common paged envelope for listings endpoints.
type listingsResponse struct {
	Count   int              `json:"count"`
	Results []domain.Listing `json:"results"`
}

// transactionsResponse is the common paged envelope for transactions
// endpoints.
type transactionsResponse struct {
	Count   int                  `json:"count"`
	Results []domain.Transaction `json:"results"`
}
