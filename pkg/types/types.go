// Package domain defines the core business types for shopmon.
package domain

import (
	"time"
)

// ConnectionMode selects how a shop connection reaches the Etsy API.
type ConnectionMode string

// Connection mode constants.
const (
	ModeDirect ConnectionMode = "direct"
	ModeProxy  ConnectionMode = "proxy"
)

// Money is the Etsy v3 money representation: an integer amount scaled by a
// divisor, e.g. {amount: 1250, divisor: 100} == 12.50.
type Money struct {
	Amount       int64  `json:"amount"`
	Divisor      int    `json:"divisor"`
	CurrencyCode string `json:"currency_code"`
}

// Value returns the decimal value of the money amount.
func (m Money) Value() float64 {
	if m.Divisor == 0 {
		return float64(m.Amount)
	}
	return float64(m.Amount) / float64(m.Divisor)
}

// ShopInfo holds the shop-level fields published in a snapshot.
type ShopInfo struct {
	ShopID               int64   `json:"shop_id"`
	ShopName             string  `json:"shop_name"`
	Title                string  `json:"title,omitempty"`
	CurrencyCode         string  `json:"currency_code"`
	ListingActiveCount   int     `json:"listing_active_count"`
	DigitalListingCount  int     `json:"digital_listing_count"`
	TransactionSoldCount int     `json:"transaction_sold_count"`
	ReviewCount          int     `json:"review_count"`
	ReviewAverage        float64 `json:"review_average"`
	NumFavorers          int     `json:"num_favorers"`
	URL                  string  `json:"url,omitempty"`
}

// Listing is one active shop listing as returned by the listings endpoint.
type Listing struct {
	ListingID   int64  `json:"listing_id"`
	Title       string `json:"title"`
	State       string `json:"state"`
	Quantity    int    `json:"quantity"`
	Price       Money  `json:"price"`
	Views       int    `json:"views"`
	NumFavorers int    `json:"num_favorers"`
	URL         string `json:"url,omitempty"`
}

// Transaction is one sold transaction as returned by the transactions endpoint.
type Transaction struct {
	TransactionID    int64  `json:"transaction_id"`
	Title            string `json:"title"`
	Quantity         int    `json:"quantity"`
	Price            Money  `json:"price"`
	PaidTimestamp    int64  `json:"paid_timestamp,omitempty"`
	ShippedTimestamp int64  `json:"shipped_timestamp,omitempty"`
}

// Snapshot is one immutable, fully-formed result of a fetch cycle. A new
// cycle always produces a wholly new Snapshot; dependents only ever receive
// read-only references and must not mutate it.
type Snapshot struct {
	Shop              ShopInfo      `json:"shop"`
	Listings          []Listing     `json:"listings"`
	Transactions      []Transaction `json:"transactions"`
	ListingsCount     int           `json:"listings_count"`
	TransactionsCount int           `json:"transactions_count"`
	LastUpdated       time.Time     `json:"last_updated"`
}

// Credential is an OAuth credential for a direct-mode connection.
// ExpiresAt is always absolute time.
type Credential struct {
	AccessToken  string    `json:"access_token"  yaml:"access_token"`
	RefreshToken string    `json:"refresh_token" yaml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"    yaml:"expires_at"`
}

// ExpiresWithin reports whether the credential expires before now+buffer.
// A zero ExpiresAt is treated as already expired.
func (c Credential) ExpiresWithin(now time.Time, buffer time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(c.ExpiresAt.Add(-buffer))
}

// Options are the user-tunable display and alerting knobs. They may change
// at any time between refresh cycles.
type Options struct {
	ListingsDisplayLimit     int `json:"listings_display_limit"     yaml:"listings_display_limit"`
	TransactionsDisplayLimit int `json:"transactions_display_limit" yaml:"transactions_display_limit"`
	StockThreshold           int `json:"stock_threshold"            yaml:"stock_threshold"`
}

// Default option values and allowed ranges.
const (
	DefaultListingsDisplayLimit     = 5
	DefaultTransactionsDisplayLimit = 10
	DefaultStockThreshold           = 5

	MaxDisplayLimit   = 25
	MaxStockThreshold = 20
)

// DefaultOptions returns Options populated with defaults.
func DefaultOptions() Options {
	return Options{
		ListingsDisplayLimit:     DefaultListingsDisplayLimit,
		TransactionsDisplayLimit: DefaultTransactionsDisplayLimit,
		StockThreshold:           DefaultStockThreshold,
	}
}
