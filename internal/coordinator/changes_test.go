package coordinator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/shopmon/internal/coordinator"
	"github.com/donaldgifford/shopmon/internal/notify"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

func TestChangeDetection_SuppressedOnFirstCycle(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop:              domain.ShopInfo{ShopID: 55, ReviewCount: 20},
		transactionsCount: 100,
	}
	c, rec := newCoordinator(t, client)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Empty(t, rec.byType(notify.TypeNewOrder))
	assert.Empty(t, rec.byType(notify.TypeNewReview))
}

func TestChangeDetection_NewOrderDelta(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop:              domain.ShopInfo{ShopID: 55},
		transactionsCount: 100,
	}
	c, rec := newCoordinator(t, client)

	require.NoError(t, c.Refresh(context.Background()))
	rec.reset()

	client.set(func(f *fakeClient) { f.transactionsCount = 103 })
	require.NoError(t, c.Refresh(context.Background()))

	events := rec.byType(notify.TypeNewOrder)
	require.Len(t, events, 1)
	assert.Equal(t, "etsyapp_new_order", events[0].Name)
	assert.Equal(t, 3, events[0].Data["count"])
	assert.Equal(t, 103, events[0].Data["transactions_count"])
	assert.Equal(t, int64(55), events[0].ShopID)

	// Unchanged counters stay quiet.
	rec.reset()
	require.NoError(t, c.Refresh(context.Background()))
	assert.Empty(t, rec.byType(notify.TypeNewOrder))
}

func TestChangeDetection_ZeroPreviousCounterGuard(t *testing.T) {
	t.Parallel()

	// A zero previous counter usually means the upstream omitted the field;
	// jumping from 0 to N must not fire a phantom N-order event.
	client := &fakeClient{
		shop: domain.ShopInfo{ShopID: 55, ReviewCount: 0},
	}
	c, rec := newCoordinator(t, client)

	require.NoError(t, c.Refresh(context.Background()))

	client.set(func(f *fakeClient) {
		f.transactionsCount = 500
		f.shop.ReviewCount = 80
	})
	require.NoError(t, c.Refresh(context.Background()))

	assert.Empty(t, rec.byType(notify.TypeNewOrder))
	assert.Empty(t, rec.byType(notify.TypeNewReview))

	// The counters still advanced, so the next delta is real.
	client.set(func(f *fakeClient) { f.transactionsCount = 501 })
	require.NoError(t, c.Refresh(context.Background()))

	events := rec.byType(notify.TypeNewOrder)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].Data["count"])
}

func TestChangeDetection_NewReview(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop: domain.ShopInfo{ShopID: 55, ReviewCount: 20, ReviewAverage: 4.6},
	}
	c, rec := newCoordinator(t, client)

	require.NoError(t, c.Refresh(context.Background()))

	client.set(func(f *fakeClient) {
		f.shop.ReviewCount = 22
		f.shop.ReviewAverage = 4.7
	})
	require.NoError(t, c.Refresh(context.Background()))

	events := rec.byType(notify.TypeNewReview)
	require.Len(t, events, 1)
	assert.Equal(t, "etsyapp_new_review", events[0].Name)
	assert.Equal(t, 2, events[0].Data["count"])
	assert.Equal(t, 4.7, events[0].Data["review_average"])
}

func TestChangeDetection_LowStock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		quantity  int
		threshold int
		fires     bool
	}{
		{name: "below threshold", quantity: 3, threshold: 5, fires: true},
		{name: "exactly at threshold", quantity: 5, threshold: 5, fires: true},
		{name: "above threshold", quantity: 6, threshold: 5, fires: false},
		{name: "sold out never fires", quantity: 0, threshold: 5, fires: false},
		{name: "custom threshold", quantity: 10, threshold: 10, fires: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &fakeClient{
				shop: domain.ShopInfo{ShopID: 55},
				listings: []domain.Listing{
					{ListingID: 1, Title: "Mug", Quantity: tt.quantity},
				},
			}
			c, rec := newCoordinator(t, client, func(cfg *coordinator.Config) {
				cfg.Options = func() domain.Options {
					opts := domain.DefaultOptions()
					opts.StockThreshold = tt.threshold
					return opts
				}
			})

			require.NoError(t, c.Refresh(context.Background()))

			events := rec.byType(notify.TypeLowStock)
			if !tt.fires {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			assert.Equal(t, "etsyapp_low_stock", events[0].Name)
			assert.Equal(t, "Mug", events[0].Data["title"])
			assert.Equal(t, tt.quantity, events[0].Data["quantity"])
		})
	}
}

func TestChangeDetection_LowStockRefiresEveryCycle(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop:     domain.ShopInfo{ShopID: 55},
		listings: []domain.Listing{{ListingID: 1, Title: "Mug", Quantity: 2}},
	}
	c, rec := newCoordinator(t, client)

	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.Refresh(context.Background()))
	require.NoError(t, c.Refresh(context.Background()))

	// Level-triggered: the alert repeats while the condition holds.
	assert.Len(t, rec.byType(notify.TypeLowStock), 3)
}

func TestChangeDetection_MultipleLowStockListings(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop: domain.ShopInfo{ShopID: 55},
		listings: []domain.Listing{
			{ListingID: 1, Title: "Mug", Quantity: 2},
			{ListingID: 2, Title: "Bowl", Quantity: 40},
			{ListingID: 3, Title: "Plate", Quantity: 4},
		},
	}
	c, rec := newCoordinator(t, client)

	require.NoError(t, c.Refresh(context.Background()))

	events := rec.byType(notify.TypeLowStock)
	require.Len(t, events, 2)
	assert.Equal(t, "Mug", events[0].Data["title"])
	assert.Equal(t, "Plate", events[1].Data["title"])
}

func TestChangeDetection_NoEventsAfterCacheFallback(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop:              domain.ShopInfo{ShopID: 55},
		transactionsCount: 10,
		listings:          []domain.Listing{{ListingID: 1, Title: "Mug", Quantity: 2}},
	}
	c, rec := newCoordinator(t, client)

	require.NoError(t, c.Refresh(context.Background()))
	rec.reset()

	// A cycle that served the cache publishes nothing new, so change
	// detection must not run against stale data.
	client.set(func(f *fakeClient) { f.shopErr = errTransientTimeout })
	require.NoError(t, c.Refresh(context.Background()))

	assert.Empty(t, rec.events)
}
