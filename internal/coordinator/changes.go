package coordinator

import (
	"time"

	"github.com/donaldgifford/shopmon/internal/notify"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

type detectInput struct {
	prefix       string
	connectionID string
	previous     *domain.Snapshot
	current      *domain.Snapshot
	options      domain.Options
	now          time.Time
}

// detectChanges compares consecutive successful snapshots and produces the
// events to emit.
//
// Counter deltas (new_order, new_review) require a nonzero previous counter:
// the first cycle after startup has nothing to compare against, and a zero
// previous counter usually means the upstream omitted the field rather than
// that the shop never sold anything. Low stock is level-triggered and fires
// every cycle the condition holds, so a restart cannot lose the alert.
func detectChanges(in detectInput) []notify.Event {
	var events []notify.Event

	shop := in.current.Shop

	if in.previous != nil {
		prev := in.previous.Shop

		if in.previous.TransactionsCount > 0 && in.current.TransactionsCount > in.previous.TransactionsCount {
			events = append(events, notify.NewEvent(
				in.prefix, notify.TypeNewOrder, in.connectionID, shop.ShopID, in.now,
				map[string]any{
					"count":              in.current.TransactionsCount - in.previous.TransactionsCount,
					"transactions_count": in.current.TransactionsCount,
				},
			))
		}

		if prev.ReviewCount > 0 && shop.ReviewCount > prev.ReviewCount {
			events = append(events, notify.NewEvent(
				in.prefix, notify.TypeNewReview, in.connectionID, shop.ShopID, in.now,
				map[string]any{
					"count":          shop.ReviewCount - prev.ReviewCount,
					"review_count":   shop.ReviewCount,
					"review_average": shop.ReviewAverage,
				},
			))
		}
	}

	threshold := in.options.StockThreshold
	for _, listing := range in.current.Listings {
		if listing.Quantity > 0 && listing.Quantity <= threshold {
			events = append(events, notify.NewEvent(
				in.prefix, notify.TypeLowStock, in.connectionID, shop.ShopID, in.now,
				map[string]any{
					"listing_id": listing.ListingID,
					"title":      listing.Title,
					"quantity":   listing.Quantity,
					"threshold":  threshold,
				},
			))
		}
	}

	return events
}
