// Package notify delivers change-detection events to external sinks.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types, combined with the configured prefix into names like
// "etsyapp_new_order".
const (
	TypeNewOrder  = "new_order"
	TypeNewReview = "new_review"
	TypeLowStock  = "low_stock"
)

// Event is one change-detection notification.
type Event struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	ConnectionID string         `json:"connection_id"`
	ShopID       int64          `json:"shop_id"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
}

// NewEvent builds an event with a fresh ID. The full name is the configured
// prefix joined with the type.
func NewEvent(prefix, eventType, connectionID string, shopID int64, now time.Time, data map[string]any) Event {
	return Event{
		ID:           uuid.NewString(),
		Name:         prefix + "_" + eventType,
		Type:         eventType,
		ConnectionID: connectionID,
		ShopID:       shopID,
		Timestamp:    now,
		Data:         data,
	}
}

// Notifier delivers events to a sink. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Multi fans an event out to several notifiers, collecting all delivery
// errors instead of stopping at the first.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop discards all events.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(_ context.Context, _ Event) error {
	return nil
}
