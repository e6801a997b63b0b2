// Package coordinator drives periodic shop data refreshes: fetch, publish,
// fall back to the cached snapshot on transient failures, and detect changes
// between consecutive successful cycles.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/donaldgifford/shopmon/internal/etsy"
	"github.com/donaldgifford/shopmon/internal/metrics"
	"github.com/donaldgifford/shopmon/internal/notify"
	"github.com/donaldgifford/shopmon/internal/retry"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

// State describes what a coordinator is currently doing.
type State string

// Coordinator states.
const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
)

// ReauthFunc is invoked once per cycle when a refresh fails hard on
// authentication, so an operator-facing flow can be started. The cycle does
// not wait for re-authentication to complete.
type ReauthFunc func(ctx context.Context, connectionID string, err error)

// Config wires a Coordinator's collaborators.
type Config struct {
	ConnectionID string
	Client       etsy.ShopClient
	Retry        *retry.Runner
	Notifier     notify.Notifier
	EventPrefix  string

	// Options returns the current tunables. Called once per successful
	// cycle, so edits apply from the next cycle on.
	Options func() domain.Options

	OnAuthFailure ReauthFunc
	Logger        *slog.Logger
	NowFunc       func() time.Time
}

// Coordinator refreshes one shop connection. The published snapshot is
// immutable and swapped atomically; readers never block a running cycle.
type Coordinator struct {
	id       string
	client   etsy.ShopClient
	retry    *retry.Runner
	notifier notify.Notifier
	prefix   string
	options  func() domain.Options
	onAuth   ReauthFunc
	log      *slog.Logger
	nowFunc  func() time.Time

	snapshot atomic.Pointer[domain.Snapshot]

	mu                  sync.Mutex
	inflight            *cycle
	consecutiveFailures int
	lastError           error
	lastSuccess         time.Time
	lastAttempt         time.Time
}

// cycle is one in-flight refresh; concurrent callers wait on done and share
// the result.
type cycle struct {
	done chan struct{}
	err  error
}

// New creates a Coordinator. Client and ConnectionID are required; the rest
// of the config has working defaults.
func New(cfg Config) (*Coordinator, error) {
	if cfg.ConnectionID == "" {
		return nil, fmt.Errorf("coordinator: connection id is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("coordinator: shop client is required")
	}

	c := &Coordinator{
		id:       cfg.ConnectionID,
		client:   cfg.Client,
		retry:    cfg.Retry,
		notifier: cfg.Notifier,
		prefix:   cfg.EventPrefix,
		options:  cfg.Options,
		onAuth:   cfg.OnAuthFailure,
		log:      cfg.Logger,
		nowFunc:  cfg.NowFunc,
	}
	if c.retry == nil {
		c.retry = retry.New()
	}
	if c.notifier == nil {
		c.notifier = notify.Noop{}
	}
	if c.prefix == "" {
		c.prefix = "etsyapp"
	}
	if c.options == nil {
		c.options = func() domain.Options { return domain.DefaultOptions() }
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	return c, nil
}

// ID returns the connection id this coordinator refreshes.
func (c *Coordinator) ID() string {
	return c.id
}

// Snapshot returns the last published snapshot, or nil before the first
// successful cycle.
func (c *Coordinator) Snapshot() *domain.Snapshot {
	return c.snapshot.Load()
}

// Status is a point-in-time view of a coordinator for health and API use.
type Status struct {
	ConnectionID        string    `json:"connection_id"`
	State               State     `json:"state"`
	HasSnapshot         bool      `json:"has_snapshot"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastAttempt         time.Time `json:"last_attempt,omitzero"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Status reports the coordinator's current condition.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		ConnectionID:        c.id,
		State:               StateIdle,
		HasSnapshot:         c.snapshot.Load() != nil,
		LastSuccess:         c.lastSuccess,
		LastAttempt:         c.lastAttempt,
		ConsecutiveFailures: c.consecutiveFailures,
	}
	if c.inflight != nil {
		s.State = StateFetching
	}
	if c.lastError != nil {
		s.LastError = c.lastError.Error()
	}
	return s
}

// Refresh runs one refresh cycle. When a cycle is already in flight the call
// joins it instead of starting a second upstream fetch sequence, and returns
// that cycle's result.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.inflight != nil {
		cy := c.inflight
		c.mu.Unlock()
		select {
		case <-cy.done:
			return cy.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	cy := &cycle{done: make(chan struct{})}
	c.inflight = cy
	c.lastAttempt = c.nowFunc()
	c.mu.Unlock()

	cy.err = c.runCycle(ctx)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(cy.done)

	return cy.err
}

func (c *Coordinator) runCycle(ctx context.Context) error {
	start := c.nowFunc()
	snap, err := c.fetch(ctx)
	metrics.RefreshDuration.Observe(c.nowFunc().Sub(start).Seconds())

	if err != nil {
		return c.handleFailure(ctx, err)
	}

	previous := c.snapshot.Load()
	c.snapshot.Store(snap)

	c.mu.Lock()
	c.consecutiveFailures = 0
	c.lastError = nil
	c.lastSuccess = c.nowFunc()
	c.mu.Unlock()

	metrics.RefreshCyclesTotal.WithLabelValues(c.id, "success").Inc()
	metrics.ConsecutiveFailures.WithLabelValues(c.id).Set(0)

	c.log.Info("refresh cycle succeeded",
		"connection_id", c.id,
		"shop_id", snap.Shop.ShopID,
		"listings", len(snap.Listings),
		"transactions_count", snap.TransactionsCount,
	)

	c.emitChanges(ctx, previous, snap)
	return nil
}

// fetch runs the full upstream sequence, each call governed by the retry
// runner so only rate limits are retried.
func (c *Coordinator) fetch(ctx context.Context) (*domain.Snapshot, error) {
	var shop *domain.ShopInfo
	err := c.retry.Do(ctx, "fetch shop", func(ctx context.Context) error {
		var err error
		shop, err = c.client.FetchShop(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		listings      []domain.Listing
		listingsCount int
	)
	err = c.retry.Do(ctx, "fetch listings", func(ctx context.Context) error {
		var err error
		listings, listingsCount, err = c.client.FetchListings(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var (
		transactions      []domain.Transaction
		transactionsCount int
	)
	err = c.retry.Do(ctx, "fetch transactions", func(ctx context.Context) error {
		var err error
		transactions, transactionsCount, err = c.client.FetchTransactions(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &domain.Snapshot{
		Shop:              *shop,
		Listings:          listings,
		Transactions:      transactions,
		ListingsCount:     listingsCount,
		TransactionsCount: transactionsCount,
		LastUpdated:       c.nowFunc(),
	}, nil
}

// handleFailure applies the failure policy: transient failures with a cached
// snapshot keep serving the cache and report success; everything else fails
// the cycle. Auth failures additionally trigger the re-authentication hook.
func (c *Coordinator) handleFailure(ctx context.Context, err error) error {
	c.mu.Lock()
	c.consecutiveFailures++
	c.lastError = err
	failures := c.consecutiveFailures
	c.mu.Unlock()

	metrics.ConsecutiveFailures.WithLabelValues(c.id).Set(float64(failures))

	if etsy.IsTransient(err) && c.snapshot.Load() != nil {
		metrics.RefreshCyclesTotal.WithLabelValues(c.id, "cache_fallback").Inc()
		metrics.CacheFallbacksTotal.Inc()
		c.log.Warn("transient failure, serving cached snapshot",
			"connection_id", c.id,
			"consecutive_failures", failures,
			"error", err,
		)
		return nil
	}

	metrics.RefreshCyclesTotal.WithLabelValues(c.id, "failure").Inc()

	var authErr *etsy.AuthError
	if errors.As(err, &authErr) {
		c.log.Error("authentication failed, re-authentication required",
			"connection_id", c.id,
			"error", err,
		)
		if c.onAuth != nil {
			c.onAuth(ctx, c.id, err)
		}
		return fmt.Errorf("refreshing %s: %w", c.id, err)
	}

	c.log.Error("refresh cycle failed",
		"connection_id", c.id,
		"consecutive_failures", failures,
		"error", err,
	)
	return fmt.Errorf("refreshing %s: %w", c.id, err)
}

// emitChanges runs change detection against the previous snapshot and
// delivers the resulting events. Delivery failures are logged, never
// propagated: the cycle already succeeded.
func (c *Coordinator) emitChanges(ctx context.Context, previous, current *domain.Snapshot) {
	events := detectChanges(detectInput{
		prefix:       c.prefix,
		connectionID: c.id,
		previous:     previous,
		current:      current,
		options:      c.options(),
		now:          c.nowFunc(),
	})

	for _, event := range events {
		metrics.EventsEmittedTotal.WithLabelValues(event.Type).Inc()
		c.log.Info("change detected",
			"connection_id", c.id,
			"event", event.Name,
			"data", event.Data,
		)
		if err := c.notifier.Notify(ctx, event); err != nil {
			c.log.Error("event delivery failed",
				"connection_id", c.id,
				"event", event.Name,
				"error", err,
			)
		}
	}
}
