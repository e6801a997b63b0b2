package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/shopmon/internal/coordinator"
	"github.com/donaldgifford/shopmon/internal/etsy"
	"github.com/donaldgifford/shopmon/internal/notify"
	"github.com/donaldgifford/shopmon/internal/retry"
	domain "github.com/donaldgifford/shopmon/pkg/types"
)

// fakeClient is a scripted ShopClient. Zero-value errors mean success with
// the configured payloads.
type fakeClient struct {
	mu sync.Mutex

	shop              domain.ShopInfo
	listings          []domain.Listing
	transactions      []domain.Transaction
	transactionsCount int

	shopErr         error
	listingsErr     error
	transactionsErr error

	shopCalls int

	// shopStarted/shopGate let tests hold a fetch open mid-cycle.
	shopStarted chan struct{}
	shopGate    chan struct{}
}

func (f *fakeClient) FetchShop(_ context.Context) (*domain.ShopInfo, error) {
	f.mu.Lock()
	f.shopCalls++
	started := f.shopStarted
	gate := f.shopGate
	err := f.shopErr
	shop := f.shop
	f.mu.Unlock()

	if started != nil {
		close(started)
		f.mu.Lock()
		f.shopStarted = nil
		f.mu.Unlock()
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

func (f *fakeClient) FetchListings(_ context.Context) ([]domain.Listing, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listingsErr != nil {
		return nil, 0, f.listingsErr
	}
	return f.listings, len(f.listings), nil
}

func (f *fakeClient) FetchTransactions(_ context.Context) ([]domain.Transaction, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transactionsErr != nil {
		return nil, 0, f.transactionsErr
	}
	count := f.transactionsCount
	if count == 0 {
		count = len(f.transactions)
	}
	return f.transactions, count, nil
}

func (f *fakeClient) set(fn func(*fakeClient)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// recordingNotifier captures delivered events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) byType(eventType string) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// errTransientTimeout classifies as transient by message inspection alone.
var errTransientTimeout = errors.New("request timeout while fetching shop data")

// fastRetry retries instantly so rate-limit paths do not slow tests down.
func fastRetry() *retry.Runner {
	return retry.New(
		retry.WithSleepFunc(func(_ context.Context, _ time.Duration) error { return nil }),
	)
}

func newCoordinator(t *testing.T, client *fakeClient, opts ...func(*coordinator.Config)) (*coordinator.Coordinator, *recordingNotifier) {
	t.Helper()

	rec := &recordingNotifier{}
	cfg := coordinator.Config{
		ConnectionID: "conn-1",
		Client:       client,
		Retry:        fastRetry(),
		Notifier:     rec,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c, err := coordinator.New(cfg)
	require.NoError(t, err)
	return c, rec
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := coordinator.New(coordinator.Config{Client: &fakeClient{}})
	require.Error(t, err)

	_, err = coordinator.New(coordinator.Config{ConnectionID: "conn-1"})
	require.Error(t, err)
}

func TestRefresh_PublishesSnapshot(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop: domain.ShopInfo{ShopID: 55, ShopName: "CraftyCorner", TransactionSoldCount: 10},
		listings: []domain.Listing{
			{ListingID: 1, Title: "Mug", Quantity: 50},
		},
	}
	c, _ := newCoordinator(t, client)

	require.Nil(t, c.Snapshot())
	require.NoError(t, c.Refresh(context.Background()))

	snap := c.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, "CraftyCorner", snap.Shop.ShopName)
	assert.Equal(t, 1, snap.ListingsCount)
	assert.False(t, snap.LastUpdated.IsZero())

	status := c.Status()
	assert.True(t, status.HasSnapshot)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Empty(t, status.LastError)
	assert.Equal(t, coordinator.StateIdle, status.State)
}

func TestRefresh_CoalescesConcurrentCalls(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop:        domain.ShopInfo{ShopID: 55},
		shopStarted: make(chan struct{}),
		shopGate:    make(chan struct{}),
	}
	c, _ := newCoordinator(t, client)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.Refresh(context.Background())
	}()

	// Wait until the first cycle is inside its fetch, then pile on callers.
	<-client.shopStarted

	const joiners = 5
	joinErrs := make(chan error, joiners)
	var started sync.WaitGroup
	started.Add(joiners)
	for range joiners {
		go func() {
			started.Done()
			joinErrs <- c.Refresh(context.Background())
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond) // let the joiners reach the in-flight cycle
	close(client.shopGate)

	require.NoError(t, <-firstDone)
	for range joiners {
		require.NoError(t, <-joinErrs)
	}

	// Every caller shared the single upstream sequence.
	client.mu.Lock()
	calls := client.shopCalls
	client.mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestRefresh_JoinerHonorsContext(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop:        domain.ShopInfo{ShopID: 55},
		shopStarted: make(chan struct{}),
		shopGate:    make(chan struct{}),
	}
	c, _ := newCoordinator(t, client)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.Refresh(context.Background())
	}()
	<-client.shopStarted

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(client.shopGate)
	require.NoError(t, <-firstDone)
}

func TestRefresh_TransientFailureServesCache(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop: domain.ShopInfo{ShopID: 55, ShopName: "CraftyCorner"},
	}
	c, _ := newCoordinator(t, client)

	require.NoError(t, c.Refresh(context.Background()))
	cached := c.Snapshot()
	require.NotNil(t, cached)

	// Every subsequent attempt is rate limited; with a cache the cycle is
	// still reported successful and the snapshot is untouched.
	client.set(func(f *fakeClient) {
		f.shopErr = &etsy.RateLimitError{RetryAfter: time.Second}
	})

	require.NoError(t, c.Refresh(context.Background()))
	assert.Same(t, cached, c.Snapshot())

	status := c.Status()
	assert.Equal(t, 1, status.ConsecutiveFailures)
	assert.NotEmpty(t, status.LastError)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 2, c.Status().ConsecutiveFailures)

	// Recovery resets the failure streak and publishes fresh data.
	client.set(func(f *fakeClient) { f.shopErr = nil })
	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 0, c.Status().ConsecutiveFailures)
	assert.NotSame(t, cached, c.Snapshot())
}

func TestRefresh_TransientFailureWithoutCacheFails(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shopErr: &etsy.RateLimitError{RetryAfter: time.Second},
	}
	c, _ := newCoordinator(t, client)

	err := c.Refresh(context.Background())
	require.Error(t, err)

	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Nil(t, c.Snapshot())
	assert.Equal(t, 1, c.Status().ConsecutiveFailures)
}

func TestRefresh_HardFailureFailsDespiteCache(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		shop: domain.ShopInfo{ShopID: 55},
	}
	c, _ := newCoordinator(t, client)

	require.NoError(t, c.Refresh(context.Background()))
	cached := c.Snapshot()

	// A 500 is not transient: the cycle fails, but the stale snapshot stays
	// available to readers.
	client.set(func(f *fakeClient) {
		f.listingsErr = &etsy.APIError{Status: 500, Endpoint: "/listings"}
	})

	err := c.Refresh(context.Background())
	require.Error(t, err)
	assert.Same(t, cached, c.Snapshot())
	assert.Equal(t, 1, c.Status().ConsecutiveFailures)
}

func TestRefresh_AuthFailureTriggersReauth(t *testing.T) {
	t.Parallel()

	var (
		mu        sync.Mutex
		reauthFor []string
	)
	client := &fakeClient{
		shopErr: &etsy.AuthError{Reason: "refresh token revoked"},
	}
	c, _ := newCoordinator(t, client, func(cfg *coordinator.Config) {
		cfg.OnAuthFailure = func(_ context.Context, connectionID string, _ error) {
			mu.Lock()
			defer mu.Unlock()
			reauthFor = append(reauthFor, connectionID)
		}
	})

	err := c.Refresh(context.Background())
	require.Error(t, err)

	var authErr *etsy.AuthError
	assert.ErrorAs(t, err, &authErr)

	// The hook fires once per failing cycle, not once per fetch attempt.
	mu.Lock()
	assert.Equal(t, []string{"conn-1"}, reauthFor)
	mu.Unlock()
}

func TestRefresh_AuthFailureWithCacheServesCache(t *testing.T) {
	t.Parallel()

	reauthCalled := false
	client := &fakeClient{
		shop: domain.ShopInfo{ShopID: 55},
	}
	c, _ := newCoordinator(t, client, func(cfg *coordinator.Config) {
		cfg.OnAuthFailure = func(_ context.Context, _ string, _ error) {
			reauthCalled = true
		}
	})

	require.NoError(t, c.Refresh(context.Background()))

	// Token trouble is transient (the next cycle may refresh successfully),
	// so with a cache the cycle soft-fails onto it.
	client.set(func(f *fakeClient) {
		f.shopErr = &etsy.AuthError{Reason: "token refresh timed out"}
	})

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, 1, c.Status().ConsecutiveFailures)
	assert.False(t, reauthCalled)
}
