package etsy_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/shopmon/internal/etsy"
)

func TestRateLimiter_DailyQuota(t *testing.T) {
	t.Parallel()

	rl := etsy.NewRateLimiter(1000, 1000, 3)
	ctx := context.Background()

	for range 3 {
		require.NoError(t, rl.Wait(ctx))
	}

	err := rl.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, etsy.ErrDailyQuotaExceeded)
	assert.Equal(t, int64(3), rl.DailyCount())
	assert.Equal(t, int64(0), rl.Remaining())
}

func TestRateLimiter_WindowRoll(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	current := time.Now()
	nowFunc := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	rl := etsy.NewRateLimiter(1000, 1000, 2, etsy.WithRateLimiterNowFunc(nowFunc))
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx))
	require.NoError(t, rl.Wait(ctx))
	require.ErrorIs(t, rl.Wait(ctx), etsy.ErrDailyQuotaExceeded)

	// Advance past the 24-hour window; the counter resets.
	mu.Lock()
	current = current.Add(25 * time.Hour)
	mu.Unlock()

	require.NoError(t, rl.Wait(ctx))
	assert.Equal(t, int64(1), rl.DailyCount())
	assert.Equal(t, int64(1), rl.Remaining())
}

func TestRateLimiter_ContextCancellation(t *testing.T) {
	t.Parallel()

	// Tiny rate with no burst capacity left forces Wait to block.
	rl := etsy.NewRateLimiter(0.001, 1, 100)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter wait")
}

func TestRateLimiter_Accessors(t *testing.T) {
	t.Parallel()

	rl := etsy.NewRateLimiter(5, 10, 500)
	assert.Equal(t, int64(500), rl.MaxDaily())
	assert.Equal(t, int64(500), rl.Remaining())
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), rl.ResetAt(), time.Minute)
}
