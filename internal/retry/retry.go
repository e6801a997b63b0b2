// Package retry runs operations with bounded exponential backoff. Only rate
// limit responses are retried; every other failure returns immediately so
// auth problems and hard API errors escalate on the first attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/donaldgifford/shopmon/internal/etsy"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
)

// ExhaustedError reports that every attempt was rate limited. It wraps the
// error from the final attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Runner executes operations with exponential backoff on rate limit errors.
// The zero delay schedule is base*2^attempt plus up to 10% jitter, so with
// the defaults the waits are roughly 1s, 2s, 4s, 8s between five attempts.
type Runner struct {
	maxAttempts int
	baseDelay   time.Duration
	log         *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// Option configures the Runner.
type Option func(*Runner)

// WithMaxAttempts overrides the default attempt count.
func WithMaxAttempts(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBaseDelay overrides the default base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// WithSleepFunc overrides the sleep function for testing.
func WithSleepFunc(f func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) {
		r.sleep = f
	}
}

// WithJitterFunc overrides the jitter source for testing. The function must
// return values in [0, 1).
func WithJitterFunc(f func() float64) Option {
	return func(r *Runner) {
		r.jitter = f
	}
}

// New creates a Runner with default settings.
func New(opts ...Option) *Runner {
	r := &Runner{
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		log:         slog.Default(),
		sleep:       sleepCtx,
		jitter:      rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Only *etsy.RateLimitError triggers a retry.
func (r *Runner) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.delayFor(attempt - 1)
			r.log.Warn("rate limited, backing off",
				"operation", name,
				"attempt", attempt+1,
				"max_attempts", r.maxAttempts,
				"delay", delay,
			)
			if err := r.sleep(ctx, delay); err != nil {
				return fmt.Errorf("waiting to retry %s: %w", name, err)
			}
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var rlErr *etsy.RateLimitError
		if !errors.As(err, &rlErr) {
			return err
		}
		lastErr = err
	}

	return &ExhaustedError{Attempts: r.maxAttempts, Err: lastErr}
}

// delayFor returns the backoff before retry number attempt+1: the base delay
// doubled per attempt, plus jitter uniform in [0, 10%) of that delay.
func (r *Runner) delayFor(attempt int) time.Duration {
	delay := r.baseDelay << attempt
	jitter := time.Duration(r.jitter() * 0.1 * float64(delay))
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
