// Package retry implements the backoff executor and circuit breaker guarding
// every outbound source call.
package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/leadscout/leadscout/internal/discovery"
)

// Options controls a single Execute call.
type Options struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// always-failing operation runs MaxRetries+1 times.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// ShouldRetry overrides the default classification when non-nil.
	ShouldRetry func(err error) bool
	// OnRetry is invoked before each sleep with the upcoming attempt number
	// (1-based) and the error that triggered it.
	OnRetry func(attempt int, err error)
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 250 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 5 * time.Second
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = discovery.IsRetryable
	}
	return o
}

// Execute runs op with jittered exponential backoff, returning the last error
// once retries are exhausted or the error is classified non-retryable.
func Execute[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()
	var zero T
	var lastErr error
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt >= opts.MaxRetries || !opts.ShouldRetry(err) {
			return zero, lastErr
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err)
		}
		if err := sleep(ctx, Backoff(attempt, opts.BaseDelay, opts.MaxDelay)); err != nil {
			return zero, err
		}
	}
}

// Do is Execute for operations without a result.
func Do(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	_, err := Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts)
	return err
}

// Backoff returns min(base*2^attempt, max) plus up to 10% jitter.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	delay := float64(base) * math.Pow(2, float64(attempt))
	if delay > float64(max) {
		delay = float64(max)
	}
	return time.Duration(delay) + randomJitter(time.Duration(delay/10))
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
