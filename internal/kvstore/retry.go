package kvstore

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures the capped exponential backoff used for
// ErrTransientIO per §5's retry policy: 3 retries at 100ms, 400ms, 1.6s
// plus jitter.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	Jitter            float64
}

// DefaultRetryConfig matches the concurrency model's stated defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4, // initial attempt + 3 retries
		InitialBackoff:    100 * time.Millisecond,
		BackoffMultiplier: 4.0,
		Jitter:            0.1,
	}
}

// WithRetry runs fn, retrying while it returns ErrTransientIO, up to
// cfg.MaxAttempts total attempts. Any other error (including ErrNotFound,
// ErrConflict, ErrPermanentIO) returns immediately without retrying.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrTransientIO) {
			return err
		}
		lastErr = err
		if attempt >= cfg.MaxAttempts {
			break
		}

		backoff := backoffFor(cfg, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func backoffFor(cfg RetryConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if cfg.Jitter > 0 {
		backoff += backoff * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter, not security-sensitive
	}
	return time.Duration(backoff)
}
