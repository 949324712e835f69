package utils

import (
	"context"
	"math"
	"time"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// MaxWait caps the cumulative time spent sleeping between attempts. Zero disables the cap.
	MaxWait time.Duration
	// AlignToMinute makes every wait last at least until the next wall-clock minute,
	// which is when per-minute API quotas reset.
	AlignToMinute bool
	// Retryable decides whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool

	// Now and Sleep are replaceable for tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// RateLimitRetryConfig returns a policy suited to per-minute API quotas.
func RateLimitRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   10,
		InitialDelay:  time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2.0,
		MaxWait:       5 * time.Minute,
		AlignToMinute: true,
	}
}

// RetryWithResult executes a function with exponential backoff retry and returns a result.
// It stops early on a non-retryable error, on context cancellation, or when the next
// wait would exceed MaxWait; in every case the last error is returned.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var waited time.Duration
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		// Don't sleep after the last attempt
		if attempt == attempts-1 {
			return zero, err
		}

		delay := CalculateBackoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.BackoffFactor)
		if cfg.AlignToMinute {
			if untilMinute := UntilNextMinute(now()); untilMinute > delay {
				delay = untilMinute
			}
		}
		if cfg.MaxWait > 0 && waited+delay > cfg.MaxWait {
			return zero, err
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
		waited += delay
	}

	return zero, nil
}

// CalculateBackoff calculates the backoff duration for a given attempt.
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration, factor float64) time.Duration {
	if factor < 1 {
		factor = 1
	}
	delay := float64(initialDelay) * math.Pow(factor, float64(attempt))
	if maxDelay > 0 && delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}

// UntilNextMinute returns the time left before the wall clock rolls over to the next minute.
func UntilNextMinute(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	return next.Sub(now)
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
