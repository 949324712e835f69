package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errQuota = errors.New("quota")

type fakeSleeper struct {
	slept []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	return nil
}

func TestRetryWithResult_SucceedsAfterRetries(t *testing.T) {
	sleeper := &fakeSleeper{}
	cfg := RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2,
		Sleep:         sleeper.sleep,
	}

	calls := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errQuota
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.slept)
}

func TestRetryWithResult_NonRetryableStopsImmediately(t *testing.T) {
	sleeper := &fakeSleeper{}
	fatal := errors.New("bad request")
	cfg := RateLimitRetryConfig()
	cfg.Sleep = sleeper.sleep
	cfg.Retryable = func(err error) bool { return errors.Is(err, errQuota) }

	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		calls++
		return "", fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.slept)
}

func TestRetryWithResult_AlignsToMinuteBoundary(t *testing.T) {
	sleeper := &fakeSleeper{}
	now := time.Date(2024, 3, 1, 10, 15, 40, 0, time.UTC)
	cfg := RetryConfig{
		MaxAttempts:   2,
		InitialDelay:  time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
		AlignToMinute: true,
		Now:           func() time.Time { return now },
		Sleep:         sleeper.sleep,
	}

	calls := 0
	_, _ = RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errQuota
		}
		return calls, nil
	})

	assert.Equal(t, []time.Duration{20 * time.Second}, sleeper.slept)
}

func TestRetryWithResult_MaxWaitBoundsTotalSleep(t *testing.T) {
	sleeper := &fakeSleeper{}
	cfg := RetryConfig{
		MaxAttempts:   100,
		InitialDelay:  10 * time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 1,
		MaxWait:       35 * time.Second,
		Sleep:         sleeper.sleep,
	}

	calls := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, errQuota
	})

	assert.ErrorIs(t, err, errQuota)
	assert.Equal(t, 4, calls)
	assert.Len(t, sleeper.slept, 3)
}

func TestRetryWithResult_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := RetryWithResult(ctx, RateLimitRetryConfig(), func() (int, error) {
		calls++
		return 0, errQuota
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{10, time.Second},
	}
	for _, tt := range tests {
		got := CalculateBackoff(tt.attempt, 100*time.Millisecond, time.Second, 2)
		assert.Equal(t, tt.want, got, "attempt %d", tt.attempt)
	}
}

func TestUntilNextMinute(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 30, 59, int(500*time.Millisecond), time.UTC)
	assert.Equal(t, 500*time.Millisecond, UntilNextMinute(now))
}
