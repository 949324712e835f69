package candles

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/marketdata"
	"pattern-scanner/internal/models"
	"pattern-scanner/internal/store"
	"pattern-scanner/pkg/utils"
)

type fakeUpstream struct {
	calls     atomic.Int32
	rateLimit int32 // first N calls are rate limited
	err       error
	candles   []models.Candle
	delay     time.Duration
}

func (f *fakeUpstream) Aggregates(ctx context.Context, req marketdata.AggregatesRequest) ([]models.Candle, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if n <= f.rateLimit {
		return nil, apperrors.NewUpstreamError(429, "/v2/aggs", "quota", apperrors.ErrRateLimited)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

func noSleepRetry() utils.RetryConfig {
	cfg := utils.RateLimitRetryConfig()
	cfg.AlignToMinute = false
	cfg.Sleep = func(context.Context, time.Duration) error { return nil }
	return cfg
}

func utcMinute(h, m int) time.Time {
	// 2024-03-05 is EST, UTC-5
	return time.Date(2024, 3, 5, h+5, m, 0, 0, time.UTC)
}

func sampleRequest() Request {
	return Request{
		Symbol:     "BRK/B",
		Timeframe:  models.TimeframeMinute,
		Multiplier: 1,
		Start:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		Adjusted:   true,
	}
}

func TestRequestFingerprint(t *testing.T) {
	assert.Equal(t, "BRK-B_1minute_2024-03-05_2024-03-06_true_false", sampleRequest().Fingerprint())
}

func TestStore_CacheIdempotence(t *testing.T) {
	cache, err := store.NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	up := &fakeUpstream{candles: []models.Candle{
		{Timestamp: utcMinute(9, 31), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Timestamp: utcMinute(9, 30), Open: 1, High: 1.2, Low: 0.9, Close: 1, Volume: 5},
	}}
	s := NewStore(up, cache, noSleepRetry(), zerolog.Nop())

	first, err := s.Candles(context.Background(), sampleRequest())
	require.NoError(t, err)
	second, err := s.Candles(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.LessOrEqual(t, up.calls.Load(), int32(1))
	require.Len(t, first, 2)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Timestamp.Equal(second[i].Timestamp))
		assert.Equal(t, first[i].Open, second[i].Open)
		assert.Equal(t, first[i].Volume, second[i].Volume)
	}
	assert.EqualValues(t, 1, s.CacheHits())
}

func TestStore_ConcurrentRequestsShareOneFetch(t *testing.T) {
	up := &fakeUpstream{
		delay:   100 * time.Millisecond,
		candles: []models.Candle{{Timestamp: utcMinute(10, 0), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}},
	}
	s := NewStore(up, nil, noSleepRetry(), zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Candles(context.Background(), sampleRequest())
			assert.NoError(t, err)
			assert.Len(t, got, 1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestStore_RetriesRateLimitThenSucceeds(t *testing.T) {
	up := &fakeUpstream{
		rateLimit: 2,
		candles:   []models.Candle{{Timestamp: utcMinute(10, 0), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}},
	}
	s := NewStore(up, nil, noSleepRetry(), zerolog.Nop())

	got, err := s.Candles(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(3), up.calls.Load())
}

func TestStore_RateLimitExhaustedIsFatal(t *testing.T) {
	up := &fakeUpstream{rateLimit: 1000}
	retry := noSleepRetry()
	retry.MaxAttempts = 4
	s := NewStore(up, nil, retry, zerolog.Nop())

	_, err := s.Candles(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, apperrors.ErrRateLimitExhausted)
	assert.Equal(t, int32(4), up.calls.Load())
}

func TestStore_OtherFailuresReturnEmpty(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", apperrors.NewUpstreamError(404, "/v2/aggs", "not found", apperrors.ErrDataNotFound)},
		{"server error", apperrors.NewUpstreamError(500, "/v2/aggs", "boom", nil)},
		{"transport", errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{err: tt.err}
			s := NewStore(up, nil, noSleepRetry(), zerolog.Nop())
			got, err := s.Candles(context.Background(), sampleRequest())
			assert.NoError(t, err)
			assert.Empty(t, got)
			assert.Equal(t, int32(1), up.calls.Load())
		})
	}
}

func TestStore_EmptyResultIsNotCached(t *testing.T) {
	cache, err := store.NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	up := &fakeUpstream{}
	s := NewStore(up, cache, noSleepRetry(), zerolog.Nop())
	_, _ = s.Candles(context.Background(), sampleRequest())
	_, _ = s.Candles(context.Background(), sampleRequest())
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestStore_TrimsRegularSessionUnlessExtended(t *testing.T) {
	up := &fakeUpstream{candles: []models.Candle{
		{Timestamp: utcMinute(4, 0), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Timestamp: utcMinute(9, 30), Open: 2, High: 2, Low: 2, Close: 2, Volume: 1},
		{Timestamp: utcMinute(15, 59), Open: 3, High: 3, Low: 3, Close: 3, Volume: 1},
		{Timestamp: utcMinute(16, 0), Open: 4, High: 4, Low: 4, Close: 4, Volume: 1},
	}}
	s := NewStore(up, nil, noSleepRetry(), zerolog.Nop())

	regular, err := s.Candles(context.Background(), sampleRequest())
	require.NoError(t, err)
	require.Len(t, regular, 2)
	assert.Equal(t, 9, regular[0].Timestamp.Hour())
	assert.Equal(t, utils.MarketLocation, regular[0].Timestamp.Location())

	req := sampleRequest()
	req.ExtendedSession = true
	extended, err := s.Candles(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, extended, 4)
}

func TestNormalize_SortsAndDedupes(t *testing.T) {
	got := Normalize([]models.Candle{
		{Timestamp: utcMinute(10, 2), Open: 3},
		{Timestamp: utcMinute(10, 0), Open: 1},
		{Timestamp: utcMinute(10, 2), Open: 99},
		{Timestamp: utcMinute(10, 1), Open: 2},
	})
	require.Len(t, got, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{got[0].Open, got[1].Open, got[2].Open})
}

func TestTrimSession_Hourly(t *testing.T) {
	got := TrimSession([]models.Candle{
		{Timestamp: time.Date(2024, 3, 5, 8, 0, 0, 0, utils.MarketLocation)},
		{Timestamp: time.Date(2024, 3, 5, 9, 0, 0, 0, utils.MarketLocation)},
		{Timestamp: time.Date(2024, 3, 5, 15, 0, 0, 0, utils.MarketLocation)},
		{Timestamp: time.Date(2024, 3, 5, 16, 0, 0, 0, utils.MarketLocation)},
	}, models.TimeframeHour)
	assert.Len(t, got, 2)
}

func TestResample_WeeklyAndMonthly(t *testing.T) {
	day := func(m time.Month, d int, o, h, l, c, v float64) models.Candle {
		return models.Candle{Timestamp: time.Date(2024, m, d, 0, 0, 0, 0, utils.MarketLocation), Open: o, High: h, Low: l, Close: c, Volume: v}
	}
	daily := []models.Candle{
		day(1, 29, 10, 11, 9, 10.5, 100), // Monday
		day(1, 31, 10.5, 12, 10, 11, 200),
		day(2, 2, 11, 11.5, 8, 9, 300),  // Friday
		day(2, 5, 9, 10, 8.5, 9.5, 400), // next Monday
	}

	weekly := Resample(daily, models.TimeframeWeek)
	require.Len(t, weekly, 2)
	assert.Equal(t, time.Date(2024, 1, 29, 0, 0, 0, 0, utils.MarketLocation), weekly[0].Timestamp)
	assert.Equal(t, models.Candle{Timestamp: weekly[0].Timestamp, Open: 10, High: 12, Low: 8, Close: 9, Volume: 600}, weekly[0])

	monthly := Resample(daily, models.TimeframeMonth)
	require.Len(t, monthly, 2)
	assert.Equal(t, 1, monthly[1].Timestamp.Day())
	assert.Equal(t, time.February, monthly[1].Timestamp.Month())
	assert.Equal(t, 700.0, monthly[1].Volume)
	assert.Equal(t, 300.0, monthly[0].Volume)
}
