// Package candles acquires normalized candle sequences, consulting the cache
// before the market data API.
package candles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/marketdata"
	"pattern-scanner/internal/models"
	"pattern-scanner/internal/store"
	"pattern-scanner/pkg/utils"
)

// Upstream serves raw aggregate bars.
type Upstream interface {
	Aggregates(ctx context.Context, req marketdata.AggregatesRequest) ([]models.Candle, error)
}

// Request identifies one candle sequence.
type Request struct {
	Symbol          string
	Timeframe       models.Timeframe
	Multiplier      int
	Start           time.Time
	End             time.Time
	Adjusted        bool
	ExtendedSession bool
}

// Fingerprint is the cache key of the request. Path separators in the symbol are replaced.
func (r Request) Fingerprint() string {
	mult := r.Multiplier
	if mult <= 0 {
		mult = 1
	}
	key := fmt.Sprintf("%s_%d%s_%s_%s_%s_%s",
		r.Symbol, mult, r.Timeframe,
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"),
		strconv.FormatBool(r.Adjusted), strconv.FormatBool(r.ExtendedSession))
	return strings.ReplaceAll(key, "/", "-")
}

// Store returns candle sequences. It is safe for concurrent use; concurrent
// requests with the same fingerprint share one upstream fetch.
// Returned slices are shared and must be treated as read-only.
type Store struct {
	upstream Upstream
	cache    store.CandleCache
	retry    utils.RetryConfig
	group    singleflight.Group
	logger   zerolog.Logger

	upstreamCalls atomic.Int64
	cacheHits     atomic.Int64
}

// NewStore creates a store. A nil cache disables caching.
func NewStore(upstream Upstream, cache store.CandleCache, retry utils.RetryConfig, logger zerolog.Logger) *Store {
	retry.Retryable = func(err error) bool {
		return errors.Is(err, apperrors.ErrRateLimited)
	}
	return &Store{
		upstream: upstream,
		cache:    cache,
		retry:    retry,
		logger:   logging.WithOperation(logger, "candles"),
	}
}

// Candles returns the sequence for req. An empty result with a nil error means
// the upstream had no data or failed in a way that only affects this fetch.
// Week and month sequences are resampled from daily candles.
func (s *Store) Candles(ctx context.Context, req Request) ([]models.Candle, error) {
	switch req.Timeframe {
	case models.TimeframeWeek, models.TimeframeMonth:
		daily := req
		daily.Timeframe = models.TimeframeDay
		daily.Multiplier = 1
		candles, err := s.Candles(ctx, daily)
		if err != nil {
			return nil, err
		}
		return Resample(candles, req.Timeframe), nil
	}

	fp := req.Fingerprint()
	v, err, _ := s.group.Do(fp, func() (interface{}, error) {
		return s.load(ctx, req, fp)
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Candle), nil
}

// UpstreamCalls returns how many fetches reached the market data API.
func (s *Store) UpstreamCalls() int64 {
	return s.upstreamCalls.Load()
}

// CacheHits returns how many requests were served from the cache.
func (s *Store) CacheHits() int64 {
	return s.cacheHits.Load()
}

func (s *Store) load(ctx context.Context, req Request, fp string) ([]models.Candle, error) {
	logger := logging.WithSymbol(s.logger, req.Symbol)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, fp)
		if err != nil {
			logger.Warn().Err(err).Str("fingerprint", fp).Msg("Cache read failed, fetching")
		} else if ok {
			s.cacheHits.Add(1)
			return cached, nil
		}
	}

	raw, err := utils.RetryWithResult(ctx, s.retry, func() ([]models.Candle, error) {
		s.upstreamCalls.Add(1)
		candles, err := s.upstream.Aggregates(ctx, marketdata.AggregatesRequest{
			Symbol:     req.Symbol,
			Multiplier: req.Multiplier,
			Timespan:   req.Timeframe,
			From:       req.Start,
			To:         req.End,
			Adjusted:   req.Adjusted,
		})
		if errors.Is(err, apperrors.ErrRateLimited) {
			logger.Debug().Str("timeframe", string(req.Timeframe)).Msg("Per-minute request limit reached, waiting")
		}
		return candles, err
	})
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrRateLimited):
		return nil, fmt.Errorf("%w: %s %s: %v", apperrors.ErrRateLimitExhausted, req.Symbol, req.Timeframe, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case errors.Is(err, apperrors.ErrDataNotFound):
		return nil, nil
	default:
		logger.Warn().Err(err).Str("timeframe", string(req.Timeframe)).Msg("Candle fetch failed")
		return nil, nil
	}

	candles := Normalize(raw)
	if !req.ExtendedSession {
		candles = TrimSession(candles, req.Timeframe)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, fp, candles); err != nil {
			logger.Warn().Err(err).Str("fingerprint", fp).Msg("Cache write failed")
		}
	}
	return candles, nil
}

// Normalize converts timestamps to market time, sorts ascending and drops
// repeated timestamps, keeping the first occurrence.
func Normalize(raw []models.Candle) []models.Candle {
	out := make([]models.Candle, len(raw))
	for i, c := range raw {
		c.Timestamp = c.Timestamp.In(utils.MarketLocation)
		out[i] = c
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for i, c := range out {
		if i > 0 && c.Timestamp.Equal(deduped[len(deduped)-1].Timestamp) {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

// TrimSession keeps regular-session candles: 09:30-15:59 for minutes,
// 09:00-15:59 for hours. Other timeframes pass through.
func TrimSession(candles []models.Candle, tf models.Timeframe) []models.Candle {
	var window utils.Window
	switch tf {
	case models.TimeframeMinute:
		window = utils.RegularSession
	case models.TimeframeHour:
		window = utils.HourlySession
	default:
		return candles
	}

	out := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if window.Contains(c.Timestamp) {
			out = append(out, c)
		}
	}
	return out
}
