// Package scanner implements the pattern detectors and runs them across a
// symbol universe.
package scanner

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pattern-scanner/internal/candles"
	apperrors "pattern-scanner/internal/errors"
	"pattern-scanner/internal/logging"
	"pattern-scanner/internal/models"
)

// CandleSource serves candle sequences. *candles.Store implements it.
type CandleSource interface {
	Candles(ctx context.Context, req candles.Request) ([]models.Candle, error)
}

// DetailsProvider returns the descriptive attributes attached to events.
type DetailsProvider interface {
	Details(ctx context.Context, symbol string, date time.Time) (models.TickerDetails, error)
}

// Deps are the collaborators shared by every detector of a run.
type Deps struct {
	Candles CandleSource
	// Details may be nil, in which case events carry empty details.
	Details DetailsProvider
	Logger  zerolog.Logger
}

// Detector scans one symbol for one family.
type Detector interface {
	Family() Family
	Symbol() string
	// FilterAndFetch loads the daily candles, applies the price and liquidity
	// filters, and only then loads minute candles. A nil series means the
	// symbol has nothing to scan.
	FilterAndFetch(ctx context.Context) (*Series, error)
	// Scan returns the events found in s in detection order. On error the
	// events found so far are returned with it.
	Scan(ctx context.Context, s *Series) ([]models.Event, error)
}

// Run filters, fetches and scans with d.
func Run(ctx context.Context, d Detector) ([]models.Event, error) {
	series, err := d.FilterAndFetch(ctx)
	if err != nil || series == nil {
		return nil, err
	}
	return d.Scan(ctx, series)
}

// base carries the behavior shared by all detectors.
type base struct {
	family Family
	sc     ScanContext
	deps   Deps
	logger zerolog.Logger
	// dailyOnly detectors never load minute candles.
	dailyOnly bool
}

func newBase(f Family, sc ScanContext, deps Deps) base {
	return base{
		family: f,
		sc:     sc,
		deps:   deps,
		logger: logging.WithSymbol(deps.Logger, sc.Symbol).With().Str("family", string(f)).Logger(),
	}
}

func (b *base) Family() Family { return b.family }
func (b *base) Symbol() string { return b.sc.Symbol }

func (b *base) request(tf models.Timeframe) candles.Request {
	return candles.Request{
		Symbol:          b.sc.Symbol,
		Timeframe:       tf,
		Multiplier:      1,
		Start:           b.sc.Start,
		End:             b.sc.End,
		Adjusted:        b.sc.Adjusted,
		ExtendedSession: b.sc.ExtendedSession,
	}
}

func (b *base) FilterAndFetch(ctx context.Context) (*Series, error) {
	daily, err := b.deps.Candles.Candles(ctx, b.request(models.TimeframeDay))
	if err != nil {
		return nil, apperrors.NewScanError(string(b.family), b.sc.Symbol, "daily candles", err)
	}
	if len(daily) == 0 {
		b.logger.Debug().Msg("No daily candles")
		return nil, nil
	}
	if !b.passesFilters(daily) {
		return nil, nil
	}

	series := &Series{Daily: daily}
	if b.dailyOnly {
		return series, nil
	}

	minute, err := b.deps.Candles.Candles(ctx, b.request(models.TimeframeMinute))
	if err != nil {
		return nil, apperrors.NewScanError(string(b.family), b.sc.Symbol, "minute candles", err)
	}
	if len(minute) == 0 {
		b.logger.Debug().Msg("No minute candles")
		return nil, nil
	}
	series.Minute = minute
	return series, nil
}

// passesFilters applies the last price, average volume and average turnover
// filters in that order.
func (b *base) passesFilters(daily []models.Candle) bool {
	last := daily[len(daily)-1].Close
	if last < b.sc.MinPrice || last > b.sc.MaxPrice {
		b.logger.Debug().Float64("last_price", last).
			Float64("min", b.sc.MinPrice).Float64("max", b.sc.MaxPrice).
			Msg("Last price outside bounds, skipping")
		return false
	}

	var volume, closes float64
	for _, c := range daily {
		volume += c.Volume
		closes += c.Close
	}
	avgVolume := volume / float64(len(daily))
	if avgVolume < b.sc.MinAverageVolume {
		b.logger.Debug().Float64("avg_volume", avgVolume).
			Float64("min", b.sc.MinAverageVolume).Msg("Average volume too low, skipping")
		return false
	}

	turnover := avgVolume * (closes / float64(len(daily)))
	if turnover < b.sc.MinAverageTurnover {
		b.logger.Debug().Float64("avg_turnover", turnover).
			Float64("min", b.sc.MinAverageTurnover).Msg("Average turnover too low, skipping")
		return false
	}
	return true
}

// sink collects enriched events in detection order.
type sink struct {
	b      *base
	events []models.Event
}

// emit enriches ev with the details of its day and appends it.
func (s *sink) emit(ctx context.Context, ev models.Event) error {
	ev.Symbol = s.b.sc.Symbol
	if s.b.deps.Details != nil {
		details, err := s.b.deps.Details.Details(ctx, ev.Symbol, ev.Time)
		if err != nil {
			return apperrors.NewScanError(string(s.b.family), ev.Symbol, "enrich", err)
		}
		ev.Details = details
	}
	logging.LogEvent(s.b.logger, ev.Scan, ev.Time, ev.Price)
	s.events = append(s.events, ev)
	return nil
}
