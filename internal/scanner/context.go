package scanner

import (
	"time"

	"pattern-scanner/internal/config"
	"pattern-scanner/internal/models"
	"pattern-scanner/pkg/utils"
)

// Thresholds holds the detector specific parameters.
type Thresholds struct {
	DailyBreakoutPeriod   int
	WeeklyBreakoutPeriod  int
	MonthlyBreakoutPeriod int
	RunnersPeriod         int

	// MinTradedVolume gates intraday triggers on the session volume traded before the bar.
	MinTradedVolume float64

	MinFirstMovePercent float64
	MinRedCandles       int
	MinBouncePercent    float64

	// BreakoutInPreMarket scans the whole extended day instead of the regular session.
	BreakoutInPreMarket bool

	MinEODDipPercent       float64
	MinEODDipBoughtPercent float64
	MinGapDownPercent      float64
	MinDipBoughtPercent    float64
	MinRange               float64

	MoveDays      int
	MinMoveSize   float64
	MinMoveVolume float64

	// Split is set only for reverse split scans.
	Split *models.ReverseSplit
}

// ScanContext is the immutable configuration of one (family, symbol) scan.
type ScanContext struct {
	Symbol             string
	Start              time.Time
	End                time.Time
	MinPrice           float64
	MaxPrice           float64
	MinAverageVolume   float64
	MinAverageTurnover float64
	Adjusted           bool
	ExtendedSession    bool
	Thresholds
}

// ContextFromParams builds the scan context of symbol from the run parameters.
func ContextFromParams(p *config.RunParams, symbol string) ScanContext {
	return ScanContext{
		Symbol:             symbol,
		Start:              p.StartDate.Time,
		End:                p.EndDate.Time,
		MinPrice:           p.MinimumPrice,
		MaxPrice:           p.MaximumPrice,
		MinAverageVolume:   p.MinimumAverageVolume,
		MinAverageTurnover: p.MinimumAverageTurnover,
		Adjusted:           bool(p.Adjusted),
		ExtendedSession:    p.ExtendedSession(),
		Thresholds: Thresholds{
			DailyBreakoutPeriod:    p.DailyBreakoutPeriod,
			WeeklyBreakoutPeriod:   p.WeeklyBreakoutPeriod,
			MonthlyBreakoutPeriod:  p.MonthlyBreakoutPeriod,
			RunnersPeriod:          p.MultiDayRunnersPeriod,
			MinTradedVolume:        p.MinimumTradedVolume,
			MinFirstMovePercent:    p.MinimumFirstMoveSizePercent,
			MinRedCandles:          p.MinimumRedCandles,
			MinBouncePercent:       p.MinimumBounceSizePercent,
			BreakoutInPreMarket:    bool(p.AHPMBreakoutInPreMarket),
			MinEODDipPercent:       p.MinimumEODDipPercent,
			MinEODDipBoughtPercent: p.MinimumEODDipBoughtPercent,
			MinGapDownPercent:      p.MinimumGapDownPercent,
			MinDipBoughtPercent:    p.MinimumDipBoughtPercent,
			MinRange:               p.MinimumRange,
			MoveDays:               p.MoveDays,
			MinMoveSize:            p.MinimumMoveSize,
			MinMoveVolume:          p.MinimumMoveVolume,
		},
	}
}

// WithSplit anchors the context on a reverse split: the scan starts on the
// split date, and when that is not before the end date the end moves to today.
func (sc ScanContext) WithSplit(split models.ReverseSplit, today time.Time) ScanContext {
	sc.Split = &split
	sc.Start = split.Date
	if !sc.Start.Before(sc.End) {
		sc.End = utils.DateOnly(today.UTC())
	}
	return sc
}

// Series holds the candles a detector scans.
type Series struct {
	Daily  []models.Candle
	Minute []models.Candle
}
