package scanner

import (
	"context"
	"time"

	"pattern-scanner/internal/candles"
	"pattern-scanner/internal/models"
)

// rangeBreak is a bar that left the range of the bars before it.
type rangeBreak struct {
	Index     int
	Side      models.Side
	Price     float64
	RangeHigh float64
	RangeLow  float64
}

// findRangeBreaks compares every bar i in [period+1, n) with the high/low
// range of bars [i-period, i-1]. The upper side is checked first. The trigger
// price is the open when the bar already opened beyond the level.
func findRangeBreaks(bars []models.Candle, period int) []rangeBreak {
	if period <= 0 {
		return nil
	}
	var out []rangeBreak
	for i := period + 1; i < len(bars); i++ {
		hi, lo := bars[i-period].High, bars[i-period].Low
		for _, c := range bars[i-period+1 : i] {
			if c.High > hi {
				hi = c.High
			}
			if c.Low < lo {
				lo = c.Low
			}
		}

		bar := bars[i]
		switch {
		case bar.High > hi:
			price := bar.High
			if bar.Open > hi {
				price = bar.Open
			}
			out = append(out, rangeBreak{Index: i, Side: models.SideUpper, Price: price, RangeHigh: hi, RangeLow: lo})
		case bar.Low < lo:
			price := bar.Low
			if bar.Open < lo {
				price = bar.Open
			}
			out = append(out, rangeBreak{Index: i, Side: models.SideLower, Price: price, RangeHigh: hi, RangeLow: lo})
		}
	}
	return out
}

type breakoutDetector struct {
	base
}

func newBreakout(sc ScanContext, deps Deps) *breakoutDetector {
	return &breakoutDetector{base: newBase(FamilyCandleBreakout, sc, deps)}
}

// Scan runs the daily, weekly and monthly variants in that order.
func (d *breakoutDetector) Scan(ctx context.Context, s *Series) ([]models.Event, error) {
	out := &sink{b: &d.base}
	variants := []struct {
		name   string
		tf     models.Timeframe
		period int
	}{
		{ScanMultiDayBreakout, models.TimeframeDay, d.sc.DailyBreakoutPeriod},
		{ScanMultiWeekBreakout, models.TimeframeWeek, d.sc.WeeklyBreakoutPeriod},
		{ScanMultiMonthBreakout, models.TimeframeMonth, d.sc.MonthlyBreakoutPeriod},
	}
	for _, v := range variants {
		bars := candles.Resample(s.Daily, v.tf)
		if err := d.scanBars(ctx, out, v.name, bars, v.period, s.Minute); err != nil {
			return out.events, err
		}
	}
	return out.events, nil
}

func (d *breakoutDetector) scanBars(ctx context.Context, out *sink, name string, bars []models.Candle, period int, minute []models.Candle) error {
	breaks := findRangeBreaks(bars, period)
	for k, br := range breaks {
		bar := bars[br.Index]
		var next time.Time
		if k+1 < len(breaks) {
			next = bars[breaks[k+1].Index].Timestamp
		}

		ev := models.Event{Scan: name, Time: bar.Timestamp, Price: br.Price, Side: br.Side}
		ev.Metrics.Set("range_high", br.RangeHigh)
		ev.Metrics.Set("range_low", br.RangeLow)
		ev.Metrics.Set("range_start_time", bars[br.Index-period].Timestamp)
		ev.Metrics.Set("range_end_time", bars[br.Index-1].Timestamp)
		ev.Metrics.Set("trigger_price", br.Price)

		target := bar.High
		if br.Side == models.SideLower {
			target = bar.Low
		}
		from, to := dayRange(minute, bar.Timestamp, next)
		if r, ok := refine(minute, from, to, br.Side, target); ok {
			ev.Time, ev.Price = r.Bar.Timestamp, r.Price
			setRefined(&ev.Metrics, minute, r, "breakout_volume")
			ev.Metrics.Set("breakout_to_high", distance(r.Window.High, r.Price))
			ev.Metrics.Set("breakout_to_low", distance(r.Window.Low, r.Price))
			ev.Metrics.Set("breakout_to_close", distance(r.Close, r.Price))
		} else {
			ev.Metrics.Set("open", bar.Open)
			ev.Metrics.Set("high", bar.High)
			ev.Metrics.Set("low", bar.Low)
			ev.Metrics.Set("close", bar.Close)
			ev.Metrics.Set("breakout_volume", bar.Volume)
		}

		if err := out.emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}
