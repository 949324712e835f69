package scanner

import (
	"context"
	"time"

	"pattern-scanner/internal/models"
	"pattern-scanner/pkg/utils"
)

// findSplitMoves starts a move at every daily bar and walks forward at most
// maxDays bars, measuring each bar's high against the start open. The first
// bar where size and cumulative volume reach their floors ends the move.
func findSplitMoves(bars []models.Candle, maxDays int, minSize, minVolume float64) []moveHit {
	var out []moveHit
	for i, start := range bars {
		if start.Open <= 0 {
			continue
		}
		mv := move{StartTime: start.Timestamp, StartPrice: start.Open}
		for j := i; j < len(bars) && mv.Days < maxDays; j++ {
			mv.add(bars[j], bars[j].High)
			if mv.reached(minSize, minVolume, maxDays) {
				out = append(out, moveHit{Index: j, Move: mv})
				break
			}
		}
	}
	return out
}

type reverseSplitDetector struct {
	base
}

func newReverseSplit(sc ScanContext, deps Deps) *reverseSplitDetector {
	return &reverseSplitDetector{base: newBase(FamilyReverseSplit, sc, deps)}
}

// FilterAndFetch yields nothing for symbols without a split.
func (d *reverseSplitDetector) FilterAndFetch(ctx context.Context) (*Series, error) {
	if d.sc.Split == nil {
		d.logger.Debug().Msg("No reverse split on record, skipping")
		return nil, nil
	}
	return d.base.FilterAndFetch(ctx)
}

func (d *reverseSplitDetector) Scan(ctx context.Context, s *Series) ([]models.Event, error) {
	out := &sink{b: &d.base}
	if d.sc.Split == nil {
		return nil, nil
	}
	minute := s.Minute
	hits := findSplitMoves(s.Daily, d.sc.MoveDays, d.sc.MinMoveSize, d.sc.MinMoveVolume)
	for k, hit := range hits {
		bar := s.Daily[hit.Index]
		var next time.Time
		if k+1 < len(hits) {
			next = s.Daily[hits[k+1].Index].Timestamp
		}

		ev := models.Event{Scan: ScanReverseSplit, Time: bar.Timestamp, Price: bar.High}
		m := &ev.Metrics
		m.Set("split_date", d.sc.Split.Date.Format("2006-01-02"))
		m.Set("split_ratio", d.sc.Split.Ratio)
		setMove(m, hit.Move, bar.Timestamp, bar.High)

		from, to := dayRange(minute, bar.Timestamp, next)
		if r, ok := refine(minute, from, to, models.SideUpper, bar.High); ok {
			ev.Time, ev.Price = r.Bar.Timestamp, r.Price
			m.Set("reverse_time", r.Bar.Timestamp)
			m.Set("reverse_price", r.Price)
			m.Set("reverse_volume", r.Bar.Volume)
			m.Set("open", r.Bar.Open)
			m.Set("high", r.Bar.High)
			m.Set("low", r.Bar.Low)
			m.Set("close", r.Bar.Close)
			m.Set("high_time", r.Window.HighTime)
			d.setSessionContext(m, minute, bar.Timestamp)
		}

		if err := out.emit(ctx, ev); err != nil {
			return out.events, err
		}
	}
	return out.events, nil
}

// setSessionContext adds the gap from the previous trading day's close and the
// pre-market range of day.
func (d *reverseSplitDetector) setSessionContext(m *models.Metrics, minute []models.Candle, day time.Time) {
	from, to := dayRange(minute, day, day)
	if from >= to {
		return
	}
	if prev, ok := previousClose(minute, from); ok {
		m.Set("prev_close", prev)
		m.Set("gap_percent", pctChange(prev, minute[from].Open))
	}
	pm, _ := within(minute[from:to], utils.PreMarket)
	if e, ok := summarize(pm); ok {
		m.Set("pm_high", e.High)
		m.Set("pm_low", e.Low)
		m.Set("pm_volume", e.Volume)
	}
}
