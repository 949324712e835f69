package scanner

import (
	"context"

	"pattern-scanner/internal/models"
	"pattern-scanner/pkg/utils"
)

// sessionBreak is the first bar of a day leaving the previous after-hours range.
type sessionBreak struct {
	Index    int // into the full minute series
	Side     models.Side
	Price    float64
	Previous extremes
	PrevFrom models.Candle
	PrevTo   models.Candle
}

// findSessionBreaks looks, for every day after the first, at the previous
// day's 16:00-20:00 bars. Bars of the current day (the whole day when
// wholeDay is set, otherwise the regular session) are skipped until the volume
// traded before them reaches minVolume; the first bar above the after-hours
// high or below its low is the day's break. Days whose previous after-hours
// window is empty are skipped.
func findSessionBreaks(minute []models.Candle, wholeDay bool, minVolume float64) []sessionBreak {
	days := splitDays(minute)
	var out []sessionBreak
	for d := 1; d < len(days); d++ {
		prev, _ := within(days[d-1].Bars, utils.AfterHours)
		ah, ok := summarize(prev)
		if !ok {
			continue
		}

		bars, idx := days[d].Bars, make([]int, len(days[d].Bars))
		for i := range idx {
			idx[i] = i
		}
		if !wholeDay {
			bars, idx = within(days[d].Bars, utils.RegularSession)
		}

		var traded float64
		for j, bar := range bars {
			before := traded
			traded += bar.Volume
			if before < minVolume {
				continue
			}

			var side models.Side
			price := 0.0
			switch {
			case bar.High > ah.High:
				side, price = models.SideUpper, bar.High
				if bar.Open > ah.High {
					price = bar.Open
				}
			case bar.Low < ah.Low:
				side, price = models.SideLower, bar.Low
				if bar.Open < ah.Low {
					price = bar.Open
				}
			default:
				continue
			}
			out = append(out, sessionBreak{
				Index:    days[d].Offset + idx[j],
				Side:     side,
				Price:    price,
				Previous: ah,
				PrevFrom: prev[0],
				PrevTo:   prev[len(prev)-1],
			})
			break
		}
	}
	return out
}

type ahpmDetector struct {
	base
}

func newAHPMBreakout(sc ScanContext, deps Deps) *ahpmDetector {
	return &ahpmDetector{base: newBase(FamilyPMAMBreakout, sc, deps)}
}

func (d *ahpmDetector) Scan(ctx context.Context, s *Series) ([]models.Event, error) {
	out := &sink{b: &d.base}
	minute := s.Minute
	breaks := findSessionBreaks(minute, d.sc.BreakoutInPreMarket, d.sc.MinTradedVolume)
	for k, br := range breaks {
		to := len(minute)
		if k+1 < len(breaks) {
			to = breaks[k+1].Index + 1
		}
		trigger := minute[br.Index]
		target := trigger.High
		if br.Side == models.SideLower {
			target = trigger.Low
		}

		ev := models.Event{Scan: ScanAHPMBreakout, Time: trigger.Timestamp, Price: br.Price, Side: br.Side}
		ev.Metrics.Set("prev_ah_pm_high", br.Previous.High)
		ev.Metrics.Set("prev_ah_pm_low", br.Previous.Low)
		ev.Metrics.Set("prev_ah_pm_start_time", br.PrevFrom.Timestamp)
		ev.Metrics.Set("prev_ah_pm_end_time", br.PrevTo.Timestamp)
		ev.Metrics.Set("trigger_price", br.Price)

		// The trigger bar is inside the window, so refinement always succeeds.
		r, _ := refine(minute, br.Index, to, br.Side, target)
		ev.Time, ev.Price = r.Bar.Timestamp, r.Price
		setRefined(&ev.Metrics, minute, r, "breakout_volume")
		ev.Metrics.Set("breakout_to_high", distance(r.Window.High, r.Price))
		ev.Metrics.Set("breakout_to_low", distance(r.Window.Low, r.Price))
		ev.Metrics.Set("breakout_to_close", distance(r.Close, r.Price))

		if err := out.emit(ctx, ev); err != nil {
			return out.events, err
		}
	}
	return out.events, nil
}
