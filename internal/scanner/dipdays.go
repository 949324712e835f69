package scanner

import (
	"context"
	"time"

	"pattern-scanner/internal/models"
)

// dipDaysState tracks the first move, red candles and bounce phases.
type dipDaysState struct {
	firstMoveDone  bool
	openBeforeMove float64
	moveStart      time.Time
	moveEnd        time.Time
	moveCandles    int
	moveSize       float64
	redCandles     int
	bounceStart    time.Time
	bounceCandles  int
	bounceSize     float64
}

func (s *dipDaysState) reset() {
	open := s.openBeforeMove
	*s = dipDaysState{openBeforeMove: open}
}

// dipDaysHit is a completed first move, pullback and bounce.
type dipDaysHit struct {
	Index int
	State dipDaysState
}

// findDipBuyDays walks daily bars from the second one. Green (non-negative)
// candles accumulate the first move until it reaches minFirstMove. Red
// candles are then counted; once minRed is reached, green candles opening
// above the open of the day before the first move accumulate the bounce. The
// bar where the bounce reaches minBounce is a hit. A red candle during the
// first move or the bounce, a green candle before enough red candles, or a
// bounce candle opening too low resets everything.
func findDipBuyDays(bars []models.Candle, minFirstMove float64, minRed int, minBounce float64) []dipDaysHit {
	var hits []dipDaysHit
	var st dipDaysState
	for i := 1; i < len(bars); i++ {
		bar := bars[i]
		change := bar.Change()
		reset := false

		if st.firstMoveDone && st.redCandles >= minRed && change >= 0 {
			if !(bar.Open > st.openBeforeMove) {
				reset = true
			} else {
				st.bounceSize += change
				st.bounceCandles++
				if st.bounceStart.IsZero() {
					st.bounceStart = bar.Timestamp
				}
				if st.bounceSize >= minBounce {
					hits = append(hits, dipDaysHit{Index: i, State: st})
					reset = true
				}
			}
		}

		if st.firstMoveDone {
			if change < 0 {
				if st.bounceCandles > 0 {
					reset = true
				} else {
					st.redCandles++
				}
			} else if st.bounceCandles == 0 {
				reset = true
			}
		} else {
			if change >= 0 {
				st.moveSize += change
				st.moveCandles++
				if st.moveStart.IsZero() {
					st.moveStart = bar.Timestamp
					st.openBeforeMove = bars[i-1].Open
				}
				if st.moveSize >= minFirstMove {
					st.firstMoveDone = true
					st.moveEnd = bar.Timestamp
				}
			} else {
				reset = true
			}
		}

		if reset {
			st.reset()
		}
	}
	return hits
}

type dipBuyDaysDetector struct {
	base
}

func newDipBuyDays(sc ScanContext, deps Deps) *dipBuyDaysDetector {
	d := &dipBuyDaysDetector{base: newBase(FamilyDipBuyDays, sc, deps)}
	d.dailyOnly = true
	return d
}

func (d *dipBuyDaysDetector) Scan(ctx context.Context, s *Series) ([]models.Event, error) {
	out := &sink{b: &d.base}
	for _, hit := range findDipBuyDays(s.Daily, d.sc.MinFirstMovePercent, d.sc.MinRedCandles, d.sc.MinBouncePercent) {
		bar := s.Daily[hit.Index]
		st := hit.State
		ev := models.Event{Scan: ScanDipBuyDays, Time: bar.Timestamp, Price: bar.Close}
		ev.Metrics.Set("open_of_day_before_first_move", st.openBeforeMove)
		ev.Metrics.Set("first_move_start_time", st.moveStart)
		ev.Metrics.Set("first_move_end_time", st.moveEnd)
		ev.Metrics.Set("first_move_candles", st.moveCandles)
		ev.Metrics.Set("first_move_size", st.moveSize)
		ev.Metrics.Set("number_of_red_candles", st.redCandles)
		ev.Metrics.Set("bounce_start_time", st.bounceStart)
		ev.Metrics.Set("bounce_end_time", bar.Timestamp)
		ev.Metrics.Set("bounce_candles", st.bounceCandles)
		ev.Metrics.Set("bounce_size", st.bounceSize)
		if err := out.emit(ctx, ev); err != nil {
			return out.events, err
		}
	}
	return out.events, nil
}
