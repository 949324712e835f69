package scanner

import (
	"context"

	"pattern-scanner/internal/models"
)

// runAt reports the side of a run of period candles ending at i: upper when
// every candle closed above its open, lower when every candle opened above its
// close. At most one can hold.
func runAt(bars []models.Candle, i, period int) (models.Side, bool) {
	if period <= 0 || i < period || i >= len(bars) {
		return "", false
	}
	green, red := true, true
	for _, c := range bars[i-period+1 : i+1] {
		green = green && c.Green()
		red = red && c.Red()
	}
	switch {
	case green:
		return models.SideUpper, true
	case red:
		return models.SideLower, true
	}
	return "", false
}

type runnersDetector struct {
	base
}

func newRunners(sc ScanContext, deps Deps) *runnersDetector {
	d := &runnersDetector{base: newBase(FamilyMultiDayRunners, sc, deps)}
	d.dailyOnly = true
	return d
}

func (d *runnersDetector) Scan(ctx context.Context, s *Series) ([]models.Event, error) {
	out := &sink{b: &d.base}
	period := d.sc.RunnersPeriod
	for i, bar := range s.Daily {
		side, ok := runAt(s.Daily, i, period)
		if !ok {
			continue
		}
		start := s.Daily[i-period+1]
		ev := models.Event{Scan: ScanMultiDayRunners, Time: bar.Timestamp, Price: bar.Close, Side: side}
		ev.Metrics.Set("candles", period)
		ev.Metrics.Set("start_time", start.Timestamp)
		ev.Metrics.Set("start_price", start.Open)
		if err := out.emit(ctx, ev); err != nil {
			return out.events, err
		}
	}
	return out.events, nil
}
