package scanner

import (
	"context"
	"time"

	"pattern-scanner/internal/models"
)

const (
	delistingLookback = 30
	delistingPrice    = 1.0
)

// move accumulates a multi-day excursion from a start day's open.
type move struct {
	StartTime  time.Time
	StartPrice float64
	Days       int
	GreenDays  int
	RedDays    int
	Volume     float64
	Range      float64
	SizePct    float64
}

// add extends the move by bar, measuring its size with price.
func (m *move) add(bar models.Candle, price float64) {
	m.Days++
	m.Volume += bar.Volume
	switch {
	case bar.Green():
		m.GreenDays++
	case bar.Red():
		m.RedDays++
	}
	m.Range = price - m.StartPrice
	m.SizePct = pctChange(m.StartPrice, price)
}

func (m *move) reached(minSize, minVolume float64, maxDays int) bool {
	return m.SizePct >= minSize && m.Volume >= minVolume && m.Days <= maxDays
}

// moveHit is a completed move ending at Index.
type moveHit struct {
	Index int
	Move  move
}

// rollingHigh returns the highest high of the lookback bars ending at i.
func rollingHigh(bars []models.Candle, i, lookback int) float64 {
	hi := bars[i-lookback+1].High
	for _, c := range bars[i-lookback+2 : i+1] {
		if c.High > hi {
			hi = c.High
		}
	}
	return hi
}

// findDelistingMoves scans daily bars once 30 bars of history exist. The gate
// is the 30-day high: pre-notice moves need it at or above $1, post-notice
// moves need it below $1. A pre-notice move starts on a bar whose own high is
// under $1; a post-notice move starts on any bar while the gate holds. From its
// start the move measures close against the start open and completes when size
// and volume both reach their floors within maxDays. A move that outlives
// maxDays, or whose gate stops holding, is dropped and the gate is checked
// again from the next bar.
func findDelistingMoves(bars []models.Candle, post bool, maxDays int, minSize, minVolume float64) []moveHit {
	var out []moveHit
	var cur *move
	for i := delistingLookback - 1; i < len(bars); i++ {
		bar := bars[i]
		gate := rollingHigh(bars, i, delistingLookback) >= delistingPrice
		if post {
			gate = !gate
		}
		if !gate {
			cur = nil
			continue
		}
		if cur == nil {
			if (!post && bar.High >= delistingPrice) || bar.Open <= 0 {
				continue
			}
			cur = &move{StartTime: bar.Timestamp, StartPrice: bar.Open}
		}

		cur.add(bar, bar.Close)
		if cur.reached(minSize, minVolume, maxDays) {
			out = append(out, moveHit{Index: i, Move: *cur})
			cur = nil
			continue
		}
		if cur.Days >= maxDays {
			cur = nil
		}
	}
	return out
}

type delistingDetector struct {
	base
	post bool
}

func newDelisting(sc ScanContext, deps Deps, post bool) *delistingDetector {
	f := FamilyDelistingPreNotice
	if post {
		f = FamilyDelistingPostNotice
	}
	d := &delistingDetector{base: newBase(f, sc, deps), post: post}
	d.dailyOnly = true
	return d
}

func (d *delistingDetector) Scan(ctx context.Context, s *Series) ([]models.Event, error) {
	out := &sink{b: &d.base}
	name := ScanDelistingPreNotice
	if d.post {
		name = ScanDelistingPostMove
	}
	for _, hit := range findDelistingMoves(s.Daily, d.post, d.sc.MoveDays, d.sc.MinMoveSize, d.sc.MinMoveVolume) {
		bar := s.Daily[hit.Index]
		ev := models.Event{Scan: name, Time: bar.Timestamp, Price: bar.Close}
		setMove(&ev.Metrics, hit.Move, bar.Timestamp, bar.Close)
		if err := out.emit(ctx, ev); err != nil {
			return out.events, err
		}
	}
	return out.events, nil
}

func setMove(m *models.Metrics, mv move, end time.Time, endPrice float64) {
	m.Set("move_size_percent", mv.SizePct)
	m.Set("move_range", mv.Range)
	m.Set("move_start_time", mv.StartTime)
	m.Set("move_start_price", mv.StartPrice)
	m.Set("move_end_time", end)
	m.Set("move_end_price", endPrice)
	m.Set("move_days", mv.Days)
	m.Set("move_green_days", mv.GreenDays)
	m.Set("move_red_days", mv.RedDays)
	m.Set("move_volume", mv.Volume)
}
