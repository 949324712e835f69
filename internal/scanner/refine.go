package scanner

import (
	"math"
	"sort"
	"time"

	"pattern-scanner/internal/models"
	"pattern-scanner/pkg/utils"
)

// dayKey identifies a calendar day in market time.
func dayKey(t time.Time) int {
	y, m, d := t.In(utils.MarketLocation).Date()
	return y*10000 + int(m)*100 + d
}

// dayRange returns the index range [from, to) of minute bars whose day lies
// between the days of first and last, both included. last may be zero to run
// to the end of the series.
func dayRange(minute []models.Candle, first, last time.Time) (int, int) {
	lo := dayKey(first)
	from := sort.Search(len(minute), func(i int) bool { return dayKey(minute[i].Timestamp) >= lo })
	if last.IsZero() {
		return from, len(minute)
	}
	hi := dayKey(last)
	to := sort.Search(len(minute), func(i int) bool { return dayKey(minute[i].Timestamp) > hi })
	if to < from {
		to = from
	}
	return from, to
}

// sessionDay is the run of minute bars sharing one calendar day.
type sessionDay struct {
	Key  int
	Bars []models.Candle
	// Offset is the index of Bars[0] in the full minute series.
	Offset int
}

// splitDays groups an ordered minute series by day.
func splitDays(minute []models.Candle) []sessionDay {
	var days []sessionDay
	for i, c := range minute {
		k := dayKey(c.Timestamp)
		if n := len(days); n > 0 && days[n-1].Key == k {
			days[n-1].Bars = minute[days[n-1].Offset : i+1]
			continue
		}
		days = append(days, sessionDay{Key: k, Bars: minute[i : i+1], Offset: i})
	}
	return days
}

// within returns the bars of day inside w, keeping their offsets relative to day.Bars.
func within(bars []models.Candle, w utils.Window) ([]models.Candle, []int) {
	var out []models.Candle
	var idx []int
	for i, c := range bars {
		if w.Contains(c.Timestamp) {
			out = append(out, c)
			idx = append(idx, i)
		}
	}
	return out, idx
}

// extremes summarizes bars.
type extremes struct {
	High, Low         float64
	HighTime, LowTime time.Time
	Volume            float64
}

func summarize(bars []models.Candle) (extremes, bool) {
	if len(bars) == 0 {
		return extremes{}, false
	}
	e := extremes{High: math.Inf(-1), Low: math.Inf(1)}
	for _, c := range bars {
		if c.High > e.High {
			e.High, e.HighTime = c.High, c.Timestamp
		}
		if c.Low < e.Low {
			e.Low, e.LowTime = c.Low, c.Timestamp
		}
		e.Volume += c.Volume
	}
	return e, true
}

// refinement is the minute bar that best matches a coarse trigger, plus
// reporting-only context measured from it.
type refinement struct {
	Index  int // index into the full minute series
	Bar    models.Candle
	Price  float64
	Window extremes
	Close  float64 // last close of the window
}

// refine scans minute[from:to] for the bar whose high (upper side) or low
// (lower side) is closest to target. The first bar wins ties.
func refine(minute []models.Candle, from, to int, side models.Side, target float64) (refinement, bool) {
	if from < 0 || from >= to || to > len(minute) {
		return refinement{}, false
	}
	window := minute[from:to]
	best, bestDiff := -1, math.Inf(1)
	for i, c := range window {
		v := c.High
		if side == models.SideLower {
			v = c.Low
		}
		if d := math.Abs(v - target); d < bestDiff {
			best, bestDiff = i, d
		}
	}
	ext, _ := summarize(window)
	r := refinement{
		Index:  from + best,
		Bar:    window[best],
		Window: ext,
		Close:  window[len(window)-1].Close,
	}
	r.Price = r.Bar.High
	if side == models.SideLower {
		r.Price = r.Bar.Low
	}
	return r, true
}

// forwardChange is the percent change of x from bar i to bar i+n, rounded to 3 places.
func forwardChange(minute []models.Candle, i, n int, x func(models.Candle) float64) (float64, bool) {
	if i+n >= len(minute) {
		return 0, false
	}
	base := x(minute[i])
	if base == 0 {
		return 0, false
	}
	return utils.Round((x(minute[i+n])-base)/base*100, 3), true
}

// forwardVolume sums the volume of the n bars after i.
func forwardVolume(minute []models.Candle, i, n int) (float64, bool) {
	if i+n >= len(minute) {
		return 0, false
	}
	var v float64
	for _, c := range minute[i+1 : i+n+1] {
		v += c.Volume
	}
	return v, true
}

func closeOf(c models.Candle) float64  { return c.Close }
func volumeOf(c models.Candle) float64 { return c.Volume }

// distance is |a-ref|/ref as a percentage rounded to 2 places.
func distance(a, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return utils.Round(math.Abs(a-ref)/ref*100, 2)
}

// setOptional records v under name, or an empty value when !ok.
func setOptional(m *models.Metrics, name string, v float64, ok bool) {
	if !ok {
		m.Set(name, nil)
		return
	}
	m.Set(name, v)
}

// setRefined appends the minute level metrics shared by breakout style scans.
func setRefined(m *models.Metrics, minute []models.Candle, r refinement, volumeName string) {
	m.Set("open", r.Bar.Open)
	m.Set("high", r.Bar.High)
	m.Set("low", r.Bar.Low)
	m.Set("close", r.Bar.Close)
	m.Set("high_time", r.Window.HighTime)
	m.Set("low_time", r.Window.LowTime)
	m.Set(volumeName, r.Bar.Volume)
	v, ok := forwardChange(minute, r.Index, 5, closeOf)
	setOptional(m, "price_change_5min", v, ok)
	v, ok = forwardChange(minute, r.Index, 15, closeOf)
	setOptional(m, "price_change_15min", v, ok)
	v, ok = forwardChange(minute, r.Index, 5, volumeOf)
	setOptional(m, "volume_change_5min", v, ok)
	v, ok = forwardChange(minute, r.Index, 15, volumeOf)
	setOptional(m, "volume_change_15min", v, ok)
}

// pctChange is (to-from)/from as a percentage; 0 when from is 0.
func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// previousClose returns the last close of the day before the one starting at
// minute[dayStart], or false when no earlier bar exists.
func previousClose(minute []models.Candle, dayStart int) (float64, bool) {
	if dayStart <= 0 || dayStart > len(minute) {
		return 0, false
	}
	return minute[dayStart-1].Close, true
}
