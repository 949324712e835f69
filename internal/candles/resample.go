package candles

import (
	"time"

	"pattern-scanner/internal/models"
)

// Resample aggregates daily candles into weekly or monthly bars labelled with
// the bucket start (Monday, or the first of the month) at midnight market time.
// Open is the first open, close the last close, volume the sum.
func Resample(daily []models.Candle, tf models.Timeframe) []models.Candle {
	if tf != models.TimeframeWeek && tf != models.TimeframeMonth {
		return daily
	}

	var out []models.Candle
	for _, c := range daily {
		label := bucketStart(c.Timestamp, tf)
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(label) {
			bar := &out[n-1]
			if c.High > bar.High {
				bar.High = c.High
			}
			if c.Low < bar.Low {
				bar.Low = c.Low
			}
			bar.Close = c.Close
			bar.Volume += c.Volume
			continue
		}
		out = append(out, models.Candle{
			Timestamp: label,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}
	return out
}

func bucketStart(t time.Time, tf models.Timeframe) time.Time {
	y, m, d := t.Date()
	if tf == models.TimeframeMonth {
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	}
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}
