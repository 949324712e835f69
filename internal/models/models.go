// Package models provides domain models for the pattern scanner.
package models

import (
	"time"
)

// Timeframe represents the bucket size of a candle.
type Timeframe string

const (
	TimeframeMinute Timeframe = "minute"
	TimeframeHour   Timeframe = "hour"
	TimeframeDay    Timeframe = "day"
	TimeframeWeek   Timeframe = "week"
	TimeframeMonth  Timeframe = "month"
)

// Intraday reports whether candles of this timeframe fall inside a single session.
func (t Timeframe) Intraday() bool {
	return t == TimeframeMinute || t == TimeframeHour
}

// Side represents the direction of a breakout or run.
type Side string

const (
	SideUpper Side = "upper"
	SideLower Side = "lower"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

// Change returns the candle body as a percentage of its open.
func (c Candle) Change() float64 {
	if c.Open == 0 {
		return 0
	}
	return (c.Close - c.Open) / c.Open * 100
}

// Green reports whether the candle closed above its open.
func (c Candle) Green() bool {
	return c.Close > c.Open
}

// Red reports whether the candle opened above its close.
func (c Candle) Red() bool {
	return c.Open > c.Close
}

// Date returns the calendar day of the candle in its own location.
func (c Candle) Date() time.Time {
	y, m, d := c.Timestamp.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Timestamp.Location())
}
