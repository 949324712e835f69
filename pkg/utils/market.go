package utils

import (
	"fmt"
	"time"
)

// MarketLocation is the timezone US equity sessions are defined in.
var MarketLocation *time.Location

func init() {
	var err error
	MarketLocation, err = time.LoadLocation("America/New_York")
	if err != nil {
		// Fallback to EST without daylight saving
		MarketLocation = time.FixedZone("EST", -5*60*60)
	}
}

// Clock is a wall-clock time of day with minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

// minutes returns the minutes elapsed since midnight.
func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ClockOf returns the time of day of t in t's own location.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// Window is an inclusive time-of-day range, e.g. 09:30-15:59.
type Window struct {
	From Clock
	To   Clock
}

// Contains reports whether t's time of day lies within the window, both ends included.
func (w Window) Contains(t time.Time) bool {
	m := ClockOf(t).minutes()
	return m >= w.From.minutes() && m <= w.To.minutes()
}

func (w Window) String() string {
	return w.From.String() + "-" + w.To.String()
}

// Session windows in market time.
var (
	PreMarket       = Window{From: Clock{4, 0}, To: Clock{9, 29}}
	RegularSession  = Window{From: Clock{9, 30}, To: Clock{15, 59}}
	AfterHours      = Window{From: Clock{16, 0}, To: Clock{20, 0}}
	HourlySession   = Window{From: Clock{9, 0}, To: Clock{15, 59}}
	EndOfDayCutover = Clock{14, 0}
)

// ReachedBy reports whether t's time of day is at or after c.
func (c Clock) ReachedBy(t time.Time) bool {
	return ClockOf(t).minutes() >= c.minutes()
}

// DateOnly truncates t to midnight in its own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
