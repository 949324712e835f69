package scanner

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "pattern-scanner/internal/errors"
)

// Family identifies a selectable group of scans.
type Family string

const (
	FamilyCandleBreakout      Family = "candle_breakout"
	FamilyMultiDayRunners     Family = "multi_day_runners"
	FamilyDipBuyDays          Family = "dip_buy_days"
	FamilyPMAMBreakout        Family = "pm_am_breakout"
	FamilyGapDownDipBought    Family = "gap_down_dip_bought"
	FamilyDipBuysIntraday     Family = "dip_buys_intraday"
	FamilyDelistingPreNotice  Family = "delisting_pre_notice"
	FamilyDelistingPostNotice Family = "delisting_post_notice"
	FamilyReverseSplit        Family = "reverse_split"
)

// Scan names written into every event.
const (
	ScanMultiDayBreakout   = "Multi-day-breakout"
	ScanMultiWeekBreakout  = "Multi-week-breakout"
	ScanMultiMonthBreakout = "Multi-month-breakout"
	ScanMultiDayRunners    = "Multiday-Runners"
	ScanDipBuyDays         = "Dip-Buy-Days"
	ScanAHPMBreakout       = "AH-PM Breakout"
	ScanDipBuyIntraday     = "Dip-Buy-Intraday"
	ScanEODDipBuyPanic     = "Eod-Dip-Buy-Panic"
	ScanGapDownDipBought   = "Gap_down_dip_bought"
	ScanDelistingPreNotice = "Delisting-Pre-Notice-Move"
	ScanDelistingPostMove  = "Delisting-Post-Notice-Move"
	ScanReverseSplit       = "Reverse-Split"
)

// familyInfo describes a family in the registry.
type familyInfo struct {
	Family      Family
	Description string
	build       func(sc ScanContext, deps Deps) Detector
}

// registry lists the families in their selection order.
var registry = []familyInfo{
	{FamilyCandleBreakout, "daily, weekly and monthly range breakouts",
		func(sc ScanContext, deps Deps) Detector { return newBreakout(sc, deps) }},
	{FamilyMultiDayRunners, "consecutive green or red daily candles",
		func(sc ScanContext, deps Deps) Detector { return newRunners(sc, deps) }},
	{FamilyDipBuyDays, "first move, red days, then a bounce",
		func(sc ScanContext, deps Deps) Detector { return newDipBuyDays(sc, deps) }},
	{FamilyPMAMBreakout, "break of the previous after-hours range",
		func(sc ScanContext, deps Deps) Detector { return newAHPMBreakout(sc, deps) }},
	{FamilyGapDownDipBought, "gap down whose dip gets bought intraday",
		func(sc ScanContext, deps Deps) Detector { return newDipIntraday(sc, deps, true) }},
	{FamilyDipBuysIntraday, "intraday dip below the prior close that gets bought",
		func(sc ScanContext, deps Deps) Detector { return newDipIntraday(sc, deps, false) }},
	{FamilyDelistingPreNotice, "moves right after the first close under $1",
		func(sc ScanContext, deps Deps) Detector { return newDelisting(sc, deps, false) }},
	{FamilyDelistingPostNotice, "moves after a month under $1",
		func(sc ScanContext, deps Deps) Detector { return newDelisting(sc, deps, true) }},
	{FamilyReverseSplit, "moves following a reverse split",
		func(sc ScanContext, deps Deps) Detector { return newReverseSplit(sc, deps) }},
}

// Families returns the family identifiers in selection order.
func Families() []Family {
	out := make([]Family, len(registry))
	for i, f := range registry {
		out[i] = f.Family
	}
	return out
}

// Describe returns a one-line description of f.
func Describe(f Family) string {
	for _, info := range registry {
		if info.Family == f {
			return info.Description
		}
	}
	return ""
}

// ParseFamily accepts a family identifier or its 1-based position in Families.
func ParseFamily(s string) (Family, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(registry) {
			return "", fmt.Errorf("%w: index %d out of range 1-%d", apperrors.ErrUnknownFamily, n, len(registry))
		}
		return registry[n-1].Family, nil
	}
	for _, info := range registry {
		if string(info.Family) == s {
			return info.Family, nil
		}
	}
	return "", fmt.Errorf("%w: %q", apperrors.ErrUnknownFamily, s)
}

// NewDetector builds the detector of family f for one symbol.
func NewDetector(f Family, sc ScanContext, deps Deps) (Detector, error) {
	for _, info := range registry {
		if info.Family == f {
			return info.build(sc, deps), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownFamily, f)
}
