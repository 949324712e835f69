package scanner

import (
	"context"
	"math"
	"time"

	"pattern-scanner/internal/models"
	"pattern-scanner/pkg/utils"
)

// dipRule parameterizes the intraday dip engine.
type dipRule struct {
	// fromOpen measures the dip from the session open instead of the prior close
	// and requires the session to open down by at least dipPercent.
	fromOpen      bool
	dipPercent    float64
	boughtPercent float64
	minRange      float64
	minVolume     float64
}

// dipHit is one day's dip that got bought.
type dipHit struct {
	Index     int // trigger bar, into the full minute series
	DipIndex  int // dip bar, into the full minute series
	PrevClose float64
	Open      float64
	Session   extremes
	Close     float64
	PreMarket extremes
	HasPM     bool
	DipLow    float64
	DipPct    float64
	BoughtHi  float64
	BoughtPct float64
	VolToDip  float64
	VolToHit  float64
	After     extremes // regular session from the trigger bar on
}

// findDips scans the regular session of every day after the first. The
// running low sets the dip once it is dipPercent below the reference; after
// that each new high above the dip is a recovery. A recovery narrower than
// minRange ends the day, as does a qualifying recovery reached before
// minVolume has traded. At most one hit per day.
func findDips(minute []models.Candle, rule dipRule) []dipHit {
	days := splitDays(minute)
	var out []dipHit
	for d := 1; d < len(days); d++ {
		day := days[d]
		session, idx := within(day.Bars, utils.RegularSession)
		sess, ok := summarize(session)
		if !ok {
			continue
		}
		prevClose, ok := previousClose(minute, day.Offset)
		if !ok || prevClose == 0 {
			continue
		}
		pm, _ := within(day.Bars, utils.PreMarket)
		pre, hasPM := summarize(pm)

		open := session[0].Open
		gap := pctChange(prevClose, open)
		ref := prevClose
		if rule.fromOpen {
			if gap > -rule.dipPercent || open == 0 {
				continue
			}
			ref = open
		}

		dipLow, boughtHigh := math.Inf(1), math.Inf(-1)
		dipAt, dipPct := -1, 0.0
		var traded, tradedAtDip float64
		for i, bar := range session {
			if dipAt >= 0 && bar.High > dipLow && bar.High > boughtHigh {
				boughtHigh = bar.High
				if math.Abs(boughtHigh-dipLow) < rule.minRange {
					break
				}
				boughtPct := pctChange(dipLow, boughtHigh)
				if boughtPct >= rule.boughtPercent {
					if traded < rule.minVolume {
						break
					}
					after, _ := summarize(session[i:])
					out = append(out, dipHit{
						Index:     day.Offset + idx[i],
						DipIndex:  day.Offset + idx[dipAt],
						PrevClose: prevClose,
						Open:      open,
						Session:   sess,
						Close:     session[len(session)-1].Close,
						PreMarket: pre,
						HasPM:     hasPM,
						DipLow:    dipLow,
						DipPct:    dipPct,
						BoughtHi:  boughtHigh,
						BoughtPct: boughtPct,
						VolToDip:  tradedAtDip,
						VolToHit:  traded,
						After:     after,
					})
					break
				}
			}
			if dipAt < 0 && bar.Low < dipLow {
				dipLow = bar.Low
				dipPct = pctChange(ref, dipLow)
				if dipPct <= -rule.dipPercent {
					dipAt = i
					tradedAtDip = traded
				}
			}
			traded += bar.Volume
		}
	}
	return out
}

type dipIntradayDetector struct {
	base
	gapDown bool
}

func newDipIntraday(sc ScanContext, deps Deps, gapDown bool) *dipIntradayDetector {
	f := FamilyDipBuysIntraday
	if gapDown {
		f = FamilyGapDownDipBought
	}
	return &dipIntradayDetector{base: newBase(f, sc, deps), gapDown: gapDown}
}

func (d *dipIntradayDetector) rule() dipRule {
	if d.gapDown {
		return dipRule{fromOpen: true, dipPercent: d.sc.MinGapDownPercent, boughtPercent: d.sc.MinDipBoughtPercent,
			minRange: d.sc.MinRange, minVolume: d.sc.MinTradedVolume}
	}
	return dipRule{dipPercent: d.sc.MinEODDipPercent, boughtPercent: d.sc.MinEODDipBoughtPercent,
		minRange: d.sc.MinRange, minVolume: d.sc.MinTradedVolume}
}

func (d *dipIntradayDetector) scanName(at time.Time) string {
	switch {
	case d.gapDown:
		return ScanGapDownDipBought
	case utils.EndOfDayCutover.ReachedBy(at):
		return ScanEODDipBuyPanic
	}
	return ScanDipBuyIntraday
}

func (d *dipIntradayDetector) Scan(ctx context.Context, s *Series) ([]models.Event, error) {
	out := &sink{b: &d.base}
	minute := s.Minute
	for _, hit := range findDips(minute, d.rule()) {
		trigger, dip := minute[hit.Index], minute[hit.DipIndex]
		ev := models.Event{Scan: d.scanName(trigger.Timestamp), Time: trigger.Timestamp, Price: hit.BoughtHi}
		m := &ev.Metrics
		m.Set("open", hit.Open)
		m.Set("high", hit.Session.High)
		m.Set("low", hit.Session.Low)
		m.Set("close", hit.Close)
		m.Set("prev_day_close", hit.PrevClose)
		m.Set("dip_low", hit.DipLow)
		m.Set("dip_low_time", dip.Timestamp)
		m.Set("dip_percent", hit.DipPct)
		m.Set("dip_bought_percent", hit.BoughtPct)
		m.Set("final_change", pctChange(hit.Open, hit.Close))
		setOptional(m, "pm_high", hit.PreMarket.High, hit.HasPM)
		setOptional(m, "pm_low", hit.PreMarket.Low, hit.HasPM)
		setOptional(m, "pm_volume", hit.PreMarket.Volume, hit.HasPM)
		m.Set("gap_percent", pctChange(hit.PrevClose, hit.Open))
		m.Set("volume_until_dip", hit.VolToDip)
		v, ok := forwardVolume(minute, hit.DipIndex, 5)
		setOptional(m, "first_5min_volume_after_dip", v, ok)
		v, ok = forwardVolume(minute, hit.DipIndex, 15)
		setOptional(m, "first_15min_volume_after_dip", v, ok)
		v, ok = forwardChange(minute, hit.DipIndex, 5, closeOf)
		setOptional(m, "price_change_first_5min_after_dip", v, ok)
		v, ok = forwardChange(minute, hit.DipIndex, 15, closeOf)
		setOptional(m, "price_change_first_15min_after_dip", v, ok)
		m.Set("open_to_dip_percent", pctChange(hit.DipLow, hit.Open))
		setOptional(m, "pm_high_to_dip_percent", pctChange(hit.DipLow, hit.PreMarket.High), hit.HasPM)
		m.Set("high_after_dip_buy", hit.After.High)
		m.Set("high_time_after_dip_buy", hit.After.HighTime)
		m.Set("dip_buy_volume", hit.VolToHit-hit.VolToDip)

		if err := out.emit(ctx, ev); err != nil {
			return out.events, err
		}
	}
	return out.events, nil
}
