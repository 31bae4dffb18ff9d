package engine

import (
	"fmt"
	"time"

	"orb/config"
)

// Direction selects the sign conventions of the state machine: a short
// session mirrors every breakout, stop and target comparison.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// HoldMode decides what happens to legs still open at session close.
type HoldMode string

const (
	DayTrade HoldMode = "day"
	Swing    HoldMode = "swing"
)

// Legs is the fixed number of bracket orders per entry signal.
const Legs = 3

// minLimitOffset is the floor on the entry limit's distance from the
// breakout level, in dollars.
const minLimitOffset = 0.05

// Params configures one engine instance for one instrument.
type Params struct {
	Symbol        string
	PositionValue float64 // USD committed to the session, split across legs
	Direction     Direction
	HoldMode      HoldMode

	OpeningRange time.Duration // range-building window after the open
	EntryCutoff  time.Duration // no entries after open + cutoff
	PollInterval time.Duration

	TrendCheck   bool
	DynamicRates bool
	EMATrail     bool

	SlippageRate float64
	LimitRate    float64

	StopRates   [Legs]float64
	TargetRates [Legs]float64

	VolStopMult   [Legs]float64
	VolTargetMult [Legs]float64
	VolLookback   int

	TrailFast   int
	TrailMedium int
	TrailSlow   int

	TrendFastSMA int
	TrendSlowSMA int

	SwingMaxDays int

	CacheTTL time.Duration // shared-store TTL for daily bar lookups
}

// ParamsFromConfig builds engine parameters for one symbol from the loaded
// configuration. positionValue is already resolved from "auto".
func ParamsFromConfig(cfg *config.Config, symbol string, positionValue float64) Params {
	s := cfg.Strategy
	return Params{
		Symbol:        symbol,
		PositionValue: positionValue,
		Direction:     Direction(s.Direction),
		HoldMode:      HoldMode(s.HoldMode),
		OpeningRange:  time.Duration(s.OpeningRangeMinutes) * time.Minute,
		EntryCutoff:   time.Duration(s.EntryCutoffMinutes) * time.Minute,
		PollInterval:  s.PollInterval.Std(),
		TrendCheck:    s.TrendCheck,
		DynamicRates:  s.DynamicRates,
		EMATrail:      s.EMATrail,
		SlippageRate:  s.SlippageRate,
		LimitRate:     s.LimitRate,
		StopRates:     s.StopRates,
		TargetRates:   s.TargetRates,
		VolStopMult:   s.VolStopMultipliers,
		VolTargetMult: s.VolTargetMultipliers,
		VolLookback:   s.VolLookbackDays,
		TrailFast:     s.TrailFast,
		TrailMedium:   s.TrailMedium,
		TrailSlow:     s.TrailSlow,
		TrendFastSMA:  s.TrendFastSMA,
		TrendSlowSMA:  s.TrendSlowSMA,
		SwingMaxDays:  s.SwingMaxDays,
		CacheTTL:      cfg.State.CacheTTL.Std(),
	}
}

func (p Params) validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if p.PositionValue <= 0 {
		return fmt.Errorf("position value must be positive, got %v", p.PositionValue)
	}
	if p.Direction != Long && p.Direction != Short {
		return fmt.Errorf("direction must be long or short, got %q", p.Direction)
	}
	if p.HoldMode != DayTrade && p.HoldMode != Swing {
		return fmt.Errorf("hold mode must be day or swing, got %q", p.HoldMode)
	}
	if p.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if p.OpeningRange <= 0 || p.EntryCutoff <= p.OpeningRange {
		return fmt.Errorf("entry cutoff %v must exceed opening range %v", p.EntryCutoff, p.OpeningRange)
	}
	return nil
}
