package market

import (
	"math"
	"time"
)

// Candle represents OHLC (Open, High, Low, Close) candlestick data.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Time   time.Time
	Volume float64
}

// Tick is the latest traded price for a symbol.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// Timeframe identifies a bar aggregation period.
type Timeframe string

const (
	Min1  Timeframe = "1Min"
	Min5  Timeframe = "5Min"
	Min15 Timeframe = "15Min"
	Day1  Timeframe = "1Day"
)

// Range is a half-open [Start, End) time window for bar requests.
type Range struct {
	Start time.Time
	End   time.Time
}

// MinTick is the minimum price increment for US equities.
const MinTick = 0.01

// RoundTick rounds a price to the instrument's minimum tick. Every price
// that reaches the broker must pass through here at the point of
// computation, not at the point of display.
func RoundTick(price float64) float64 {
	return math.Round(price/MinTick) * MinTick
}

// OpeningRange is the high/low band established in the first N minutes of
// a session, used as the breakout reference level.
type OpeningRange struct {
	High float64
	Low  float64
}

// Valid reports whether both extremes were observed.
func (r OpeningRange) Valid() bool {
	return r.High > 0 && r.Low > 0 && r.High >= r.Low
}
