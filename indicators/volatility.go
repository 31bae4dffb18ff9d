package indicators

import (
	"fmt"
	"math"

	"orb/market"
)

// DailyVolatility is the mean absolute intraday move, |open-close|/close,
// over the given daily candles. It sizes stop and target distances to how
// much the symbol actually swings in a day.
func DailyVolatility(daily []market.Candle, lookback int) (float64, error) {
	if lookback <= 0 {
		return 0, fmt.Errorf("lookback must be positive, got %d", lookback)
	}
	if len(daily) < lookback {
		return 0, fmt.Errorf("not enough daily candles: need %d, got %d", lookback, len(daily))
	}

	sum := 0.0
	n := 0
	for i := len(daily) - lookback; i < len(daily); i++ {
		c := daily[i]
		if c.Close == 0 {
			continue
		}
		sum += math.Abs(c.Open-c.Close) / c.Close
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("no usable daily candles in lookback window")
	}
	return sum / float64(n), nil
}
