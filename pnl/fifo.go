// Package pnl computes realized profit from fill history using FIFO lot
// matching, plus the derived statistics reported in the daily log.
package pnl

import (
	"fmt"
	"sort"
	"time"

	"orb/broker"
)

// Trade is one matched (partial) consumption of a buy lot by a sell.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Qty       int64     `json:"qty"`
	BuyPrice  float64   `json:"buy_price"`
	SellPrice float64   `json:"sell_price"`
	BuyTime   time.Time `json:"buy_time"`
	SellTime  time.Time `json:"sell_time"`
	Pnl       float64   `json:"pnl"`
}

type lot struct {
	qty   int64
	price float64
	time  time.Time
}

// Window is the half-open [Start, End) analysis period. A zero Start means
// "from the beginning of history"; a zero End means "through the present".
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// Match pairs sells against the oldest open buy lots per symbol. Fills
// before window.Start shape the lot queues but emit no trades, so
// in-window results reflect in-window exits against correctly aged lots.
// A sell exceeding all known lots is a data-integrity warning; the excess
// quantity is dropped from matching.
func Match(fills []broker.Fill, window Window) ([]Trade, []string) {
	ordered := make([]broker.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Time.Before(ordered[j].Time)
	})

	queues := make(map[string][]lot)
	var trades []Trade
	var warnings []string

	for _, f := range ordered {
		switch f.Side {
		case broker.Buy:
			queues[f.Symbol] = append(queues[f.Symbol], lot{qty: f.Qty, price: f.Price, time: f.Time})

		case broker.Sell:
			queue := queues[f.Symbol]
			remaining := f.Qty
			emit := window.Contains(f.Time)

			for remaining > 0 && len(queue) > 0 {
				head := &queue[0]
				matched := remaining
				if head.qty < matched {
					matched = head.qty
				}

				if emit {
					trades = append(trades, Trade{
						Symbol:    f.Symbol,
						Qty:       matched,
						BuyPrice:  head.price,
						SellPrice: f.Price,
						BuyTime:   head.time,
						SellTime:  f.Time,
						Pnl:       (f.Price - head.price) * float64(matched),
					})
				}

				head.qty -= matched
				remaining -= matched
				if head.qty == 0 {
					queue = queue[1:]
				}
			}
			queues[f.Symbol] = queue

			if remaining > 0 {
				warnings = append(warnings, fmt.Sprintf(
					"%s: sell of %d at %s exceeds open lots by %d; excess dropped from matching",
					f.Symbol, f.Qty, f.Time.Format(time.RFC3339), remaining))
			}
		}
	}

	return trades, warnings
}
