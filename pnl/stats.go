package pnl

import (
	"math"
	"sort"
)

// Stats are the derived performance numbers, computed once over a set of
// matched trades. Ratios with a zero denominator are +Inf, never an error.
type Stats struct {
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	TotalPnl     float64 `json:"total_pnl"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	Expectancy   float64 `json:"expectancy"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Calmar       float64 `json:"calmar"`
	Pareto       float64 `json:"pareto"`
}

// ratio divides with the +Inf-on-zero convention.
func ratio(num, den float64) float64 {
	if den == 0 {
		return math.Inf(1)
	}
	return num / den
}

// ComputeStats derives the performance statistics from matched trades,
// which must be in sell-time order for the drawdown curve to be meaningful.
func ComputeStats(trades []Trade) Stats {
	s := Stats{Trades: len(trades)}

	grossProfit := 0.0
	grossLoss := 0.0
	var winners []float64

	for _, t := range trades {
		s.TotalPnl += t.Pnl
		if t.Pnl > 0 {
			s.Wins++
			grossProfit += t.Pnl
			winners = append(winners, t.Pnl)
		} else {
			s.Losses++
			grossLoss += -t.Pnl
		}
	}

	s.WinRate = ratio(float64(s.Wins), float64(s.Trades))
	s.ProfitFactor = ratio(grossProfit, grossLoss)

	// Expectancy uses plain averages; an empty side contributes zero
	// rather than poisoning the result with Inf*0.
	avgWin := 0.0
	if s.Wins > 0 {
		avgWin = grossProfit / float64(s.Wins)
	}
	avgLoss := 0.0
	if s.Losses > 0 {
		avgLoss = grossLoss / float64(s.Losses)
	}
	if s.Trades > 0 {
		winRate := float64(s.Wins) / float64(s.Trades)
		s.Expectancy = winRate*avgWin - (1-winRate)*avgLoss
	}

	s.MaxDrawdown = maxDrawdown(trades)
	s.Calmar = ratio(s.TotalPnl, s.MaxDrawdown)
	s.Pareto = pareto(winners, grossProfit)

	return s
}

// maxDrawdown is the largest peak-to-trough fall on the cumulative curve.
func maxDrawdown(trades []Trade) float64 {
	peak := 0.0
	cum := 0.0
	maxDD := 0.0
	for _, t := range trades {
		cum += t.Pnl
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// pareto is the share of gross profit contributed by the top 20% of
// winning trades (at least one when any winner exists).
func pareto(winners []float64, grossProfit float64) float64 {
	if len(winners) == 0 {
		return ratio(0, grossProfit)
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(winners)))
	n := len(winners) / 5
	if n == 0 {
		n = 1
	}

	top := 0.0
	for _, w := range winners[:n] {
		top += w
	}
	return ratio(top, grossProfit)
}
