package cmd

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"orb/broker"
	"orb/broker/alpaca"
	"orb/config"
	"orb/logger"
	"orb/market"
	"orb/pnl"
	"orb/resilient"
	"orb/state"
)

var pnlCmd = &cobra.Command{
	Use:   "pnl",
	Short: "Compute FIFO-matched realized PnL",
	Long: `Compute realized PnL and its derived statistics from fill history,
matching each sell against the oldest open buy lots per symbol.

Fills come from a CSV export (--csv) or from the brokerage activity feed
over the last --days days.

Example:
  orb pnl --csv fills.csv
  orb pnl -f orb.yaml --days 30`,
	RunE: runPnl,
}

var (
	pnlCSV  string
	pnlDays int
)

func init() {
	rootCmd.AddCommand(pnlCmd)

	pnlCmd.Flags().StringVar(&pnlCSV, "csv", "", "fills CSV export (order_id,symbol,side,qty,price,time)")
	pnlCmd.Flags().IntVar(&pnlDays, "days", 30, "analysis window in days (activity feed mode)")
}

func runPnl(cmd *cobra.Command, args []string) error {
	var (
		fills  []broker.Fill
		window pnl.Window
		err    error
	)

	if pnlCSV != "" {
		fills, err = pnl.ReadCSV(pnlCSV)
		if err != nil {
			return err
		}
	} else {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logger.Discard()
		clock := market.RealClock{}
		store := state.New(clock, log, cfg.State.Path)

		brokerURL := cfg.Brokerage.BaseURL
		if brokerURL == "" {
			brokerURL = alpaca.PaperURL
			if cfg.Account.Mode == "live" {
				brokerURL = alpaca.LiveURL
			}
		}
		brk := alpaca.New(alpaca.Config{
			BaseURL:  brokerURL,
			Key:      cfg.Brokerage.Key,
			Secret:   cfg.Brokerage.Secret,
			PoolSize: cfg.Brokerage.PoolSize,
			Timeout:  cfg.Brokerage.Timeout.Std(),
		}, resilient.Config{
			MaxRetries:       cfg.Resilience.MaxRetries,
			BaseDelay:        cfg.Resilience.BaseDelay.Std(),
			BackoffBase:      cfg.Resilience.BackoffBase,
			RateLimitFactor:  cfg.Resilience.RateLimitFactor,
			FailureThreshold: cfg.Resilience.FailureThreshold,
			OpenDuration:     cfg.Resilience.OpenDuration.Std(),
		}, clock, store, log)

		window = pnl.Window{Start: time.Now().AddDate(0, 0, -pnlDays)}
		fills, err = pnl.FetchFills(cmd.Context(), brk, window)
		if err != nil {
			return err
		}
	}

	trades, warnings := pnl.Match(fills, window)
	for _, w := range warnings {
		fmt.Printf("warning: %s\n", w)
	}

	stats := pnl.ComputeStats(trades)
	fmt.Printf("Trades:        %d (%d wins, %d losses)\n", stats.Trades, stats.Wins, stats.Losses)
	fmt.Printf("Total PnL:     $%.2f\n", stats.TotalPnl)
	fmt.Printf("Win rate:      %s\n", pct(stats.WinRate))
	fmt.Printf("Profit factor: %s\n", ratio(stats.ProfitFactor))
	fmt.Printf("Expectancy:    $%.2f\n", stats.Expectancy)
	fmt.Printf("Max drawdown:  $%.2f\n", stats.MaxDrawdown)
	fmt.Printf("Calmar:        %s\n", ratio(stats.Calmar))
	fmt.Printf("Pareto:        %s\n", pct(stats.Pareto))
	return nil
}

func pct(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.1f%%", v*100)
}

func ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}
