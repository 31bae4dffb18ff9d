package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"orb/broker"
	"orb/broker/alpaca"
	"orb/config"
	"orb/engine"
	"orb/fundamentals"
	"orb/journal"
	"orb/logger"
	"orb/market"
	"orb/pnl"
	"orb/resilient"
	"orb/state"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Run one trading session per configured symbol",
	Long: `Run one opening-range breakout session for every configured symbol,
then record the day's FIFO-matched PnL in the daily log.

In test mode the engine runs against a simulated clock starting at the
given date; sleeps advance instantly and no real time passes.

Example:
  orb trade -f orb.yaml
  orb trade -f orb.yaml --test-mode --test-date 2026-03-02`,
	RunE: runTrade,
}

var (
	testMode bool
	testDate string
)

func init() {
	rootCmd.AddCommand(tradeCmd)

	tradeCmd.Flags().BoolVar(&testMode, "test-mode", false, "run against a simulated clock")
	tradeCmd.Flags().StringVar(&testDate, "test-date", "", "simulated session date (YYYY-MM-DD, requires --test-mode)")
}

func runTrade(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
	})

	clock, err := buildClock()
	if err != nil {
		return err
	}

	store := state.New(clock, log, cfg.State.Path)
	store.SetTestMode(testMode)
	store.SetAccount(cfg.Account.Mode)

	brokerURL := cfg.Brokerage.BaseURL
	if brokerURL == "" {
		brokerURL = alpaca.PaperURL
		if cfg.Account.Mode == "live" {
			brokerURL = alpaca.LiveURL
		}
	}

	rc := resilient.Config{
		MaxRetries:       cfg.Resilience.MaxRetries,
		BaseDelay:        cfg.Resilience.BaseDelay.Std(),
		BackoffBase:      cfg.Resilience.BackoffBase,
		RateLimitFactor:  cfg.Resilience.RateLimitFactor,
		FailureThreshold: cfg.Resilience.FailureThreshold,
		OpenDuration:     cfg.Resilience.OpenDuration.Std(),
	}

	brk := alpaca.New(alpaca.Config{
		BaseURL:  brokerURL,
		Key:      cfg.Brokerage.Key,
		Secret:   cfg.Brokerage.Secret,
		PoolSize: cfg.Brokerage.PoolSize,
		Timeout:  cfg.Brokerage.Timeout.Std(),
	}, rc, clock, store, log)

	var eod engine.EODSource
	if cfg.Fundamentals.Token != "" {
		fundRC := rc
		fundRC.Endpoint = "fundamentals"
		eod = fundamentals.New(fundamentals.Config{
			BaseURL:  cfg.Fundamentals.BaseURL,
			Token:    cfg.Fundamentals.Token,
			PoolSize: cfg.Fundamentals.PoolSize,
			Timeout:  cfg.Fundamentals.Timeout.Std(),
		}, fundRC, clock, store, log)
	}

	trades, err := journal.NewSQLite(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer trades.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	positionValue, err := resolvePositionValue(ctx, cfg, brk)
	if err != nil {
		return err
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		fills   []broker.Fill
		sessPnl float64
	)
	for _, symbol := range cfg.Strategy.Symbols {
		eng, err := engine.New(engine.ParamsFromConfig(cfg, symbol, positionValue), brk, eod, store, clock, trades, log)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			report, err := eng.Run(ctx)
			if err != nil {
				log.WithSymbol(symbol).WithError(err).Error("session failed")
				return
			}
			mu.Lock()
			fills = append(fills, report.Fills...)
			sessPnl += report.Pnl
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	recordDailyPnl(cfg, clock, log, fills, sessPnl, positionValue*float64(len(cfg.Strategy.Symbols)))
	return nil
}

// buildClock returns the wall clock, or a simulated clock pinned to the
// requested session date in test mode.
func buildClock() (market.Clock, error) {
	if !testMode {
		if testDate != "" {
			return nil, fmt.Errorf("--test-date requires --test-mode")
		}
		return market.RealClock{}, nil
	}

	start := time.Now().UTC().Truncate(24 * time.Hour)
	if testDate != "" {
		day, err := time.Parse("2006-01-02", testDate)
		if err != nil {
			return nil, fmt.Errorf("parse --test-date: %w", err)
		}
		start = day
	}
	// pin to the regular session open
	return market.NewSimClock(start.Add(14*time.Hour + 30*time.Minute)), nil
}

// resolvePositionValue turns "auto" into an equal slice of the portfolio
// per symbol.
func resolvePositionValue(ctx context.Context, cfg *config.Config, brk broker.Broker) (float64, error) {
	v, auto, err := cfg.PositionValueUSD()
	if err != nil {
		return 0, err
	}
	if !auto {
		return v, nil
	}

	acct, err := brk.GetAccount(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve auto position value: %w", err)
	}
	return acct.PortfolioValue / float64(len(cfg.Strategy.Symbols)), nil
}

// recordDailyPnl writes today's realized result into the daily JSON log.
func recordDailyPnl(cfg *config.Config, clock market.Clock, log *logger.Logger, fills []broker.Fill, sessPnl, deployed float64) {
	daily := pnl.NewDailyLog(cfg.Pnl.DailyLogPath, clock, log)
	_, cached, err := daily.Today(func() (pnl.Entry, error) {
		trades, warnings := pnl.Match(fills, pnl.Window{})
		for _, w := range warnings {
			log.WithComponent("pnl").Warn(w)
		}
		ratio := 0.0
		if deployed > 0 {
			ratio = sessPnl / deployed
		}
		return pnl.Entry{PnlRatio: ratio, Stats: pnl.ComputeStats(trades), Warnings: warnings}, nil
	})
	if err != nil {
		log.WithError(err).Error("daily pnl log write failed")
	} else if cached {
		log.WithComponent("pnl").Info("daily pnl already recorded for today")
	}
}
