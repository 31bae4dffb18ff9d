// Package config loads the process configuration from a YAML file, applies
// ORB_* environment overrides, and validates the result. Configuration
// errors are fatal at startup; nothing downstream re-validates.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the complete process configuration.
type Config struct {
	Account      AccountConfig      `yaml:"account"`
	Strategy     StrategyConfig     `yaml:"strategy"`
	Brokerage    BrokerageConfig    `yaml:"brokerage"`
	Fundamentals FundamentalsConfig `yaml:"fundamentals"`
	Resilience   ResilienceConfig   `yaml:"resilience"`
	State        StateConfig        `yaml:"state"`
	Journal      JournalConfig      `yaml:"journal"`
	Pnl          PnlConfig          `yaml:"pnl"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// AccountConfig selects the trading environment and the capital per session.
type AccountConfig struct {
	Mode          string `yaml:"mode"`           // "live" or "paper"
	PositionValue string `yaml:"position_value"` // "auto" or a USD amount
}

// StrategyConfig holds the per-session trading parameters.
type StrategyConfig struct {
	Symbols              []string   `yaml:"symbols"`
	Direction            string     `yaml:"direction"` // "long" or "short"
	HoldMode             string     `yaml:"hold_mode"` // "day" or "swing"
	OpeningRangeMinutes  int        `yaml:"opening_range_minutes"`
	EntryCutoffMinutes   int        `yaml:"entry_cutoff_minutes"`
	PollInterval         Duration   `yaml:"poll_interval"`
	TrendCheck           bool       `yaml:"trend_check"`
	DynamicRates         bool       `yaml:"dynamic_rates"`
	EMATrail             bool       `yaml:"ema_trail"`
	SlippageRate         float64    `yaml:"slippage_rate"`
	LimitRate            float64    `yaml:"limit_rate"`
	StopRates            [3]float64 `yaml:"stop_rates"`
	TargetRates          [3]float64 `yaml:"target_rates"`
	VolStopMultipliers   [3]float64 `yaml:"vol_stop_multipliers"`
	VolTargetMultipliers [3]float64 `yaml:"vol_target_multipliers"`
	VolLookbackDays      int        `yaml:"vol_lookback_days"`
	TrailFast            int        `yaml:"trail_fast"`
	TrailMedium          int        `yaml:"trail_medium"`
	TrailSlow            int        `yaml:"trail_slow"`
	TrendFastSMA         int        `yaml:"trend_fast_sma"`
	TrendSlowSMA         int        `yaml:"trend_slow_sma"`
	SwingMaxDays         int        `yaml:"swing_max_days"`
}

// BrokerageConfig is the brokerage endpoint.
type BrokerageConfig struct {
	BaseURL  string   `yaml:"base_url"`
	Key      string   `yaml:"key"`
	Secret   string   `yaml:"secret"`
	PoolSize int      `yaml:"pool_size"`
	Timeout  Duration `yaml:"timeout"`
}

// FundamentalsConfig is the EOD/fundamentals endpoint.
type FundamentalsConfig struct {
	BaseURL  string   `yaml:"base_url"`
	Token    string   `yaml:"token"`
	PoolSize int      `yaml:"pool_size"`
	Timeout  Duration `yaml:"timeout"`
}

// ResilienceConfig parameterizes retry and circuit-breaker behavior,
// shared by both endpoints.
type ResilienceConfig struct {
	MaxRetries       int      `yaml:"max_retries"`
	BaseDelay        Duration `yaml:"base_delay"`
	BackoffBase      float64  `yaml:"backoff_base"`
	RateLimitFactor  float64  `yaml:"rate_limit_factor"`
	FailureThreshold int      `yaml:"failure_threshold"`
	OpenDuration     Duration `yaml:"open_duration"`
}

// StateConfig locates the shared store's persistence file and cache TTL.
type StateConfig struct {
	Path     string   `yaml:"path"`
	CacheTTL Duration `yaml:"cache_ttl"`
}

// JournalConfig locates the SQLite trade journal.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// PnlConfig locates the daily PnL log.
type PnlConfig struct {
	DailyLogPath string `yaml:"daily_log_path"`
}

// LoggingConfig mirrors logger.Config.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when a field is absent from the
// file. The stop/target bands are the static day-trade defaults; dynamic
// sizing replaces them per session when enabled.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Mode:          "paper",
			PositionValue: "auto",
		},
		Strategy: StrategyConfig{
			Direction:            "long",
			HoldMode:             "day",
			OpeningRangeMinutes:  15,
			EntryCutoffMinutes:   150,
			PollInterval:         Duration(30 * time.Second),
			TrendCheck:           true,
			SlippageRate:         0.001,
			LimitRate:            0.006,
			StopRates:            [3]float64{0.015, 0.02, 0.025},
			TargetRates:          [3]float64{0.02, 0.04, 0.08},
			VolStopMultipliers:   [3]float64{0.8, 1.2, 1.5},
			VolTargetMultipliers: [3]float64{3, 5, 8},
			VolLookbackDays:      20,
			TrailFast:            15,
			TrailMedium:          21,
			TrailSlow:            51,
			TrendFastSMA:         20,
			TrendSlowSMA:         50,
			SwingMaxDays:         90,
		},
		Brokerage: BrokerageConfig{
			PoolSize: 10,
			Timeout:  Duration(30 * time.Second),
		},
		Fundamentals: FundamentalsConfig{
			PoolSize: 10,
			Timeout:  Duration(30 * time.Second),
		},
		Resilience: ResilienceConfig{
			MaxRetries:       4,
			BaseDelay:        Duration(time.Second),
			BackoffBase:      2.0,
			RateLimitFactor:  2.0,
			FailureThreshold: 5,
			OpenDuration:     Duration(time.Minute),
		},
		State: StateConfig{
			Path:     "orb_state.json",
			CacheTTL: Duration(5 * time.Minute),
		},
		Journal: JournalConfig{
			Path: "orb_journal.db",
		},
		Pnl: PnlConfig{
			DailyLogPath: "orb_pnl.json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads path (if non-empty), layers it over the defaults, applies
// ORB_* environment overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides file values from the environment. Credentials are the
// usual case; they never belong in the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("ORB_BROKER_KEY"); v != "" {
		c.Brokerage.Key = v
	}
	if v := os.Getenv("ORB_BROKER_SECRET"); v != "" {
		c.Brokerage.Secret = v
	}
	if v := os.Getenv("ORB_BROKER_URL"); v != "" {
		c.Brokerage.BaseURL = v
	}
	if v := os.Getenv("ORB_FUNDAMENTALS_TOKEN"); v != "" {
		c.Fundamentals.Token = v
	}
	if v := os.Getenv("ORB_ACCOUNT_MODE"); v != "" {
		c.Account.Mode = v
	}
	if v := os.Getenv("ORB_POSITION_VALUE"); v != "" {
		c.Account.PositionValue = v
	}
	if v := os.Getenv("ORB_SYMBOLS"); v != "" {
		c.Strategy.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("ORB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ORB_STATE_PATH"); v != "" {
		c.State.Path = v
	}
}

// PositionValueUSD resolves the position size. "auto" means size from the
// account's portfolio value at session start.
func (c *Config) PositionValueUSD() (float64, bool, error) {
	if strings.EqualFold(c.Account.PositionValue, "auto") {
		return 0, true, nil
	}
	v, err := strconv.ParseFloat(c.Account.PositionValue, 64)
	if err != nil || v <= 0 {
		return 0, false, fmt.Errorf("account.position_value must be \"auto\" or a positive amount, got %q", c.Account.PositionValue)
	}
	return v, false, nil
}

// Validate checks the configuration, collecting the first explicit failure.
func (c *Config) Validate() error {
	if c.Account.Mode != "live" && c.Account.Mode != "paper" {
		return fmt.Errorf("account.mode must be 'live' or 'paper', got %q", c.Account.Mode)
	}
	if _, _, err := c.PositionValueUSD(); err != nil {
		return err
	}
	if len(c.Strategy.Symbols) == 0 {
		return fmt.Errorf("strategy.symbols is required")
	}
	if c.Strategy.Direction != "long" && c.Strategy.Direction != "short" {
		return fmt.Errorf("strategy.direction must be 'long' or 'short', got %q", c.Strategy.Direction)
	}
	if c.Strategy.HoldMode != "day" && c.Strategy.HoldMode != "swing" {
		return fmt.Errorf("strategy.hold_mode must be 'day' or 'swing', got %q", c.Strategy.HoldMode)
	}
	if c.Strategy.OpeningRangeMinutes <= 0 {
		return fmt.Errorf("strategy.opening_range_minutes must be positive")
	}
	if c.Strategy.EntryCutoffMinutes <= c.Strategy.OpeningRangeMinutes {
		return fmt.Errorf("strategy.entry_cutoff_minutes must exceed opening_range_minutes")
	}
	if c.Strategy.PollInterval.Std() <= 0 {
		return fmt.Errorf("strategy.poll_interval must be positive")
	}
	if c.Strategy.SlippageRate < 0 || c.Strategy.SlippageRate >= 1 {
		return fmt.Errorf("strategy.slippage_rate must be in [0, 1)")
	}
	if c.Strategy.LimitRate <= 0 {
		return fmt.Errorf("strategy.limit_rate must be positive")
	}
	for i, r := range c.Strategy.StopRates {
		if r <= 0 {
			return fmt.Errorf("strategy.stop_rates[%d] must be positive", i)
		}
	}
	for i, r := range c.Strategy.TargetRates {
		if r <= 0 {
			return fmt.Errorf("strategy.target_rates[%d] must be positive", i)
		}
	}
	if c.Strategy.SwingMaxDays <= 0 {
		return fmt.Errorf("strategy.swing_max_days must be positive")
	}
	if c.Strategy.TrendFastSMA >= c.Strategy.TrendSlowSMA {
		return fmt.Errorf("strategy.trend_fast_sma must be shorter than trend_slow_sma")
	}
	if c.Brokerage.Key == "" || c.Brokerage.Secret == "" {
		return fmt.Errorf("brokerage credentials are required (brokerage.key/secret or ORB_BROKER_KEY/ORB_BROKER_SECRET)")
	}
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("resilience.max_retries must not be negative")
	}
	if c.Resilience.BackoffBase < 1 {
		return fmt.Errorf("resilience.backoff_base must be at least 1")
	}
	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("resilience.failure_threshold must be positive")
	}
	if c.Resilience.OpenDuration.Std() <= 0 {
		return fmt.Errorf("resilience.open_duration must be positive")
	}
	if c.State.CacheTTL.Std() <= 0 {
		return fmt.Errorf("state.cache_ttl must be positive")
	}
	return nil
}
