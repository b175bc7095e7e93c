// Package config provides configuration management for the trading agent.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	yaml "gopkg.in/yaml.v3"
)

// Defaults applied when the corresponding field is unset.
const (
	defaultCandleCount    = 200
	defaultFastSpan       = 9
	defaultSlowSpan       = 100
	defaultATRWindow      = 14
	defaultRollingWindow  = 7
	defaultInitialBalance = 100.0
	defaultAllocationPct  = 1.0
	defaultATRStopMult    = 2.0
	defaultLotStep        = 0.0001
	defaultPriceTick      = 0.01
	defaultSlippagePct    = 0.01
	defaultTimeout        = "15s"
	defaultLiveBaseURL    = "https://api.binance.com"
	defaultPaperBaseURL   = "https://testnet.binance.vision"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Orders      OrdersConfig      `yaml:"orders"`
	Storage     StorageConfig     `yaml:"storage"`
	Journal     JournalConfig     `yaml:"journal"`
	Notify      NotifyConfig      `yaml:"notify"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ExchangeConfig defines exchange API settings. An empty BaseURL selects the
// endpoint by environment mode: the spot testnet for paper, production for
// live.
type ExchangeConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
}

// StrategyConfig defines trading strategy parameters.
type StrategyConfig struct {
	Symbol         string  `yaml:"symbol"`
	Interval       string  `yaml:"interval"`
	CandleCount    int     `yaml:"candle_count"`
	FastSpan       int     `yaml:"fast_span"`
	SlowSpan       int     `yaml:"slow_span"`
	ATRWindow      int     `yaml:"atr_window"`
	RollingWindow  int     `yaml:"rolling_window"`
	InitialBalance float64 `yaml:"initial_balance"`
	AllocationPct  float64 `yaml:"allocation_pct"`
	ATRStopMult    float64 `yaml:"atr_stop_mult"`
}

// OrdersConfig defines order sizing and pricing increments.
type OrdersConfig struct {
	LotStep     float64 `yaml:"lot_step"`
	PriceTick   float64 `yaml:"price_tick"`
	SlippagePct float64 `yaml:"slippage_pct"`
}

// StorageConfig defines storage settings for position state.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// JournalConfig defines the trade/error audit log settings. An empty path
// disables journaling.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig defines alert delivery. An empty host falls back to log-only
// alerts.
type NotifyConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Password string `yaml:"password"`
}

// ScheduleConfig defines loop-mode scheduling. When Loop is false the process
// runs a single cycle and exits (cron-style deployment).
type ScheduleConfig struct {
	Loop bool `yaml:"loop"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if c.Environment.Mode == "live" {
		if c.Exchange.APIKey == "" {
			return fmt.Errorf("exchange.api_key is required in live mode")
		}
		if c.Exchange.APISecret == "" {
			return fmt.Errorf("exchange.api_secret is required in live mode")
		}
	}
	if _, err := time.ParseDuration(c.Exchange.Timeout); err != nil {
		return fmt.Errorf("exchange.timeout invalid: %w", err)
	}

	if c.Strategy.Symbol == "" {
		return fmt.Errorf("strategy.symbol is required")
	}
	if _, err := IntervalDuration(c.Strategy.Interval); err != nil {
		return fmt.Errorf("strategy.interval invalid: %w", err)
	}
	if c.Strategy.FastSpan <= 0 || c.Strategy.SlowSpan <= 0 {
		return fmt.Errorf("strategy.fast_span and strategy.slow_span must be > 0")
	}
	if c.Strategy.FastSpan >= c.Strategy.SlowSpan {
		return fmt.Errorf("strategy.fast_span (%d) must be < strategy.slow_span (%d)",
			c.Strategy.FastSpan, c.Strategy.SlowSpan)
	}
	if c.Strategy.ATRWindow <= 0 {
		return fmt.Errorf("strategy.atr_window must be > 0")
	}
	if c.Strategy.RollingWindow <= 0 {
		return fmt.Errorf("strategy.rolling_window must be > 0")
	}
	if c.Strategy.CandleCount <= c.Strategy.SlowSpan {
		return fmt.Errorf("strategy.candle_count (%d) must exceed strategy.slow_span (%d)",
			c.Strategy.CandleCount, c.Strategy.SlowSpan)
	}
	if c.Strategy.InitialBalance <= 0 {
		return fmt.Errorf("strategy.initial_balance must be > 0")
	}
	if c.Strategy.AllocationPct <= 0 || c.Strategy.AllocationPct > 1.0 {
		return fmt.Errorf("strategy.allocation_pct must be between 0 and 1.0")
	}
	if c.Strategy.ATRStopMult <= 0 {
		return fmt.Errorf("strategy.atr_stop_mult must be > 0")
	}

	if c.Orders.LotStep <= 0 {
		return fmt.Errorf("orders.lot_step must be > 0")
	}
	if c.Orders.PriceTick <= 0 {
		return fmt.Errorf("orders.price_tick must be > 0")
	}
	if c.Orders.SlippagePct < 0 {
		return fmt.Errorf("orders.slippage_pct must be >= 0")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Notify.SMTPHost != "" {
		if c.Notify.SMTPPort <= 0 {
			return fmt.Errorf("notify.smtp_port must be > 0 when notify.smtp_host is set")
		}
		if c.Notify.From == "" || c.Notify.To == "" {
			return fmt.Errorf("notify.from and notify.to are required when notify.smtp_host is set")
		}
	}

	return nil
}

// IsPaperTrading returns true if the agent is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// ExchangeBaseURL returns the endpoint to trade against. An explicit
// base_url always wins; otherwise paper mode gets the spot testnet so a
// paper-configured agent can never place production orders.
func (c *Config) ExchangeBaseURL() string {
	if c.Exchange.BaseURL != "" {
		return c.Exchange.BaseURL
	}
	if c.IsPaperTrading() {
		return defaultPaperBaseURL
	}
	return defaultLiveBaseURL
}

// ExchangeTimeout returns the configured exchange HTTP timeout.
func (c *Config) ExchangeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Exchange.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// InitialBalance returns the starting quote balance as a decimal.
func (c *Config) InitialBalance() decimal.Decimal {
	return decimal.NewFromFloat(c.Strategy.InitialBalance)
}

// LotStep returns the base-asset quantity increment as a decimal.
func (c *Config) LotStep() decimal.Decimal {
	return decimal.NewFromFloat(c.Orders.LotStep)
}

// PriceTick returns the quote price increment as a decimal.
func (c *Config) PriceTick() decimal.Decimal {
	return decimal.NewFromFloat(c.Orders.PriceTick)
}

// SlippagePct returns the stop-limit slippage allowance as a decimal.
func (c *Config) SlippagePct() decimal.Decimal {
	return decimal.NewFromFloat(c.Orders.SlippagePct)
}

// IntervalDuration converts an exchange kline interval ("15m", "1h", "4h",
// "1d") to a duration, used to schedule loop mode.
func IntervalDuration(interval string) (time.Duration, error) {
	if interval == "" {
		return 0, fmt.Errorf("interval is empty")
	}
	unit := interval[len(interval)-1]
	var n int
	if _, err := fmt.Sscanf(interval[:len(interval)-1], "%d", &n); err != nil || n <= 0 {
		return 0, fmt.Errorf("interval %q has no positive numeric prefix", interval)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("interval %q has unknown unit %q", interval, string(unit))
	}
}

// applyDefaults fills unset fields with production defaults.
func (c *Config) applyDefaults() {
	if c.Exchange.Timeout == "" {
		c.Exchange.Timeout = defaultTimeout
	}
	if c.Strategy.CandleCount == 0 {
		c.Strategy.CandleCount = defaultCandleCount
	}
	if c.Strategy.FastSpan == 0 {
		c.Strategy.FastSpan = defaultFastSpan
	}
	if c.Strategy.SlowSpan == 0 {
		c.Strategy.SlowSpan = defaultSlowSpan
	}
	if c.Strategy.ATRWindow == 0 {
		c.Strategy.ATRWindow = defaultATRWindow
	}
	if c.Strategy.RollingWindow == 0 {
		c.Strategy.RollingWindow = defaultRollingWindow
	}
	if c.Strategy.InitialBalance == 0 {
		c.Strategy.InitialBalance = defaultInitialBalance
	}
	if c.Strategy.AllocationPct == 0 {
		c.Strategy.AllocationPct = defaultAllocationPct
	}
	if c.Strategy.ATRStopMult == 0 {
		c.Strategy.ATRStopMult = defaultATRStopMult
	}
	if c.Orders.LotStep == 0 {
		c.Orders.LotStep = defaultLotStep
	}
	if c.Orders.PriceTick == 0 {
		c.Orders.PriceTick = defaultPriceTick
	}
	if c.Orders.SlippagePct == 0 {
		c.Orders.SlippagePct = defaultSlippagePct
	}
}
