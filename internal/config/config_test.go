package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment:
  mode: paper
  log_level: info
exchange:
  api_key: k
  api_secret: s
strategy:
  symbol: ETHUSDT
  interval: 15m
storage:
  path: positions.json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Strategy.CandleCount)
	assert.Equal(t, 9, cfg.Strategy.FastSpan)
	assert.Equal(t, 100, cfg.Strategy.SlowSpan)
	assert.Equal(t, 14, cfg.Strategy.ATRWindow)
	assert.Equal(t, 7, cfg.Strategy.RollingWindow)
	assert.Equal(t, 100.0, cfg.Strategy.InitialBalance)
	assert.Equal(t, 1.0, cfg.Strategy.AllocationPct)
	assert.Equal(t, 2.0, cfg.Strategy.ATRStopMult)
	assert.Equal(t, 15*time.Second, cfg.ExchangeTimeout())
	assert.True(t, cfg.IsPaperTrading())

	assert.True(t, cfg.LotStep().Equal(decimal.RequireFromString("0.0001")))
	assert.True(t, cfg.PriceTick().Equal(decimal.RequireFromString("0.01")))
	assert.True(t, cfg.SlippagePct().Equal(decimal.RequireFromString("0.01")))
	assert.True(t, cfg.InitialBalance().Equal(decimal.NewFromInt(100)))
}

func TestExchangeBaseURLFollowsMode(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	// Paper mode must never resolve to the production endpoint.
	require.True(t, cfg.IsPaperTrading())
	assert.Equal(t, "https://testnet.binance.vision", cfg.ExchangeBaseURL())

	cfg.Environment.Mode = "live"
	assert.Equal(t, "https://api.binance.com", cfg.ExchangeBaseURL())

	cfg.Exchange.BaseURL = "http://127.0.0.1:9999"
	assert.Equal(t, "http://127.0.0.1:9999", cfg.ExchangeBaseURL(), "explicit base_url wins")
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_BOT_API_KEY", "expanded-key")

	yaml := `
environment:
  mode: live
exchange:
  api_key: ${TEST_BOT_API_KEY}
  api_secret: raw-secret
strategy:
  symbol: ETHUSDT
  interval: 15m
storage:
  path: positions.json
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.Exchange.APIKey)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+"\nbogus_section:\n  x: 1\n"))
	assert.Error(t, err, "typos in config keys must fail loudly")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfig(t, minimalYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Environment.Mode = "prod" }},
		{"missing symbol", func(c *Config) { c.Strategy.Symbol = "" }},
		{"bad interval", func(c *Config) { c.Strategy.Interval = "soon" }},
		{"fast >= slow", func(c *Config) { c.Strategy.FastSpan = 100 }},
		{"zero atr window", func(c *Config) { c.Strategy.ATRWindow = -1 }},
		{"candle count too small", func(c *Config) { c.Strategy.CandleCount = 50 }},
		{"allocation above 1", func(c *Config) { c.Strategy.AllocationPct = 1.5 }},
		{"negative slippage", func(c *Config) { c.Orders.SlippagePct = -0.01 }},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }},
		{"bad timeout", func(c *Config) { c.Exchange.Timeout = "fast" }},
		{"smtp without recipients", func(c *Config) { c.Notify.SMTPHost = "smtp.example.com"; c.Notify.SMTPPort = 587 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateLiveModeRequiresCredentials(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	cfg.Environment.Mode = "live"
	assert.NoError(t, cfg.Validate())

	cfg.Exchange.APISecret = ""
	assert.Error(t, cfg.Validate())
}

func TestIntervalDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"15m", 15 * time.Minute, false},
		{"1h", time.Hour, false},
		{"4h", 4 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{"", 0, true},
		{"m", 0, true},
		{"0m", 0, true},
		{"15x", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := IntervalDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
