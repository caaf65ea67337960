package infra

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
)

const validYAML = `
app:
  name: tradeflow
  version: "1.0.0"

feed:
  mode: binance
  binance:
    ws_url: wss://stream.binance.com:9443/stream
    symbols: [BTCUSDT, ETHUSDT]
    timeframe: 1m

routes:
  - exchange: binance
    symbol: BTCUSDT
    timeframe: 1m
    strategy: ema_cross
  - exchange: binance
    symbol: ETHUSDT
    timeframe: 1m
    strategy: ema_rsi
    long_only: true

strategy:
  fast_period: 9
  slow_period: 21
  qty: "0.01"

guardrail:
  rest_error_threshold: 3
  max_daily_dd_hard: 0.20
  max_daily_dd_soft: 0.10

paper:
  starting_cash: "10000"
  slippage_bps: 2
  commission_bps: 4

obs:
  metrics_addr: ":9100"

logging:
  level: info
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.App.Name != "tradeflow" {
		t.Errorf("App name = %q", cfg.App.Name)
	}
	if len(cfg.Feed.Binance.Symbols) != 2 {
		t.Errorf("Symbols = %v", cfg.Feed.Binance.Symbols)
	}
	if len(cfg.Routes) != 2 || !cfg.Routes[1].LongOnly {
		t.Errorf("Routes = %+v", cfg.Routes)
	}
	if !cfg.Strategy.Qty.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("Qty = %v", cfg.Strategy.Qty)
	}
	if !cfg.Paper.StartingCash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("StartingCash = %v", cfg.Paper.StartingCash)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("TRADEFLOW_LOG_LEVEL", "debug")
	t.Setenv("TRADEFLOW_METRICS_ADDR", ":9999")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Obs.MetricsAddr != ":9999" {
		t.Errorf("MetricsAddr = %q, want :9999", cfg.Obs.MetricsAddr)
	}
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := LoadConfig(writeConfig(t, validYAML))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad feed mode", func(c *Config) { c.Feed.Mode = "csv" }, "feed.mode"},
		{"bad ws url", func(c *Config) { c.Feed.Binance.WSURL = "http://x" }, "feed.binance.ws_url"},
		{"no symbols", func(c *Config) { c.Feed.Binance.Symbols = nil }, "feed.binance.symbols"},
		{"replay without path", func(c *Config) { c.Feed.Mode = FeedModeReplay }, "feed.replay.path"},
		{"no routes", func(c *Config) { c.Routes = nil }, "routes"},
		{"incomplete route", func(c *Config) { c.Routes[0].Symbol = "" }, "routes[0]"},
		{"soft above hard", func(c *Config) { c.Guardrail.MaxDailyDDSoft = 0.30 }, "guardrail.max_daily_dd_soft"},
		{"zero cash", func(c *Config) { c.Paper.StartingCash = decimal.Zero }, "paper.starting_cash"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected *ConfigError, got %T", err)
			}
			if ce.Field != tc.field {
				t.Errorf("Field = %q, want %q", ce.Field, tc.field)
			}
			if domain.IsRetriable(err) {
				t.Error("Config errors are never retriable")
			}
		})
	}

	t.Run("valid replay config", func(t *testing.T) {
		cfg := base(t)
		cfg.Feed.Mode = FeedModeReplay
		cfg.Feed.Replay.Path = "testdata/candles.jsonl"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
	})
}
