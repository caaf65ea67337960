// Package infra holds process-level plumbing: configuration loading and the
// application logger.
package infra

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tradeflow/internal/domain"
)

// Feed modes.
const (
	FeedModeBinance = "binance"
	FeedModeReplay  = "replay"
)

// RouteConfig declares one route to register at startup.
type RouteConfig struct {
	Exchange       string  `yaml:"exchange"`
	Symbol         string  `yaml:"symbol"`
	Timeframe      string  `yaml:"timeframe"`
	Strategy       string  `yaml:"strategy"`
	LongOnly       bool    `yaml:"long_only"`
	MinConfidence  float64 `yaml:"min_confidence"`
	CancelEntrySec int     `yaml:"cancel_entry_sec"`
}

// Config holds every application setting. It is loaded once at startup;
// environment variables override selected fields afterwards.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Feed struct {
		Mode    string `yaml:"mode"`
		Binance struct {
			WSURL     string   `yaml:"ws_url"`
			Symbols   []string `yaml:"symbols"`
			Timeframe string   `yaml:"timeframe"`
		} `yaml:"binance"`
		Replay struct {
			Path string `yaml:"path"`
		} `yaml:"replay"`
	} `yaml:"feed"`

	Routes []RouteConfig `yaml:"routes"`

	Strategy struct {
		FastPeriod    int             `yaml:"fast_period"`
		SlowPeriod    int             `yaml:"slow_period"`
		RSIPeriod     int             `yaml:"rsi_period"`
		RSIOverbought float64         `yaml:"rsi_overbought"`
		RSIOversold   float64         `yaml:"rsi_oversold"`
		Qty           decimal.Decimal `yaml:"qty"`
		MaxWindow     int             `yaml:"max_window"`
	} `yaml:"strategy"`

	Guardrail struct {
		RestErrorThreshold     int     `yaml:"rest_error_threshold"`
		ReconnectRateThreshold int     `yaml:"reconnect_rate_threshold"`
		WsStaleThresholdMs     int64   `yaml:"ws_stale_threshold_ms"`
		MaxDailyDDHard         float64 `yaml:"max_daily_dd_hard"`
		MaxDailyDDSoft         float64 `yaml:"max_daily_dd_soft"`
		LatencyWindow          int     `yaml:"latency_window"`
		SnapshotHistory        int     `yaml:"snapshot_history"`
		AlertHistory           int     `yaml:"alert_history"`
	} `yaml:"guardrail"`

	Paper struct {
		StartingCash  decimal.Decimal `yaml:"starting_cash"`
		SlippageBps   float64         `yaml:"slippage_bps"`
		CommissionBps float64         `yaml:"commission_bps"`
	} `yaml:"paper"`

	Obs struct {
		MetricsAddr string `yaml:"metrics_addr"`
		PprofAddr   string `yaml:"pprof_addr"`
	} `yaml:"obs"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch c.Feed.Mode {
	case FeedModeBinance:
		if !hasPrefix(c.Feed.Binance.WSURL, "ws://") && !hasPrefix(c.Feed.Binance.WSURL, "wss://") {
			return &domain.ConfigError{Field: "feed.binance.ws_url",
				Err: fmt.Errorf("invalid websocket URL: %q", c.Feed.Binance.WSURL)}
		}
		if len(c.Feed.Binance.Symbols) == 0 {
			return &domain.ConfigError{Field: "feed.binance.symbols",
				Err: fmt.Errorf("at least one symbol is required")}
		}
		if c.Feed.Binance.Timeframe == "" {
			return &domain.ConfigError{Field: "feed.binance.timeframe",
				Err: fmt.Errorf("timeframe is required")}
		}
	case FeedModeReplay:
		if c.Feed.Replay.Path == "" {
			return &domain.ConfigError{Field: "feed.replay.path",
				Err: fmt.Errorf("replay path is required")}
		}
	default:
		return &domain.ConfigError{Field: "feed.mode",
			Err: fmt.Errorf("unknown feed mode: %q", c.Feed.Mode)}
	}

	if len(c.Routes) == 0 {
		return &domain.ConfigError{Field: "routes",
			Err: fmt.Errorf("at least one route is required")}
	}
	for i, r := range c.Routes {
		if r.Exchange == "" || r.Symbol == "" || r.Timeframe == "" {
			return &domain.ConfigError{Field: fmt.Sprintf("routes[%d]", i),
				Err: fmt.Errorf("exchange, symbol and timeframe are required")}
		}
	}

	if c.Guardrail.MaxDailyDDHard > 0 && c.Guardrail.MaxDailyDDSoft > 0 &&
		c.Guardrail.MaxDailyDDSoft >= c.Guardrail.MaxDailyDDHard {
		return &domain.ConfigError{Field: "guardrail.max_daily_dd_soft",
			Err: fmt.Errorf("soft limit must be below the hard limit")}
	}

	if c.Paper.StartingCash.Sign() <= 0 {
		return &domain.ConfigError{Field: "paper.starting_cash",
			Err: fmt.Errorf("starting cash must be positive")}
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv replaces selected settings when the corresponding
// environment variable is set.
func overrideWithEnv(cfg *Config) {
	if mode := os.Getenv("TRADEFLOW_FEED_MODE"); mode != "" {
		cfg.Feed.Mode = mode
	}
	if url := os.Getenv("TRADEFLOW_BINANCE_WS_URL"); url != "" {
		cfg.Feed.Binance.WSURL = url
	}
	if path := os.Getenv("TRADEFLOW_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if addr := os.Getenv("TRADEFLOW_METRICS_ADDR"); addr != "" {
		cfg.Obs.MetricsAddr = addr
	}
	if level := os.Getenv("TRADEFLOW_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
