// Package app wires the process together: configuration, logging, storage,
// guardrail, execution, scheduler, routes and the candle feed.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"tradeflow/internal/domain"
	"tradeflow/internal/engine"
	"tradeflow/internal/execution"
	"tradeflow/internal/feed"
	"tradeflow/internal/guardrail"
	"tradeflow/internal/infra"
	"tradeflow/internal/infra/storage"
	"tradeflow/internal/service"
	"tradeflow/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config    *infra.Config
	Storage   *storage.Storage
	Guard     *guardrail.Engine
	Paper     *execution.Paper
	Scheduler *engine.RouteScheduler
	Recorder  *service.Recorder
	Feed      feed.Feed
}

// NewBootstrap creates an empty Bootstrap.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize builds every component in dependency order. It returns on the
// first failure; main decides what to do with the error.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("🚀 Bootstrapping TradeFlow...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	if cfg.Storage.Path != "" {
		b.Storage, err = storage.NewStorageAt(cfg.Storage.Path)
	} else {
		b.Storage, err = storage.NewStorage()
	}
	if err != nil {
		return err
	}
	slog.Info("✅ Database initialized")

	// 4. Guardrail
	b.Guard = guardrail.NewEngine(guardrail.Config{
		RestErrorThreshold:     cfg.Guardrail.RestErrorThreshold,
		ReconnectRateThreshold: cfg.Guardrail.ReconnectRateThreshold,
		WsStaleThresholdMs:     cfg.Guardrail.WsStaleThresholdMs,
		MaxDailyDDHard:         cfg.Guardrail.MaxDailyDDHard,
		MaxDailyDDSoft:         cfg.Guardrail.MaxDailyDDSoft,
		LatencyWindow:          cfg.Guardrail.LatencyWindow,
		SnapshotHistory:        cfg.Guardrail.SnapshotHistory,
		AlertHistory:           cfg.Guardrail.AlertHistory,
	})

	b.Recorder = service.NewRecorder(b.Storage)
	b.Recorder.Attach(b.Guard)

	// 5. Paper executor, reporting simulated venue round-trips
	b.Paper = execution.NewPaper(cfg.Paper.StartingCash, cfg.Paper.SlippageBps, cfg.Paper.CommissionBps)
	b.Paper.OnTransport = func(latencyMs float64, success bool) {
		b.Guard.LogTransportEvent(guardrail.TransportRestCall, latencyMs, success)
	}

	// 6. Scheduler + routes
	b.Scheduler = engine.NewRouteScheduler(b.Guard, b.Paper)
	if err := b.registerRoutes(); err != nil {
		return err
	}
	slog.Info("✅ Routes registered", slog.Int("count", len(cfg.Routes)))

	// 7. Feed
	if err := b.buildFeed(); err != nil {
		return err
	}
	slog.Info("✅ Feed ready", slog.String("mode", cfg.Feed.Mode))

	return nil
}

func (b *Bootstrap) registerRoutes() error {
	params := strategy.Params{
		FastPeriod:    b.Config.Strategy.FastPeriod,
		SlowPeriod:    b.Config.Strategy.SlowPeriod,
		RSIPeriod:     b.Config.Strategy.RSIPeriod,
		RSIOverbought: b.Config.Strategy.RSIOverbought,
		RSIOversold:   b.Config.Strategy.RSIOversold,
		Qty:           b.Config.Strategy.Qty,
		MaxWindow:     b.Config.Strategy.MaxWindow,
	}

	for _, rc := range b.Config.Routes {
		strat, err := strategy.Build(rc.Strategy, rc.Symbol, params)
		if err != nil {
			return fmt.Errorf("route %s:%s: %w", rc.Exchange, rc.Symbol, err)
		}

		route := &engine.Route{
			Exchange:  rc.Exchange,
			Symbol:    rc.Symbol,
			Timeframe: domain.Timeframe(rc.Timeframe),
			Strategy:  strat,
			Risk: engine.RiskOverrides{
				LongOnly:      rc.LongOnly,
				MinConfidence: rc.MinConfidence,
			},
			Order: engine.OrderOverrides{
				CancelEntryAfter: time.Duration(rc.CancelEntrySec) * time.Second,
			},
		}
		if err := b.Scheduler.AddRoute(route); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bootstrap) buildFeed() error {
	switch b.Config.Feed.Mode {
	case infra.FeedModeBinance:
		b.Feed = feed.NewBinanceFeed(
			b.Config.Feed.Binance.WSURL,
			b.Config.Feed.Binance.Symbols,
			domain.Timeframe(b.Config.Feed.Binance.Timeframe),
			b.Guard,
		)
	case infra.FeedModeReplay:
		candles, err := feed.LoadReplayFile(b.Config.Feed.Replay.Path)
		if err != nil {
			return err
		}
		b.Feed = feed.NewReplayFeed(candles)
	default:
		return fmt.Errorf("unknown feed mode %q", b.Config.Feed.Mode)
	}
	return nil
}
