package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"tradeflow/internal/app"
	"tradeflow/internal/domain"
	"tradeflow/internal/obs"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Optional .env for environment overrides
	_ = godotenv.Load()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize("configs/config.yaml"); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Storage.Close()

	cfg := bootstrap.Config

	// 3. Pprof Server (localhost only for security)
	pprofAddr := cfg.Obs.PprofAddr
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("🕵️ Pprof server started", slog.String("addr", pprofAddr))
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 4. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Prometheus metrics endpoint
	if cfg.Obs.MetricsAddr != "" {
		metricsSrv := obs.Serve(cfg.Obs.MetricsAddr)
		defer metricsSrv.Shutdown(context.Background())
		slog.Info("✅ Metrics server started", slog.String("addr", cfg.Obs.MetricsAddr))
	}

	// 6. Operator-facing guardrail signals
	bootstrap.Guard.SubscribeAlerts(func(a domain.Alert) {
		switch a.Level {
		case domain.AlertCrit:
			slog.Error("🚨 guardrail alert", slog.String("message", a.Message), slog.Any("details", a.Details))
		case domain.AlertWarn:
			slog.Warn("⚠️ guardrail alert", slog.String("message", a.Message), slog.Any("details", a.Details))
		default:
			slog.Info("guardrail alert", slog.String("message", a.Message), slog.Any("details", a.Details))
		}
	})
	bootstrap.Guard.SubscribeKillSwitch(func(reason string) {
		slog.Error("🛑 kill switch engaged, entries suppressed", slog.String("reason", reason))
	})

	// 7. Main loop
	runner := app.NewRunner(bootstrap)
	slog.InfoContext(ctx, "✨ TradeFlow operational. Press Ctrl+C to exit.")
	if err := runner.Run(ctx); err != nil {
		slog.Error("Runner stopped with error", slog.Any("error", err))
		os.Exit(1)
	}

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}
