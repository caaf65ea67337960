package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
	"tradeflow/internal/engine"
	"tradeflow/internal/execution"
	"tradeflow/internal/feed"
	"tradeflow/internal/guardrail"
	"tradeflow/internal/obs"
	"tradeflow/internal/service"
)

const defaultMetricsInterval = 15 * time.Second

// Runner is the main loop: it consumes feed candles, advances the global
// clock, steps every route and periodically feeds account telemetry into the
// guardrail. Like the scheduler it is single-threaded; the feed channel is
// the only input.
type Runner struct {
	sched *engine.RouteScheduler
	guard *guardrail.Engine
	paper *execution.Paper
	rec   *service.Recorder
	feed  feed.Feed

	metricsInterval time.Duration

	// daily drawdown tracking, keyed by the global clock's calendar day
	day        time.Time
	dayStart   decimal.Decimal
	dayPeak    decimal.Decimal
	maxDailyDD float64
}

// NewRunner builds a runner from a completed bootstrap.
func NewRunner(b *Bootstrap) *Runner {
	return &Runner{
		sched:           b.Scheduler,
		guard:           b.Guard,
		paper:           b.Paper,
		rec:             b.Recorder,
		feed:            b.Feed,
		metricsInterval: defaultMetricsInterval,
	}
}

// Run drives the loop until the context is canceled or the feed is
// exhausted. A final telemetry snapshot is taken either way.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.feed.Start(ctx); err != nil {
		return err
	}
	defer r.feed.Stop()

	ticker := time.NewTicker(r.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.reportMetrics()
			return nil

		case c, ok := <-r.feed.Candles():
			if !ok {
				slog.Info("feed exhausted")
				r.reportMetrics()
				return nil
			}
			r.handleCandle(ctx, c)

		case <-ticker.C:
			r.reportMetrics()
		}
	}
}

// handleCandle advances the clock, fans the candle out and steps every
// enabled route. A timestamp behind the clock can only come from a broken
// feed; the clock stays put and a WARN is raised.
func (r *Runner) handleCandle(ctx context.Context, c domain.Candle) {
	obs.CandlesTotal.WithLabelValues(c.Symbol).Inc()
	r.paper.UpdatePrice(c.Symbol, c.Close)

	if err := r.sched.SetGlobalTime(c.Timestamp); err != nil {
		// The candle is still buffered; it is consumed on the next step at
		// the unchanged clock.
		r.guard.Alert(domain.AlertWarn, "candle behind global clock", map[string]string{
			"stream": c.Stream(),
			"error":  err.Error(),
		})
	}

	r.sched.PushCandle(c)
	r.sched.StepAll(ctx)
}

// reportMetrics derives account telemetry from the paper executor and the
// routes, hands it to the guardrail and persists the resulting snapshot.
func (r *Runner) reportMetrics() {
	now, ok := r.sched.GlobalTime()
	if !ok {
		return
	}

	equity := r.paper.Cash()
	exposure := decimal.Zero
	openOrders := 0
	for _, route := range r.sched.Routes() {
		openOrders += len(route.Pending)
		if route.Position != nil && route.LastClose().Sign() > 0 {
			mark := route.LastClose()
			equity = equity.Add(route.Position.Pnl(mark))
			exposure = exposure.Add(route.Position.Size.Mul(mark))
		}
	}

	r.trackDay(now, equity)

	currentDD := 0.0
	if r.dayPeak.Sign() > 0 && equity.LessThan(r.dayPeak) {
		currentDD = r.dayPeak.Sub(equity).Div(r.dayPeak).InexactFloat64()
	}
	if currentDD > r.maxDailyDD {
		r.maxDailyDD = currentDD
	}

	exposurePct := 0.0
	if equity.Sign() > 0 {
		exposurePct = exposure.Div(equity).InexactFloat64()
	}

	snap := r.guard.UpdateMetrics(guardrail.MetricsUpdate{
		Balance:          equity,
		PnlTotal:         equity.Sub(r.paper.StartingCash()),
		DailyPnl:         equity.Sub(r.dayStart),
		MaxDailyDrawdown: r.maxDailyDD,
		CurrentDrawdown:  currentDD,
		OpenOrders:       openOrders,
		FillCount:        len(r.paper.Fills()),
		ExposurePct:      exposurePct,
		CommissionTotal:  r.paper.Commissions(),
	})

	if err := r.rec.PersistSnapshot(snap); err != nil {
		slog.Error("failed to persist telemetry snapshot", slog.Any("error", err))
	}
}

// trackDay resets the daily baseline when the global clock crosses into a
// new calendar day.
func (r *Runner) trackDay(now time.Time, equity decimal.Decimal) {
	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(r.day) {
		r.day = day
		r.dayStart = equity
		r.dayPeak = equity
		r.maxDailyDD = 0
		return
	}
	if equity.GreaterThan(r.dayPeak) {
		r.dayPeak = equity
	}
}
