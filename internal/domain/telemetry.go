package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TelemetrySnapshot is a point-in-time aggregate of trading and transport
// health. Snapshots are immutable once recorded; the guardrail engine owns
// the append-only history.
type TelemetrySnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Balance  decimal.Decimal `json:"balance"`
	PnlTotal decimal.Decimal `json:"pnl_total"`
	DailyPnl decimal.Decimal `json:"daily_pnl"`

	MaxDailyDrawdown float64 `json:"max_dd_daily"`
	CurrentDrawdown  float64 `json:"current_dd"`

	OrdersPerMin float64 `json:"orders_per_min"`
	FillsPerMin  float64 `json:"fills_per_min"`
	OpenOrders   int     `json:"open_orders"`
	ExposurePct  float64 `json:"exposure_pct"`

	AvgWsLatencyMs   float64 `json:"avg_ws_latency_ms"`
	AvgRestLatencyMs float64 `json:"avg_rest_latency_ms"`
	WsErrors         uint64  `json:"ws_errors"`
	RestErrors       uint64  `json:"rest_errors"`
	WsSilenceMs      int64   `json:"ws_silence_ms"` // -1 before the first ws update

	FeeImpactBps float64 `json:"fee_impact_bps"`
}
