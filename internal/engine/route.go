package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
	"tradeflow/internal/strategy"
)

// RouteState is the lifecycle state of a route. Paused and Error routes are
// skipped by the scheduler; Error is entered when a strategy callback fails
// and requires operator intervention to leave.
type RouteState string

const (
	RouteIdle    RouteState = "IDLE"
	RouteRunning RouteState = "RUNNING"
	RoutePaused  RouteState = "PAUSED"
	RouteError   RouteState = "ERROR"
)

// RiskOverrides are per-route restrictions the scheduler enforces before any
// entry action runs. Zero values disable a restriction.
type RiskOverrides struct {
	// LongOnly suppresses short entries on this route.
	LongOnly bool

	// MinConfidence rejects entries whose signal confidence is below the
	// floor.
	MinConfidence float64
}

// OrderOverrides tune how the scheduler manages resting entry orders.
type OrderOverrides struct {
	// CancelEntryAfter cancels a resting entry once the global clock has
	// advanced this far past submission. Zero means never.
	CancelEntryAfter time.Duration
}

// Route binds one strategy instance to one (exchange, symbol, timeframe)
// stream. A route owns at most one open position and its own pending-order
// list; routes never share state.
type Route struct {
	Exchange  string
	Symbol    string
	Timeframe domain.Timeframe
	Strategy  strategy.Strategy
	Risk      RiskOverrides
	Order     OrderOverrides

	State         RouteState
	CurrentTime   time.Time
	LastProcessed time.Time
	Position      *domain.Position
	Pending       []domain.Order

	inbox        []domain.Candle
	pendingSince time.Time
	stepped      bool
	lastClose    decimal.Decimal
}

// ID returns the route identity key.
func (r *Route) ID() string {
	return r.Exchange + ":" + r.Symbol + ":" + string(r.Timeframe) + ":" + r.Strategy.Name()
}

// Stream returns the candle stream key this route consumes.
func (r *Route) Stream() string {
	return r.Symbol + "@" + string(r.Timeframe)
}

// Enabled reports whether the scheduler will step this route.
func (r *Route) Enabled() bool {
	return r.State == RouteIdle || r.State == RouteRunning
}

// Pause moves the route to Paused. A paused route keeps its position and
// pending orders; it simply stops being stepped.
func (r *Route) Pause() {
	if r.Enabled() {
		r.State = RoutePaused
	}
}

// Resume moves a Paused route back to Running. Error routes stay put.
func (r *Route) Resume() {
	if r.State == RoutePaused {
		r.State = RouteRunning
	}
}

// LastClose returns the close of the most recently consumed candle, zero
// before the first one.
func (r *Route) LastClose() decimal.Decimal {
	return r.lastClose
}
