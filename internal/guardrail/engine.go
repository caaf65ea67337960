// Package guardrail maintains rolling operational telemetry for the
// scheduler and enforces hard safety limits independent of strategy logic.
// Its only outward signals are leveled alerts and the kill switch.
package guardrail

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
	"tradeflow/internal/obs"
)

// TransportKind classifies transport health events.
type TransportKind string

const (
	TransportWsUpdate    TransportKind = "ws_update"
	TransportWsReconnect TransportKind = "ws_reconnect"
	TransportRestCall    TransportKind = "rest_call"
)

// Config holds every guardrail threshold. It is constructed once at startup
// and never mutated afterwards.
type Config struct {
	RestErrorThreshold     int     // failed REST calls per minute bucket before kill
	ReconnectRateThreshold int     // ws reconnects per rolling hour before WARN
	WsStaleThresholdMs     int64   // silence on the ws feed before CRIT
	MaxDailyDDHard         float64 // daily drawdown fraction that trips the kill switch
	MaxDailyDDSoft         float64 // daily drawdown fraction that raises WARN
	LatencyWindow          int     // latency ring size per transport
	SnapshotHistory        int     // telemetry snapshots retained
	AlertHistory           int     // alerts retained
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		RestErrorThreshold:     3,
		ReconnectRateThreshold: 6,
		WsStaleThresholdMs:     60000,
		MaxDailyDDHard:         0.20,
		MaxDailyDDSoft:         0.10,
		LatencyWindow:          1000,
		SnapshotHistory:        500,
		AlertHistory:           1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RestErrorThreshold <= 0 {
		c.RestErrorThreshold = d.RestErrorThreshold
	}
	if c.ReconnectRateThreshold <= 0 {
		c.ReconnectRateThreshold = d.ReconnectRateThreshold
	}
	if c.WsStaleThresholdMs <= 0 {
		c.WsStaleThresholdMs = d.WsStaleThresholdMs
	}
	if c.MaxDailyDDHard <= 0 {
		c.MaxDailyDDHard = d.MaxDailyDDHard
	}
	if c.MaxDailyDDSoft <= 0 {
		c.MaxDailyDDSoft = d.MaxDailyDDSoft
	}
	if c.LatencyWindow <= 0 {
		c.LatencyWindow = d.LatencyWindow
	}
	if c.SnapshotHistory <= 0 {
		c.SnapshotHistory = d.SnapshotHistory
	}
	if c.AlertHistory <= 0 {
		c.AlertHistory = d.AlertHistory
	}
	return c
}

// Trade is one row of the trade ledger feeding PnL and fee aggregates.
type Trade struct {
	RouteID    string
	Side       string
	Qty        decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  *decimal.Decimal
	Pnl        *decimal.Decimal
	Commission decimal.Decimal
	Ts         time.Time
}

// MetricsUpdate carries the account-level inputs for a telemetry snapshot.
type MetricsUpdate struct {
	Balance          decimal.Decimal
	PnlTotal         decimal.Decimal
	DailyPnl         decimal.Decimal
	MaxDailyDrawdown float64
	CurrentDrawdown  float64
	OpenOrders       int
	FillCount        int
	ExposurePct      float64
	CommissionTotal  decimal.Decimal
}

// Engine is the guardrail core. All methods are safe for concurrent use.
// Alert and kill-switch callbacks run synchronously; panics inside them are
// recovered and logged, never propagated.
type Engine struct {
	cfg Config

	killed atomic.Bool

	mu         sync.Mutex
	killReason string

	alerts    []domain.Alert
	alertSubs []func(domain.Alert)
	killSubs  []func(reason string)
	tradeSubs []func(Trade)

	wsLatency       *ring
	restLatency     *ring
	lastWsUpdate    time.Time
	wsErrors        uint64
	restErrors      uint64
	restErrBuckets  map[int64]int
	reconnects      []time.Time
	reconnectWarned bool
	wsStaleAlerted  bool
	ddHardAlerted   bool
	ddSoftAlerted   bool

	decisionCount uint64
	rejectedCount uint64
	orderTimes    []time.Time
	fillTimes     []time.Time
	trades        []Trade
	snapshots     []domain.TelemetrySnapshot

	now func() time.Time
}

// NewEngine creates a guardrail engine; zero thresholds fall back to the
// defaults.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:            cfg,
		wsLatency:      newRing(cfg.LatencyWindow),
		restLatency:    newRing(cfg.LatencyWindow),
		restErrBuckets: make(map[int64]int),
		now:            time.Now,
	}
}

// KillSwitchActive reports whether the kill switch has tripped. Callers must
// re-check on every step rather than caching the value.
func (e *Engine) KillSwitchActive() bool {
	return e.killed.Load()
}

// KillReason returns the reason recorded on the first trip.
func (e *Engine) KillReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killReason
}

// TripKillSwitch engages the kill switch. The flag is monotonic: the first
// call notifies kill-switch subscribers exactly once; later calls are
// ignored apart from an INFO alert.
func (e *Engine) TripKillSwitch(reason string) {
	if !e.killed.CompareAndSwap(false, true) {
		e.mu.Lock()
		a := e.recordLocked(domain.AlertInfo, "kill switch already tripped",
			map[string]string{"ignored_reason": reason})
		e.mu.Unlock()
		e.dispatch([]domain.Alert{a}, "")
		return
	}

	obs.KillSwitchEngaged.Set(1)

	e.mu.Lock()
	e.killReason = reason
	subs := make([]func(string), len(e.killSubs))
	copy(subs, e.killSubs)
	e.mu.Unlock()

	for _, fn := range subs {
		e.safeNotifyKill(fn, reason)
	}
}

// SubscribeAlerts registers a fire-and-forget alert observer.
func (e *Engine) SubscribeAlerts(fn func(domain.Alert)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alertSubs = append(e.alertSubs, fn)
}

// SubscribeKillSwitch registers a kill-switch observer.
func (e *Engine) SubscribeKillSwitch(fn func(reason string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killSubs = append(e.killSubs, fn)
}

// SubscribeTrades registers a trade ledger observer.
func (e *Engine) SubscribeTrades(fn func(Trade)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tradeSubs = append(e.tradeSubs, fn)
}

// Alert emits a leveled alert from outside the guardrail's own threshold
// logic (e.g. the scheduler reporting a broken strategy).
func (e *Engine) Alert(level domain.AlertLevel, msg string, details map[string]string) {
	e.mu.Lock()
	a := e.recordLocked(level, msg, details)
	e.mu.Unlock()
	e.dispatch([]domain.Alert{a}, "")
}

// LogDecision records a strategy decision. Rejected decisions raise a WARN
// alert carrying the rejection reason.
func (e *Engine) LogDecision(routeID string, d domain.Decision, accepted bool, rejectionReason string) {
	now := e.now()

	e.mu.Lock()
	e.decisionCount++
	var pending []domain.Alert
	if accepted && d.Intent != domain.IntentHold {
		e.orderTimes = pruneWindow(append(e.orderTimes, now), now.Add(-time.Hour))
	}
	if !accepted {
		e.rejectedCount++
		pending = append(pending, e.recordLocked(domain.AlertWarn, "decision rejected", map[string]string{
			"route":  routeID,
			"intent": string(d.Intent),
			"reason": rejectionReason,
		}))
	}
	e.mu.Unlock()

	obs.DecisionsTotal.WithLabelValues(routeID, string(d.Intent)).Inc()
	e.dispatch(pending, "")
}

// LogTrade appends to the trade ledger used for PnL and fee aggregates.
func (e *Engine) LogTrade(t Trade) {
	if t.Ts.IsZero() {
		t.Ts = e.now()
	}

	e.mu.Lock()
	e.trades = append(e.trades, t)
	e.fillTimes = pruneWindow(append(e.fillTimes, t.Ts), e.now().Add(-time.Hour))
	subs := make([]func(Trade), len(e.tradeSubs))
	copy(subs, e.tradeSubs)
	e.mu.Unlock()

	for _, fn := range subs {
		e.safeNotifyTrade(fn, t)
	}
}

// LogTransportEvent updates rolling transport health and escalates when the
// reconnect or REST failure thresholds are breached. A failed REST-call
// minute bucket reaching the threshold raises CRIT and trips the kill
// switch.
func (e *Engine) LogTransportEvent(kind TransportKind, latencyMs float64, success bool) {
	now := e.now()

	e.mu.Lock()
	var pending []domain.Alert
	var trip string

	switch kind {
	case TransportWsUpdate:
		e.wsLatency.push(latencyMs)
		e.lastWsUpdate = now
		e.wsStaleAlerted = false
		if !success {
			e.wsErrors++
		}

	case TransportWsReconnect:
		if !success {
			e.wsErrors++
		}
		e.reconnects = pruneWindow(append(e.reconnects, now), now.Add(-time.Hour))
		if len(e.reconnects) > e.cfg.ReconnectRateThreshold {
			if !e.reconnectWarned {
				e.reconnectWarned = true
				pending = append(pending, e.recordLocked(domain.AlertWarn, "websocket reconnect rate high", map[string]string{
					"reconnects_last_hour": fmt.Sprintf("%d", len(e.reconnects)),
					"threshold":            fmt.Sprintf("%d", e.cfg.ReconnectRateThreshold),
				}))
			}
		} else {
			e.reconnectWarned = false
		}

	case TransportRestCall:
		e.restLatency.push(latencyMs)
		if !success {
			e.restErrors++
			bucket := now.Unix() / 60
			e.restErrBuckets[bucket]++
			if e.restErrBuckets[bucket] == e.cfg.RestErrorThreshold {
				pending = append(pending, e.recordLocked(domain.AlertCrit, "REST error threshold reached", map[string]string{
					"errors_this_minute": fmt.Sprintf("%d", e.restErrBuckets[bucket]),
					"threshold":          fmt.Sprintf("%d", e.cfg.RestErrorThreshold),
				}))
				trip = "rest error threshold reached"
			}
			for k := range e.restErrBuckets {
				if k < bucket-2 {
					delete(e.restErrBuckets, k)
				}
			}
		}

	default:
		slog.Warn("unknown transport event kind", slog.String("kind", string(kind)))
	}
	e.mu.Unlock()

	e.dispatch(pending, trip)
}

// UpdateMetrics derives a telemetry snapshot from the account inputs and the
// rolling transport state, records it, and evaluates the hard triggers.
func (e *Engine) UpdateMetrics(m MetricsUpdate) domain.TelemetrySnapshot {
	now := e.now()

	e.mu.Lock()
	var pending []domain.Alert
	var trip string

	wsSilence := int64(-1)
	if !e.lastWsUpdate.IsZero() {
		wsSilence = now.Sub(e.lastWsUpdate).Milliseconds()
	}

	var feeBps float64
	if m.Balance.Sign() > 0 {
		feeBps = m.CommissionTotal.Div(m.Balance).Mul(decimal.NewFromInt(10000)).InexactFloat64()
	}

	snap := domain.TelemetrySnapshot{
		Timestamp:        now,
		Balance:          m.Balance,
		PnlTotal:         m.PnlTotal,
		DailyPnl:         m.DailyPnl,
		MaxDailyDrawdown: m.MaxDailyDrawdown,
		CurrentDrawdown:  m.CurrentDrawdown,
		OrdersPerMin:     float64(countSince(e.orderTimes, now.Add(-time.Hour))) / 60,
		FillsPerMin:      float64(countSince(e.fillTimes, now.Add(-time.Hour))) / 60,
		OpenOrders:       m.OpenOrders,
		ExposurePct:      m.ExposurePct,
		AvgWsLatencyMs:   e.wsLatency.avg(),
		AvgRestLatencyMs: e.restLatency.avg(),
		WsErrors:         e.wsErrors,
		RestErrors:       e.restErrors,
		WsSilenceMs:      wsSilence,
		FeeImpactBps:     feeBps,
	}

	e.snapshots = append(e.snapshots, snap)
	if len(e.snapshots) > e.cfg.SnapshotHistory {
		e.snapshots = e.snapshots[len(e.snapshots)-e.cfg.SnapshotHistory:]
	}

	// Staleness is advisory: CRIT without an automatic kill, the operator
	// must act on connectivity.
	if wsSilence >= 0 && wsSilence > e.cfg.WsStaleThresholdMs && !e.wsStaleAlerted {
		e.wsStaleAlerted = true
		pending = append(pending, e.recordLocked(domain.AlertCrit, "websocket feed stale", map[string]string{
			"silence_ms":   fmt.Sprintf("%d", wsSilence),
			"threshold_ms": fmt.Sprintf("%d", e.cfg.WsStaleThresholdMs),
		}))
	}

	switch {
	case m.MaxDailyDrawdown > e.cfg.MaxDailyDDHard:
		if !e.ddHardAlerted {
			e.ddHardAlerted = true
			pending = append(pending, e.recordLocked(domain.AlertCrit, "daily drawdown exceeds hard limit", map[string]string{
				"max_dd_daily": fmt.Sprintf("%.4f", m.MaxDailyDrawdown),
				"hard_limit":   fmt.Sprintf("%.4f", e.cfg.MaxDailyDDHard),
			}))
			trip = "daily drawdown exceeds hard limit"
		}
	case m.MaxDailyDrawdown > e.cfg.MaxDailyDDSoft:
		if !e.ddSoftAlerted {
			e.ddSoftAlerted = true
			pending = append(pending, e.recordLocked(domain.AlertWarn, "daily drawdown above soft limit", map[string]string{
				"max_dd_daily": fmt.Sprintf("%.4f", m.MaxDailyDrawdown),
				"soft_limit":   fmt.Sprintf("%.4f", e.cfg.MaxDailyDDSoft),
			}))
		}
	default:
		e.ddSoftAlerted = false
	}

	e.mu.Unlock()

	e.dispatch(pending, trip)
	return snap
}

// Summary aggregates counters for export.
type Summary struct {
	Decisions         uint64            `json:"decisions"`
	RejectedDecisions uint64            `json:"rejected_decisions"`
	Trades            int               `json:"trades"`
	AlertsByLevel     map[string]int    `json:"alerts_by_level"`
	WsErrors          uint64            `json:"ws_errors"`
	RestErrors        uint64            `json:"rest_errors"`
	KillSwitch        bool              `json:"kill_switch"`
	KillReason        string            `json:"kill_reason,omitempty"`
}

// Export is a read-only projection of the guardrail state for external
// reporting. Building it does not mutate engine state.
type Export struct {
	Config    Config                     `json:"config"`
	Summary   Summary                    `json:"summary"`
	Alerts    []domain.Alert             `json:"alerts"`
	Snapshots []domain.TelemetrySnapshot `json:"snapshots"`
}

// ExportSnapshot returns copies of the configuration, summary counters,
// alert history, and the retained telemetry snapshots.
func (e *Engine) ExportSnapshot() Export {
	e.mu.Lock()
	defer e.mu.Unlock()

	byLevel := make(map[string]int)
	for _, a := range e.alerts {
		byLevel[string(a.Level)]++
	}

	alerts := make([]domain.Alert, len(e.alerts))
	copy(alerts, e.alerts)
	snaps := make([]domain.TelemetrySnapshot, len(e.snapshots))
	copy(snaps, e.snapshots)

	return Export{
		Config: e.cfg,
		Summary: Summary{
			Decisions:         e.decisionCount,
			RejectedDecisions: e.rejectedCount,
			Trades:            len(e.trades),
			AlertsByLevel:     byLevel,
			WsErrors:          e.wsErrors,
			RestErrors:        e.restErrors,
			KillSwitch:        e.killed.Load(),
			KillReason:        e.killReason,
		},
		Alerts:    alerts,
		Snapshots: snaps,
	}
}

// Trades returns a copy of the trade ledger.
func (e *Engine) Trades() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// recordLocked appends an alert to the bounded history. Caller holds e.mu.
func (e *Engine) recordLocked(level domain.AlertLevel, msg string, details map[string]string) domain.Alert {
	a := domain.Alert{Level: level, Timestamp: e.now(), Message: msg, Details: details}
	e.alerts = append(e.alerts, a)
	if len(e.alerts) > e.cfg.AlertHistory {
		e.alerts = e.alerts[len(e.alerts)-e.cfg.AlertHistory:]
	}
	return a
}

// dispatch notifies alert subscribers and optionally trips the kill switch.
// Runs outside e.mu so callbacks can safely re-enter the engine.
func (e *Engine) dispatch(alerts []domain.Alert, trip string) {
	if len(alerts) > 0 {
		e.mu.Lock()
		subs := make([]func(domain.Alert), len(e.alertSubs))
		copy(subs, e.alertSubs)
		e.mu.Unlock()

		for _, a := range alerts {
			obs.AlertsTotal.WithLabelValues(string(a.Level)).Inc()
			for _, fn := range subs {
				e.safeNotifyAlert(fn, a)
			}
		}
	}
	if trip != "" {
		e.TripKillSwitch(trip)
	}
}

func (e *Engine) safeNotifyAlert(fn func(domain.Alert), a domain.Alert) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alert subscriber panicked", slog.Any("panic", r))
		}
	}()
	fn(a)
}

func (e *Engine) safeNotifyKill(fn func(string), reason string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("kill-switch subscriber panicked", slog.Any("panic", r))
		}
	}()
	fn(reason)
}

func (e *Engine) safeNotifyTrade(fn func(Trade), t Trade) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("trade subscriber panicked", slog.Any("panic", r))
		}
	}()
	fn(t)
}

// pruneWindow drops timestamps at or before the cutoff, assuming ascending
// order.
func pruneWindow(ts []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(ts) && !ts[idx].After(cutoff) {
		idx++
	}
	return ts[idx:]
}

func countSince(ts []time.Time, cutoff time.Time) int {
	n := 0
	for _, t := range ts {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
