// Package engine implements the synchronized route scheduler: a single
// global clock drives every registered route through one decision step per
// timestamp, with the guardrail consulted before entries and informed of
// every decision, trade and failure.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tradeflow/internal/domain"
	"tradeflow/internal/execution"
	"tradeflow/internal/guardrail"
	"tradeflow/internal/obs"
)

// StepOutcome classifies what a StepRoute call did.
type StepOutcome int

const (
	// StepProcessed means the route ran its decision step at the current
	// global time.
	StepProcessed StepOutcome = iota + 1

	// StepSkippedAlreadyProcessed means the route had already stepped at
	// this timestamp; repeating a step is always a no-op.
	StepSkippedAlreadyProcessed

	// StepSkippedClockNotSet means the global clock has never been set.
	StepSkippedClockNotSet

	// StepSkippedDisabled means the route is Paused or Error.
	StepSkippedDisabled
)

func (o StepOutcome) String() string {
	switch o {
	case StepProcessed:
		return "processed"
	case StepSkippedAlreadyProcessed:
		return "skipped_already_processed"
	case StepSkippedClockNotSet:
		return "skipped_clock_not_set"
	case StepSkippedDisabled:
		return "skipped_disabled"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// RouteScheduler owns the global clock and the registered routes. It is
// single-threaded by design: the feed loop is the only caller, so no internal
// locking is needed and every step is deterministic.
type RouteScheduler struct {
	guard *guardrail.Engine
	exec  execution.Executor

	routes []*Route
	index  map[string]*Route

	clock    time.Time
	clockSet bool
}

// NewRouteScheduler creates an empty scheduler bound to a guardrail and an
// executor.
func NewRouteScheduler(guard *guardrail.Engine, exec execution.Executor) *RouteScheduler {
	return &RouteScheduler{
		guard: guard,
		exec:  exec,
		index: make(map[string]*Route),
	}
}

// AddRoute registers a route. The identity tuple must be unique; collisions
// return *domain.DuplicateRouteError and leave the scheduler unchanged.
func (s *RouteScheduler) AddRoute(r *Route) error {
	id := r.ID()
	if _, exists := s.index[id]; exists {
		return &domain.DuplicateRouteError{
			Exchange:   r.Exchange,
			Symbol:     r.Symbol,
			Timeframe:  r.Timeframe,
			StrategyID: r.Strategy.Name(),
		}
	}
	if r.State == "" {
		r.State = RouteIdle
	}
	s.routes = append(s.routes, r)
	s.index[id] = r
	slog.Info("route registered", slog.String("route", id), slog.String("state", string(r.State)))
	return nil
}

// RemoveRoute unregisters a route and reports whether it existed. Removing a
// route with an open position is allowed; the position is abandoned with the
// route.
func (s *RouteScheduler) RemoveRoute(id string) bool {
	if _, exists := s.index[id]; !exists {
		return false
	}
	delete(s.index, id)
	for i, r := range s.routes {
		if r.ID() == id {
			s.routes = append(s.routes[:i], s.routes[i+1:]...)
			break
		}
	}
	slog.Info("route removed", slog.String("route", id))
	return true
}

// Route returns a registered route by identity.
func (s *RouteScheduler) Route(id string) (*Route, bool) {
	r, ok := s.index[id]
	return r, ok
}

// Routes returns every registered route in insertion order, disabled ones
// included.
func (s *RouteScheduler) Routes() []*Route {
	out := make([]*Route, len(s.routes))
	copy(out, s.routes)
	return out
}

// EnabledRoutes returns the Idle and Running routes in insertion order.
func (s *RouteScheduler) EnabledRoutes() []*Route {
	out := make([]*Route, 0, len(s.routes))
	for _, r := range s.routes {
		if r.Enabled() {
			out = append(out, r)
		}
	}
	return out
}

// GlobalTime returns the clock and whether it has ever been set.
func (s *RouteScheduler) GlobalTime() (time.Time, bool) {
	return s.clock, s.clockSet
}

// SetGlobalTime advances the shared clock. The clock is monotone
// non-decreasing; a regression returns *domain.TimeRegressionError and
// leaves the clock unchanged. Setting the same time again is a no-op.
func (s *RouteScheduler) SetGlobalTime(t time.Time) error {
	if s.clockSet && t.Before(s.clock) {
		return &domain.TimeRegressionError{Current: s.clock, Requested: t}
	}
	s.clock = t
	s.clockSet = true
	return nil
}

// PushCandle buffers a candle into the inbox of every route consuming its
// stream. Candles are consumed on the next step whose global time covers
// them.
func (s *RouteScheduler) PushCandle(c domain.Candle) {
	stream := c.Stream()
	for _, r := range s.routes {
		if r.Stream() == stream {
			r.inbox = append(r.inbox, c)
		}
	}
}

// StepAll steps every enabled route at the current global time, in insertion
// order. Step errors are contained per route and do not stop the sweep.
func (s *RouteScheduler) StepAll(ctx context.Context) {
	for _, r := range s.routes {
		if !r.Enabled() {
			continue
		}
		if _, err := s.StepRoute(ctx, r.ID()); err != nil {
			slog.Error("route step failed", slog.String("route", r.ID()), slog.Any("error", err))
		}
	}
}

// StepRoute runs one decision step for a route at the current global time.
// The route's current_time and last_processed_timestamp are stamped before
// any strategy callback runs, so a repeated step at the same timestamp is a
// no-op and a strategy can never observe a time ahead of the clock. Strategy
// panics and action errors move the route to Error with a CRIT alert; other
// routes are unaffected.
func (s *RouteScheduler) StepRoute(ctx context.Context, id string) (StepOutcome, error) {
	r, ok := s.index[id]
	if !ok {
		return 0, domain.ErrRouteNotFound
	}
	if !s.clockSet {
		return StepSkippedClockNotSet, nil
	}
	if !r.Enabled() {
		return StepSkippedDisabled, nil
	}
	if r.stepped && !r.LastProcessed.Before(s.clock) {
		return StepSkippedAlreadyProcessed, nil
	}

	start := time.Now()
	defer func() {
		obs.StepDuration.Observe(time.Since(start).Seconds())
	}()

	r.State = RouteRunning
	r.CurrentTime = s.clock
	r.LastProcessed = s.clock
	r.stepped = true

	err := s.runStep(ctx, r)
	if err != nil {
		r.State = RouteError
		s.guard.Alert(domain.AlertCrit, "route step failed", map[string]string{
			"route":    r.ID(),
			"exchange": r.Exchange,
			"symbol":   r.Symbol,
			"error":    err.Error(),
		})
		return StepProcessed, err
	}
	return StepProcessed, nil
}

// runStep feeds due candles to the strategy and drives the decision machine.
// A panic inside a strategy callback is converted to an error here so the
// scheduler survives broken strategies.
func (s *RouteScheduler) runStep(ctx context.Context, r *Route) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("strategy %s panicked: %v", r.Strategy.Name(), rec)
		}
	}()

	s.drainInbox(r)
	r.Strategy.SyncPosition(r.Position)

	exec := routeExecutor{id: r.ID(), inner: s.exec}

	switch {
	case r.Position != nil:
		return s.stepInPosition(ctx, r, exec)
	case len(r.Pending) > 0:
		return s.stepPendingEntry(ctx, r, exec)
	default:
		return s.stepFlat(ctx, r, exec)
	}
}

// drainInbox hands the strategy every buffered candle whose timestamp is at
// or before the global time, preserving arrival order.
func (s *RouteScheduler) drainInbox(r *Route) {
	n := 0
	for _, c := range r.inbox {
		if c.Timestamp.After(s.clock) {
			break
		}
		r.Strategy.OnCandle(c)
		r.lastClose = c.Close
		n++
	}
	r.inbox = r.inbox[n:]
}

func (s *RouteScheduler) stepInPosition(ctx context.Context, r *Route, exec execution.Executor) error {
	if len(r.Pending) > 0 {
		s.guard.LogDecision(r.ID(), domain.Hold("awaiting exit fill"), true, "")
		return nil
	}
	if !r.Strategy.ShouldExit() {
		s.guard.LogDecision(r.ID(), domain.Hold("holding position"), true, "")
		return nil
	}

	rep, err := r.Strategy.GoExit(ctx, exec)
	if err != nil {
		s.guard.LogDecision(r.ID(), s.decision(r, domain.IntentExit), false, err.Error())
		return fmt.Errorf("exit action: %w", err)
	}

	d := s.decision(r, domain.IntentExit)
	s.guard.LogDecision(r.ID(), d, true, "")

	if rep.Fill != nil {
		s.closePosition(r, *rep.Fill)
	} else {
		r.Pending = append(r.Pending, rep.Order)
		r.pendingSince = s.clock
	}
	return nil
}

func (s *RouteScheduler) stepPendingEntry(ctx context.Context, r *Route, exec execution.Executor) error {
	expired := r.Order.CancelEntryAfter > 0 &&
		s.clock.Sub(r.pendingSince) > r.Order.CancelEntryAfter

	if !expired && !r.Strategy.ShouldCancelEntry() {
		s.guard.LogDecision(r.ID(), domain.Hold("awaiting entry fill"), true, "")
		return nil
	}

	for _, o := range r.Pending {
		if err := exec.Cancel(ctx, o.ID); err != nil {
			return fmt.Errorf("cancel entry %s: %w", o.ID, err)
		}
	}
	r.Pending = nil

	reason := "entry canceled by strategy"
	if expired {
		reason = "entry canceled after timeout"
	}
	s.guard.LogDecision(r.ID(), domain.Hold(reason), true, "")
	return nil
}

func (s *RouteScheduler) stepFlat(ctx context.Context, r *Route, exec execution.Executor) error {
	long := r.Strategy.ShouldLong()
	short := false
	if !long && !r.Risk.LongOnly {
		short = r.Strategy.ShouldShort()
	}

	if !long && !short {
		s.guard.LogDecision(r.ID(), domain.Hold("no signal"), true, "")
		return nil
	}

	intent := domain.IntentBuy
	if short {
		intent = domain.IntentSell
	}
	d := s.decision(r, intent)

	// The kill switch gates entries only; it is re-read on every step so a
	// trip mid-run takes effect on the very next decision.
	if s.guard.KillSwitchActive() {
		s.guard.LogDecision(r.ID(), d, false, "kill switch active")
		return nil
	}
	if r.Risk.MinConfidence > 0 && d.Confidence < r.Risk.MinConfidence {
		s.guard.LogDecision(r.ID(), d, false,
			fmt.Sprintf("confidence %.2f below route floor %.2f", d.Confidence, r.Risk.MinConfidence))
		return nil
	}

	var (
		rep *execution.Report
		err error
	)
	if long {
		rep, err = r.Strategy.GoLong(ctx, exec)
	} else {
		rep, err = r.Strategy.GoShort(ctx, exec)
	}
	if err != nil {
		s.guard.LogDecision(r.ID(), d, false, err.Error())
		return fmt.Errorf("entry action: %w", err)
	}

	s.guard.LogDecision(r.ID(), d, true, "")

	if rep.Fill != nil {
		s.openPosition(r, *rep.Fill)
	} else {
		r.Pending = append(r.Pending, rep.Order)
		r.pendingSince = s.clock
	}
	return nil
}

// ApplyFill settles an asynchronous fill for a resting order: an entry fill
// opens the route's position, a fill opposing an open position closes it.
// Unknown routes return ErrRouteNotFound; fills for unknown orders are
// ignored with a WARN alert.
func (s *RouteScheduler) ApplyFill(routeID string, f execution.Fill) error {
	r, ok := s.index[routeID]
	if !ok {
		return domain.ErrRouteNotFound
	}

	matched := false
	for i, o := range r.Pending {
		if o.ID == f.OrderID {
			r.Pending = append(r.Pending[:i], r.Pending[i+1:]...)
			matched = true
			break
		}
	}
	if !matched {
		s.guard.Alert(domain.AlertWarn, "fill for unknown order", map[string]string{
			"route": routeID,
			"order": f.OrderID,
		})
		return nil
	}

	if r.Position != nil && opposes(r.Position.Side, f.Side) {
		s.closePosition(r, f)
	} else {
		s.openPosition(r, f)
	}
	return nil
}

func (s *RouteScheduler) openPosition(r *Route, f execution.Fill) {
	side := domain.PositionLong
	if f.Side == domain.SideSell {
		side = domain.PositionShort
	}
	r.Position = &domain.Position{
		Side:       side,
		EntryPrice: f.Price,
		Size:       f.Qty,
		OpenedAt:   s.clock,
	}
	s.guard.LogTrade(guardrail.Trade{
		RouteID:    r.ID(),
		Side:       string(side),
		Qty:        f.Qty,
		EntryPrice: f.Price,
		Commission: f.Commission,
		Ts:         s.clock,
	})
}

func (s *RouteScheduler) closePosition(r *Route, f execution.Fill) {
	pos := r.Position
	pnl := pos.Pnl(f.Price)
	exit := f.Price
	s.guard.LogTrade(guardrail.Trade{
		RouteID:    r.ID(),
		Side:       string(pos.Side),
		Qty:        pos.Size,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  &exit,
		Pnl:        &pnl,
		Commission: f.Commission,
		Ts:         s.clock,
	})
	r.Position = nil
	r.Strategy.SyncPosition(nil)
}

// decision snapshots the strategy's current reason/confidence/size hint into
// a Decision with the given intent.
func (s *RouteScheduler) decision(r *Route, intent domain.Intent) domain.Decision {
	return domain.Decision{
		Intent:     intent,
		Confidence: r.Strategy.Confidence(),
		SizeHint:   r.Strategy.SizeHint(),
		Reason:     r.Strategy.Reason(),
	}
}

func opposes(side domain.PositionSide, orderSide string) bool {
	return (side == domain.PositionLong && orderSide == domain.SideSell) ||
		(side == domain.PositionShort && orderSide == domain.SideBuy)
}

// routeExecutor stamps the route identity onto every order before handing it
// to the real executor, so fills can be attributed without strategy help.
type routeExecutor struct {
	id    string
	inner execution.Executor
}

func (x routeExecutor) Submit(ctx context.Context, o domain.Order) (*execution.Report, error) {
	o.RouteID = x.id
	return x.inner.Submit(ctx, o)
}

func (x routeExecutor) Cancel(ctx context.Context, orderID string) error {
	return x.inner.Cancel(ctx, orderID)
}
