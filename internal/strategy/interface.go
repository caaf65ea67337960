// Package strategy contains the pluggable decision engines stepped by the
// route scheduler. A strategy is fed its candle window one bar at a time and
// answers entry/exit predicates; the Go* actions delegate order placement to
// the execution collaborator.
package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
	"tradeflow/internal/execution"
)

// Strategy is the capability set every decision engine implements. The
// scheduler evaluates predicates in a fixed order: exit before entry, long
// before short. ShouldLong and ShouldShort are mutually exclusive by
// contract; a variant where both can be true in the same step is a strategy
// bug, and the engine resolves it by checking long first.
type Strategy interface {
	Name() string

	// OnCandle extends the candle window. The scheduler calls it exactly
	// once per processed step, before any predicate.
	OnCandle(c domain.Candle)

	// SyncPosition informs the strategy of the route's open position (nil
	// when flat). Called before predicates on every step.
	SyncPosition(p *domain.Position)

	ShouldLong() bool
	ShouldShort() bool
	ShouldExit() bool

	// ShouldCancelEntry is consulted while an entry order is resting.
	// Base defaults it to "never cancel".
	ShouldCancelEntry() bool

	GoLong(ctx context.Context, exec execution.Executor) (*execution.Report, error)
	GoShort(ctx context.Context, exec execution.Executor) (*execution.Report, error)
	GoExit(ctx context.Context, exec execution.Executor) (*execution.Report, error)

	// Reason explains the most recent predicate outcome; it seeds the
	// free-text reason of the emitted decision.
	Reason() string

	// Confidence grades the most recent signal in [0,1].
	Confidence() float64

	// SizeHint optionally suggests a fraction of capital; zero when unset.
	SizeHint() decimal.Decimal
}
