package strategy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
	"tradeflow/internal/execution"
)

// ErrNoPosition is returned by GoExit when the strategy is flat.
var ErrNoPosition = errors.New("no open position to exit")

// Base carries the state shared by every strategy variant: the bounded
// candle window, the synced position, and default action implementations
// that place market orders through the executor. Variants embed Base and
// implement the predicates.
type Base struct {
	symbol    string
	qty       decimal.Decimal
	maxWindow int

	window     []domain.Candle
	pos        *domain.Position
	reason     string
	confidence float64
	sizeHint   decimal.Decimal
}

// NewBase builds the shared strategy state. maxWindow bounds the retained
// candle history.
func NewBase(symbol string, qty decimal.Decimal, maxWindow int) Base {
	if maxWindow < 2 {
		maxWindow = 2
	}
	return Base{
		symbol:    symbol,
		qty:       qty,
		maxWindow: maxWindow,
		window:    make([]domain.Candle, 0, maxWindow),
	}
}

// OnCandle appends a candle to the window, dropping the oldest bar once the
// window is full.
func (b *Base) OnCandle(c domain.Candle) {
	if len(b.window) == b.maxWindow {
		copy(b.window, b.window[1:])
		b.window[len(b.window)-1] = c
		return
	}
	b.window = append(b.window, c)
}

// Candles returns the current window, oldest first.
func (b *Base) Candles() []domain.Candle {
	return b.window
}

// SyncPosition records the route's open position for predicate use.
func (b *Base) SyncPosition(p *domain.Position) {
	b.pos = p
}

// Position returns the synced position, nil when flat.
func (b *Base) Position() *domain.Position {
	return b.pos
}

// ShouldCancelEntry defaults to never cancelling a resting entry.
func (b *Base) ShouldCancelEntry() bool {
	return false
}

// Reason returns the explanation recorded by the last predicate that fired.
func (b *Base) Reason() string {
	if b.reason == "" {
		return "no signal"
	}
	return b.reason
}

func (b *Base) setReason(reason string) {
	b.reason = reason
}

// Confidence defaults to full conviction unless a predicate graded the
// signal.
func (b *Base) Confidence() float64 {
	if b.confidence == 0 {
		return 1
	}
	return b.confidence
}

func (b *Base) setConfidence(c float64) {
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	b.confidence = c
}

// SizeHint returns the optional capital fraction suggestion.
func (b *Base) SizeHint() decimal.Decimal {
	return b.sizeHint
}

// GoLong submits a market buy for the configured quantity.
func (b *Base) GoLong(ctx context.Context, exec execution.Executor) (*execution.Report, error) {
	return exec.Submit(ctx, b.marketOrder(domain.SideBuy, b.qty))
}

// GoShort submits a market sell for the configured quantity.
func (b *Base) GoShort(ctx context.Context, exec execution.Executor) (*execution.Report, error) {
	return exec.Submit(ctx, b.marketOrder(domain.SideSell, b.qty))
}

// GoExit closes the synced position with an opposing market order.
func (b *Base) GoExit(ctx context.Context, exec execution.Executor) (*execution.Report, error) {
	if b.pos == nil {
		return nil, ErrNoPosition
	}
	side := domain.SideSell
	if b.pos.Side == domain.PositionShort {
		side = domain.SideBuy
	}
	return exec.Submit(ctx, b.marketOrder(side, b.pos.Size))
}

func (b *Base) marketOrder(side string, qty decimal.Decimal) domain.Order {
	return domain.Order{
		ID:        uuid.NewString(),
		Symbol:    b.symbol,
		Side:      side,
		Type:      domain.OrderTypeMarket,
		Qty:       qty,
		Status:    domain.OrderStatusNew,
		CreatedAt: time.Now(),
	}
}
