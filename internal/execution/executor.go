// Package execution handles order placement against a venue. The scheduler
// core only ever talks to the Executor interface; the paper implementation
// below is the default collaborator for dry runs.
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
)

// Fill reports an executed quantity for an order.
type Fill struct {
	ID         string
	OrderID    string
	RouteID    string
	Symbol     string
	Side       string
	Qty        decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	Ts         time.Time
}

// Report is the outcome of a Submit call. Fill is nil when the order is
// resting at the venue and will fill asynchronously.
type Report struct {
	Order domain.Order
	Fill  *Fill
}

// Executor places and cancels orders on behalf of strategy actions.
type Executor interface {
	Submit(ctx context.Context, order domain.Order) (*Report, error)
	Cancel(ctx context.Context, orderID string) error
}
