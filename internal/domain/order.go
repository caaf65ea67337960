package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents an order handed to the execution collaborator.
type Order struct {
	ID        string          `json:"id"`
	RouteID   string          `json:"route_id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`  // SideBuy, SideSell
	Type      string          `json:"type"`  // OrderTypeLimit, OrderTypeMarket
	Price     decimal.Decimal `json:"price"` // zero for market orders
	Qty       decimal.Decimal `json:"qty"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"

	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
)

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyFilled
}
