package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSide marks the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Position is an open exposure owned exclusively by one route. A route holds
// at most one open position at any time.
type Position struct {
	Side       PositionSide    `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Size       decimal.Decimal `json:"size"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// Pnl returns the unrealized profit of the position at the given mark price.
func (p *Position) Pnl(mark decimal.Decimal) decimal.Decimal {
	if p.Side == PositionShort {
		return p.EntryPrice.Sub(mark).Mul(p.Size)
	}
	return mark.Sub(p.EntryPrice).Mul(p.Size)
}
