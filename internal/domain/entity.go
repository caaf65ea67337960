package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is a persisted trade ledger row. Entry-only trades carry a
// zero ExitPrice/Pnl and Closed=false.
type TradeRecord struct {
	ID         string          `gorm:"primaryKey" json:"id"`
	RouteID    string          `gorm:"index" json:"route_id"`
	Side       string          `json:"side"`
	Qty        decimal.Decimal `gorm:"type:numeric" json:"qty"`
	EntryPrice decimal.Decimal `gorm:"type:numeric" json:"entry_price"`
	ExitPrice  decimal.Decimal `gorm:"type:numeric" json:"exit_price"`
	Pnl        decimal.Decimal `gorm:"type:numeric" json:"pnl"`
	Commission decimal.Decimal `gorm:"type:numeric" json:"commission"`
	Closed     bool            `json:"closed"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AlertRecord is a persisted guardrail alert.
type AlertRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Level     string    `gorm:"index" json:"level"`
	Message   string    `json:"message"`
	Details   string    `json:"details"` // JSON-encoded detail map
	CreatedAt time.Time `json:"created_at"`
}

// SnapshotRecord is a persisted telemetry snapshot.
type SnapshotRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Payload   string    `json:"payload"` // JSON-encoded TelemetrySnapshot
	CreatedAt time.Time `json:"created_at"`
}
