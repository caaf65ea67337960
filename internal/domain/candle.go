package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe identifies a candle aggregation interval, e.g. "1m", "5m", "1h".
type Timeframe string

// Candle represents one OHLCV bar of a (symbol, timeframe) stream.
// Candles are immutable once produced; the upstream feed guarantees
// non-decreasing timestamps and no duplicates within a stream.
type Candle struct {
	Timestamp time.Time       `json:"ts"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"timeframe"`
}

// Stream returns the stream key a candle belongs to.
func (c Candle) Stream() string {
	return c.Symbol + "@" + string(c.Timeframe)
}
