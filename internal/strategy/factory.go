package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Params holds the tunables shared by the built-in strategies. Zero values
// are replaced with defaults by Build.
type Params struct {
	FastPeriod    int
	SlowPeriod    int
	RSIPeriod     int
	RSIOverbought float64
	RSIOversold   float64
	Qty           decimal.Decimal
	MaxWindow     int
}

func (p Params) withDefaults() Params {
	if p.FastPeriod == 0 {
		p.FastPeriod = 9
	}
	if p.SlowPeriod == 0 {
		p.SlowPeriod = 21
	}
	if p.RSIPeriod == 0 {
		p.RSIPeriod = 14
	}
	if p.RSIOverbought == 0 {
		p.RSIOverbought = 70
	}
	if p.RSIOversold == 0 {
		p.RSIOversold = 30
	}
	if p.Qty.IsZero() {
		p.Qty = decimal.NewFromFloat(0.01)
	}
	if p.MaxWindow == 0 {
		p.MaxWindow = 200
	}
	return p
}

// Build constructs a strategy by mode name. An empty mode selects the plain
// crossover strategy.
func Build(mode, symbol string, p Params) (Strategy, error) {
	p = p.withDefaults()
	switch mode {
	case "", "ema_cross":
		return NewEMACross(symbol, p.Qty, p.FastPeriod, p.SlowPeriod, p.MaxWindow), nil
	case "ema_rsi":
		return NewEMARSI(symbol, p.Qty, p.FastPeriod, p.SlowPeriod, p.RSIPeriod, p.RSIOverbought, p.RSIOversold, p.MaxWindow), nil
	default:
		return nil, fmt.Errorf("unknown strategy mode %q", mode)
	}
}
