package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
	"tradeflow/internal/indicator"
)

// EMACross enters long on the fast EMA crossing above the slow EMA and
// short on the mirror cross; an open position exits on the opposite cross.
type EMACross struct {
	Base
	fast int
	slow int
}

// NewEMACross creates the crossover strategy.
func NewEMACross(symbol string, qty decimal.Decimal, fast, slow, maxWindow int) *EMACross {
	if fast >= slow {
		panic("strategy: fast period must be less than slow period")
	}
	return &EMACross{
		Base: NewBase(symbol, qty, maxWindow),
		fast: fast,
		slow: slow,
	}
}

func (s *EMACross) Name() string { return "ema_cross" }

func (s *EMACross) ShouldLong() bool {
	fast, slow := s.emas()
	if indicator.Crossover(fast, slow) {
		s.setReason(fmt.Sprintf("EMA%d crossed above EMA%d", s.fast, s.slow))
		return true
	}
	return false
}

func (s *EMACross) ShouldShort() bool {
	fast, slow := s.emas()
	if indicator.Crossunder(fast, slow) {
		s.setReason(fmt.Sprintf("EMA%d crossed below EMA%d", s.fast, s.slow))
		return true
	}
	return false
}

func (s *EMACross) ShouldExit() bool {
	pos := s.Position()
	if pos == nil {
		return false
	}
	fast, slow := s.emas()
	if pos.Side == domain.PositionLong && indicator.Crossunder(fast, slow) {
		s.setReason(fmt.Sprintf("EMA%d crossed below EMA%d against long", s.fast, s.slow))
		return true
	}
	if pos.Side == domain.PositionShort && indicator.Crossover(fast, slow) {
		s.setReason(fmt.Sprintf("EMA%d crossed above EMA%d against short", s.fast, s.slow))
		return true
	}
	return false
}

func (s *EMACross) emas() ([]float64, []float64) {
	candles := s.Candles()
	return indicator.EMA(candles, s.fast), indicator.EMA(candles, s.slow)
}
