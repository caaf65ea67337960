package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
	"tradeflow/internal/indicator"
)

// EMARSI is the crossover strategy with an RSI filter: entries are skipped
// when momentum is already exhausted in the entry direction, and an open
// position also exits on an RSI extreme.
type EMARSI struct {
	Base
	fast       int
	slow       int
	rsiPeriod  int
	overbought float64
	oversold   float64
}

// NewEMARSI creates the RSI-filtered crossover strategy.
func NewEMARSI(symbol string, qty decimal.Decimal, fast, slow, rsiPeriod int, overbought, oversold float64, maxWindow int) *EMARSI {
	if fast >= slow {
		panic("strategy: fast period must be less than slow period")
	}
	if oversold >= overbought {
		panic("strategy: oversold level must be below overbought level")
	}
	return &EMARSI{
		Base:       NewBase(symbol, qty, maxWindow),
		fast:       fast,
		slow:       slow,
		rsiPeriod:  rsiPeriod,
		overbought: overbought,
		oversold:   oversold,
	}
}

func (s *EMARSI) Name() string { return "ema_rsi" }

func (s *EMARSI) ShouldLong() bool {
	fast, slow := s.emas()
	if !indicator.Crossover(fast, slow) {
		return false
	}
	rsi, ok := s.lastRSI()
	if !ok || rsi >= s.overbought {
		return false
	}
	s.setReason(fmt.Sprintf("EMA%d crossed above EMA%d with RSI %.1f below %.0f", s.fast, s.slow, rsi, s.overbought))
	s.setConfidence((s.overbought - rsi) / s.overbought)
	return true
}

func (s *EMARSI) ShouldShort() bool {
	fast, slow := s.emas()
	if !indicator.Crossunder(fast, slow) {
		return false
	}
	rsi, ok := s.lastRSI()
	if !ok || rsi <= s.oversold {
		return false
	}
	s.setReason(fmt.Sprintf("EMA%d crossed below EMA%d with RSI %.1f above %.0f", s.fast, s.slow, rsi, s.oversold))
	s.setConfidence((rsi - s.oversold) / (100 - s.oversold))
	return true
}

func (s *EMARSI) ShouldExit() bool {
	pos := s.Position()
	if pos == nil {
		return false
	}
	fast, slow := s.emas()
	rsi, rsiOK := s.lastRSI()

	if pos.Side == domain.PositionLong {
		if indicator.Crossunder(fast, slow) {
			s.setReason("EMA cross against long")
			return true
		}
		if rsiOK && rsi >= s.overbought {
			s.setReason(fmt.Sprintf("RSI %.1f reached overbought %.0f", rsi, s.overbought))
			return true
		}
		return false
	}

	if indicator.Crossover(fast, slow) {
		s.setReason("EMA cross against short")
		return true
	}
	if rsiOK && rsi <= s.oversold {
		s.setReason(fmt.Sprintf("RSI %.1f reached oversold %.0f", rsi, s.oversold))
		return true
	}
	return false
}

func (s *EMARSI) emas() ([]float64, []float64) {
	candles := s.Candles()
	return indicator.EMA(candles, s.fast), indicator.EMA(candles, s.slow)
}

func (s *EMARSI) lastRSI() (float64, bool) {
	series := indicator.RSI(s.Candles(), s.rsiPeriod)
	for i := len(series) - 1; i >= 0; i-- {
		if indicator.Defined(series[i]) {
			return series[i], true
		}
	}
	return 0, false
}
