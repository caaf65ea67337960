package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
)

func candlesFromCloses(closes ...float64) []domain.Candle {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Close:     decimal.NewFromFloat(c),
			Symbol:    "BTCUSDT",
			Timeframe: "1m",
		}
	}
	return out
}

func TestSMA(t *testing.T) {
	candles := candlesFromCloses(1, 2, 3, 4, 5)
	out := SMA(candles, 3)

	if len(out) != len(candles) {
		t.Fatalf("Expected length %d, got %d", len(candles), len(out))
	}

	for i := 0; i < 2; i++ {
		if Defined(out[i]) {
			t.Errorf("Index %d should be undefined, got %v", i, out[i])
		}
	}

	// (1+2+3)/3=2, (2+3+4)/3=3, (3+4+5)/3=4
	want := []float64{2, 3, 4}
	for i, w := range want {
		if got := out[i+2]; math.Abs(got-w) > 1e-9 {
			t.Errorf("SMA[%d] = %v, want %v", i+2, got, w)
		}
	}
}

func TestEMA_SeedAndRecurrence(t *testing.T) {
	candles := candlesFromCloses(10, 20, 30, 40)
	out := EMA(candles, 3)

	if Defined(out[0]) || Defined(out[1]) {
		t.Error("First period-1 entries should be undefined")
	}

	// Seed = SMA of first 3 closes = 20
	if math.Abs(out[2]-20) > 1e-9 {
		t.Errorf("EMA seed = %v, want 20", out[2])
	}

	// k = 2/(3+1) = 0.5 -> 40*0.5 + 20*0.5 = 30
	if math.Abs(out[3]-30) > 1e-9 {
		t.Errorf("EMA[3] = %v, want 30", out[3])
	}
}

func TestEMA_ShortInput(t *testing.T) {
	candles := candlesFromCloses(1, 2)
	out := EMA(candles, 5)
	if len(out) != 2 {
		t.Fatalf("Expected length 2, got %d", len(out))
	}
	for i, v := range out {
		if Defined(v) {
			t.Errorf("Index %d should be undefined, got %v", i, v)
		}
	}
}

func TestRSI(t *testing.T) {
	t.Run("undefined below period", func(t *testing.T) {
		candles := candlesFromCloses(1, 2, 3, 4, 5, 6)
		out := RSI(candles, 5)
		for i := 0; i < 5; i++ {
			if Defined(out[i]) {
				t.Errorf("Index %d should be undefined", i)
			}
		}
		if !Defined(out[5]) {
			t.Error("Index 5 should be defined")
		}
	})

	t.Run("zero average loss yields 100", func(t *testing.T) {
		candles := candlesFromCloses(1, 2, 3, 4, 5, 6)
		out := RSI(candles, 5)
		if out[5] != 100 {
			t.Errorf("RSI of a pure uptrend = %v, want 100", out[5])
		}
	})

	t.Run("bounded in [0,100]", func(t *testing.T) {
		candles := candlesFromCloses(50, 47, 52, 49, 55, 51, 58, 54, 60, 53)
		out := RSI(candles, 4)
		for i, v := range out {
			if !Defined(v) {
				continue
			}
			if v < 0 || v > 100 {
				t.Errorf("RSI[%d] = %v out of [0,100]", i, v)
			}
		}
	})

	t.Run("pure downtrend near zero", func(t *testing.T) {
		candles := candlesFromCloses(10, 9, 8, 7, 6, 5)
		out := RSI(candles, 5)
		if out[5] != 0 {
			t.Errorf("RSI of a pure downtrend = %v, want 0", out[5])
		}
	})
}

func TestCrossover(t *testing.T) {
	nan := math.NaN()

	t.Run("detects upward cross", func(t *testing.T) {
		fast := []float64{nan, 1, 3}
		slow := []float64{nan, 2, 2}
		if !Crossover(fast, slow) {
			t.Error("Expected crossover")
		}
		if Crossunder(fast, slow) {
			t.Error("Crossunder must not fire with Crossover")
		}
	})

	t.Run("detects downward cross", func(t *testing.T) {
		fast := []float64{nan, 3, 1}
		slow := []float64{nan, 2, 2}
		if !Crossunder(fast, slow) {
			t.Error("Expected crossunder")
		}
		if Crossover(fast, slow) {
			t.Error("Crossover must not fire with Crossunder")
		}
	})

	t.Run("equal-then-above counts as cross", func(t *testing.T) {
		fast := []float64{2, 3}
		slow := []float64{2, 2}
		if !Crossover(fast, slow) {
			t.Error("Expected crossover from at-or-below")
		}
	})

	t.Run("fewer than two defined pairs", func(t *testing.T) {
		fast := []float64{nan, nan, 3}
		slow := []float64{nan, nan, 2}
		if Crossover(fast, slow) || Crossunder(fast, slow) {
			t.Error("Neither predicate may fire with a single defined pair")
		}
	})

	t.Run("mutually exclusive across a series", func(t *testing.T) {
		fast := []float64{1, 2, 3, 2, 1, 2, 3}
		slow := []float64{2, 2, 2, 2, 2, 2, 2}
		for i := 2; i <= len(fast); i++ {
			if Crossover(fast[:i], slow[:i]) && Crossunder(fast[:i], slow[:i]) {
				t.Errorf("Both predicates fired at prefix length %d", i)
			}
		}
	})
}

func TestEMACrossScenario_SingleCross(t *testing.T) {
	// Rising then flattening: exactly one EMA(2) over EMA(4) cross.
	closes := []float64{100, 100, 100, 100, 100, 110, 120, 130, 130, 130, 130, 130}
	candles := candlesFromCloses(closes...)

	crossSteps := 0
	for i := 2; i <= len(candles); i++ {
		window := candles[:i]
		if Crossover(EMA(window, 2), EMA(window, 4)) {
			crossSteps++
		}
	}

	if crossSteps != 1 {
		t.Errorf("Expected exactly one crossover step, got %d", crossSteps)
	}
}
