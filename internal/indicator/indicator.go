// Package indicator provides pure indicator math over ordered candle
// sequences. Every series function returns a slice the same length as its
// input; indices for which not enough data exists yet are NaN.
package indicator

import (
	"math"

	"tradeflow/internal/domain"
)

// Defined reports whether a series value is usable.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

func closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}

func undefinedSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA computes the simple moving average of closes. The first period-1
// entries are NaN.
func SMA(candles []domain.Candle, period int) []float64 {
	if period < 1 {
		panic("indicator: SMA period must be at least 1")
	}
	out := undefinedSeries(len(candles))
	px := closes(candles)

	var sum float64
	for i, v := range px {
		sum += v
		if i >= period {
			sum -= px[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average of closes. The first defined
// value (index period-1) is seeded with the simple average of the first
// period closes; subsequent values apply the recurrence with multiplier
// 2/(period+1).
func EMA(candles []domain.Candle, period int) []float64 {
	if period < 1 {
		panic("indicator: EMA period must be at least 1")
	}
	out := undefinedSeries(len(candles))
	px := closes(candles)
	if len(px) < period {
		return out
	}

	var seed float64
	for i := 0; i < period; i++ {
		seed += px[i]
	}
	seed /= float64(period)
	out[period-1] = seed

	k := 2 / float64(period+1)
	prev := seed
	for i := period; i < len(px); i++ {
		prev = px[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// RSI computes the relative strength index over the trailing period using
// simple means of gains and losses. Indices below period are NaN. A zero
// average loss yields RSI 100 (all-gain regime).
func RSI(candles []domain.Candle, period int) []float64 {
	if period < 1 {
		panic("indicator: RSI period must be at least 1")
	}
	out := undefinedSeries(len(candles))
	px := closes(candles)

	for i := period; i < len(px); i++ {
		var gains, losses float64
		for j := i - period + 1; j <= i; j++ {
			d := px[j] - px[j-1]
			if d > 0 {
				gains += d
			} else {
				losses -= d
			}
		}
		avgLoss := losses / float64(period)
		if avgLoss == 0 {
			out[i] = 100
			continue
		}
		rs := (gains / float64(period)) / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// Crossover reports whether fast moved from at-or-below slow to above it
// between the last two points where both series are defined. It returns
// false when fewer than two such pairs exist.
func Crossover(fast, slow []float64) bool {
	prev, curr, ok := lastTwoDefined(fast, slow)
	if !ok {
		return false
	}
	return fast[prev] <= slow[prev] && fast[curr] > slow[curr]
}

// Crossunder is the mirror of Crossover.
func Crossunder(fast, slow []float64) bool {
	prev, curr, ok := lastTwoDefined(fast, slow)
	if !ok {
		return false
	}
	return fast[prev] >= slow[prev] && fast[curr] < slow[curr]
}

// lastTwoDefined finds the last two indices at which both series hold
// defined values.
func lastTwoDefined(fast, slow []float64) (prev, curr int, ok bool) {
	n := len(fast)
	if len(slow) < n {
		n = len(slow)
	}

	curr = -1
	for i := n - 1; i >= 0; i-- {
		if !Defined(fast[i]) || !Defined(slow[i]) {
			continue
		}
		if curr == -1 {
			curr = i
			continue
		}
		return i, curr, true
	}
	return 0, 0, false
}
