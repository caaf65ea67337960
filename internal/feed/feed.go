// Package feed produces candle streams for the scheduler. The live feed is a
// websocket worker; the replay feed serves a recorded file for deterministic
// runs.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"tradeflow/internal/domain"
)

// Feed is a candle source. Candles arrive in non-decreasing timestamp order
// per stream; the channel is closed when the source is exhausted or stopped.
type Feed interface {
	Start(ctx context.Context) error
	Candles() <-chan domain.Candle
	Stop()
}

// ReplayFeed serves a fixed candle slice in order. It is the deterministic
// source used by backtests and tests.
type ReplayFeed struct {
	candles []domain.Candle
	out     chan domain.Candle
	cancel  context.CancelFunc
}

// NewReplayFeed creates a replay feed over the given candles.
func NewReplayFeed(candles []domain.Candle) *ReplayFeed {
	return &ReplayFeed{
		candles: candles,
		out:     make(chan domain.Candle, 64),
	}
}

// LoadReplayFile reads a JSON-lines candle file, one candle object per line.
// Blank lines are skipped.
func LoadReplayFile(path string) ([]domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	var out []domain.Candle
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var c domain.Candle
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("replay file line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay file: %w", err)
	}
	return out, nil
}

// Start streams the recorded candles and closes the channel when done.
func (f *ReplayFeed) Start(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)
	go func() {
		defer close(f.out)
		for _, c := range f.candles {
			select {
			case <-ctx.Done():
				return
			case f.out <- c:
			}
		}
	}()
	return nil
}

// Candles returns the output stream.
func (f *ReplayFeed) Candles() <-chan domain.Candle {
	return f.out
}

// Stop ends the replay early.
func (f *ReplayFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}
