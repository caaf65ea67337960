package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
	"tradeflow/internal/guardrail"
)

const (
	binanceMaxRetries  = 10
	binanceBaseDelay   = 1 * time.Second
	binanceMaxDelay    = 60 * time.Second
	binanceReadTimeout = 60 * time.Second
	binanceDialTimeout = 10 * time.Second
)

// binanceStreamMessage is the combined-stream envelope.
type binanceStreamMessage struct {
	Stream string          `json:"stream"`
	Data   binanceKlineEvt `json:"data"`
}

type binanceKlineEvt struct {
	Type      string       `json:"e"`
	EventTime int64        `json:"E"` // ms
	Symbol    string       `json:"s"`
	Kline     binanceKline `json:"k"`
}

type binanceKline struct {
	OpenTime  int64  `json:"t"` // ms
	CloseTime int64  `json:"T"` // ms
	Symbol    string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	Closed    bool   `json:"x"`
}

// BinanceFeed consumes Binance kline websocket streams and emits closed
// candles only. Reconnects use exponential backoff and are reported to the
// guardrail along with per-message receive lag.
type BinanceFeed struct {
	baseURL   string
	symbols   []string
	timeframe domain.Timeframe
	guard     *guardrail.Engine

	out    chan domain.Candle
	conn   *websocket.Conn
	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBinanceFeed creates a kline feed for the given symbols and timeframe.
// baseURL is the combined-stream endpoint, e.g.
// "wss://stream.binance.com:9443/stream".
func NewBinanceFeed(baseURL string, symbols []string, timeframe domain.Timeframe, guard *guardrail.Engine) *BinanceFeed {
	return &BinanceFeed{
		baseURL:   baseURL,
		symbols:   symbols,
		timeframe: timeframe,
		guard:     guard,
		out:       make(chan domain.Candle, 256),
	}
}

// Start launches the connection loop. It returns immediately; candles arrive
// on Candles().
func (f *BinanceFeed) Start(ctx context.Context) error {
	if len(f.symbols) == 0 {
		return fmt.Errorf("binance feed: %w: no symbols configured", domain.ErrInvalidSymbol)
	}
	ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.connectionLoop(ctx)
	return nil
}

// Candles returns the output stream.
func (f *BinanceFeed) Candles() <-chan domain.Candle {
	return f.out
}

// Stop closes the connection and the output channel, then waits for the
// worker to exit.
func (f *BinanceFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.closeConnection()
	f.wg.Wait()
	close(f.out)
}

// connectionLoop dials, reads until failure, and redials with exponential
// backoff. Every redial after the first connect is a reconnect event for the
// guardrail.
func (f *BinanceFeed) connectionLoop(ctx context.Context) {
	defer f.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("binance feed panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	connectedOnce := false
	for {
		select {
		case <-ctx.Done():
			slog.Info("binance connection loop stopped")
			return
		default:
		}

		err := f.connect(ctx)
		if connectedOnce {
			f.guard.LogTransportEvent(guardrail.TransportWsReconnect, 0, err == nil)
		}
		if err != nil {
			slog.Warn("binance connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := calculateBackoff(retryCount)
			retryCount++
			if retryCount > binanceMaxRetries {
				slog.Error("binance max retries exceeded, resetting counter")
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		connectedOnce = true
		f.readLoop(ctx)
	}
}

// calculateBackoff returns the delay for the current retry attempt.
func calculateBackoff(retryCount int) time.Duration {
	delay := binanceBaseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > binanceMaxDelay {
		delay = binanceMaxDelay
	}
	return delay
}

func (f *BinanceFeed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: binanceDialTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return domain.NewNetworkError("dial", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	slog.Info("binance websocket connected",
		slog.Int("symbols", len(f.symbols)),
		slog.String("timeframe", string(f.timeframe)),
	)
	return nil
}

// streamURL builds the combined-stream URL, one kline stream per symbol.
func (f *BinanceFeed) streamURL() string {
	streams := make([]string, len(f.symbols))
	for i, s := range f.symbols {
		streams[i] = strings.ToLower(s) + "@kline_" + string(f.timeframe)
	}
	return f.baseURL + "?streams=" + strings.Join(streams, "/")
}

func (f *BinanceFeed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(binanceReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("binance websocket read error", slog.Any("error", err))
			}
			f.closeConnection()
			return
		}

		f.handleMessage(message)
	}
}

// handleMessage parses a kline event. Only closed klines become candles;
// in-progress updates still refresh the guardrail's feed liveness.
func (f *BinanceFeed) handleMessage(message []byte) {
	var msg binanceStreamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Debug("binance message parse error", slog.Any("error", err))
		return
	}
	if msg.Data.Type != "kline" {
		return
	}

	lagMs := float64(time.Now().UnixMilli() - msg.Data.EventTime)
	if lagMs < 0 {
		lagMs = 0
	}
	f.guard.LogTransportEvent(guardrail.TransportWsUpdate, lagMs, true)

	k := msg.Data.Kline
	if !k.Closed {
		return
	}

	candle, err := f.parseCandle(k)
	if err != nil {
		slog.Warn("binance kline parse error", slog.Any("error", err))
		return
	}

	select {
	case f.out <- candle:
	default:
		slog.Warn("binance candle channel full, dropping candle",
			slog.String("stream", candle.Stream()))
	}
}

func (f *BinanceFeed) parseCandle(k binanceKline) (domain.Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("open: %w", err)
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("high: %w", err)
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("low: %w", err)
	}
	closePx, err := decimal.NewFromString(k.Close)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("close: %w", err)
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("volume: %w", err)
	}

	return domain.Candle{
		Timestamp: time.UnixMilli(k.CloseTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    volume,
		Symbol:    k.Symbol,
		Timeframe: domain.Timeframe(k.Interval),
	}, nil
}

func (f *BinanceFeed) closeConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}
