package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
)

func TestPaper_Buy(t *testing.T) {
	paper := NewPaper(decimal.NewFromInt(10000), 0, 0)
	paper.UpdatePrice("BTCUSDT", decimal.NewFromInt(50000))

	order := domain.Order{
		ID:     "order-1",
		Symbol: "BTCUSDT",
		Side:   domain.SideBuy,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromFloat(0.1),
	}

	rep, err := paper.Submit(context.Background(), order)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if rep.Fill == nil {
		t.Fatal("Expected synchronous fill")
	}
	if !rep.Fill.Price.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Fill price = %s, want 50000", rep.Fill.Price)
	}
	if rep.Order.Status != domain.OrderStatusFilled {
		t.Errorf("Order status = %s, want FILLED", rep.Order.Status)
	}

	// Cash: 10000 - 0.1*50000 = 5000
	if !paper.Cash().Equal(decimal.NewFromInt(5000)) {
		t.Errorf("Cash = %s, want 5000", paper.Cash())
	}

	fills := paper.Fills()
	if len(fills) != 1 || fills[0].Side != domain.SideBuy {
		t.Fatalf("Expected 1 BUY fill, got %+v", fills)
	}
}

func TestPaper_SellCreditsCash(t *testing.T) {
	paper := NewPaper(decimal.NewFromInt(1000), 0, 0)
	paper.UpdatePrice("BTCUSDT", decimal.NewFromInt(50000))

	order := domain.Order{
		ID:     "order-2",
		Symbol: "BTCUSDT",
		Side:   domain.SideSell,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromFloat(0.5),
	}

	if _, err := paper.Submit(context.Background(), order); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Cash: 1000 + 0.5*50000 = 26000
	if !paper.Cash().Equal(decimal.NewFromInt(26000)) {
		t.Errorf("Cash = %s, want 26000", paper.Cash())
	}
}

func TestPaper_SlippageAndCommission(t *testing.T) {
	// 10 bps slippage, 20 bps commission
	paper := NewPaper(decimal.NewFromInt(100000), 10, 20)
	paper.UpdatePrice("ETHUSDT", decimal.NewFromInt(2000))

	order := domain.Order{
		ID:     "order-3",
		Symbol: "ETHUSDT",
		Side:   domain.SideBuy,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromInt(1),
	}

	rep, err := paper.Submit(context.Background(), order)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Buy slips upward: 2000 * (1 + 10/10000) = 2002
	if !rep.Fill.Price.Equal(decimal.NewFromInt(2002)) {
		t.Errorf("Fill price = %s, want 2002", rep.Fill.Price)
	}

	// Commission: 2002 * 20/10000 = 4.004
	if !rep.Fill.Commission.Equal(decimal.NewFromFloat(4.004)) {
		t.Errorf("Commission = %s, want 4.004", rep.Fill.Commission)
	}
	if !paper.Commissions().Equal(rep.Fill.Commission) {
		t.Errorf("Cumulative commissions = %s, want %s", paper.Commissions(), rep.Fill.Commission)
	}
}

func TestPaper_InsufficientCash(t *testing.T) {
	paper := NewPaper(decimal.NewFromInt(100), 0, 0)
	paper.UpdatePrice("BTCUSDT", decimal.NewFromInt(50000))

	order := domain.Order{
		ID:     "order-4",
		Symbol: "BTCUSDT",
		Side:   domain.SideBuy,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromInt(1),
	}

	_, err := paper.Submit(context.Background(), order)
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("Expected ErrInsufficientCash, got %v", err)
	}
	if !paper.Cash().Equal(decimal.NewFromInt(100)) {
		t.Error("Cash must be unchanged after a rejected order")
	}
}

func TestPaper_NoMarkPrice(t *testing.T) {
	paper := NewPaper(decimal.NewFromInt(1000), 0, 0)

	order := domain.Order{
		ID:     "order-5",
		Symbol: "SOLUSDT",
		Side:   domain.SideBuy,
		Type:   domain.OrderTypeMarket,
		Qty:    decimal.NewFromInt(1),
	}

	if _, err := paper.Submit(context.Background(), order); !errors.Is(err, ErrNoMarkPrice) {
		t.Fatalf("Expected ErrNoMarkPrice, got %v", err)
	}
}

func TestPaper_TransportCallback(t *testing.T) {
	paper := NewPaper(decimal.NewFromInt(1000), 0, 0)
	paper.UpdatePrice("BTCUSDT", decimal.NewFromInt(100))

	var calls int
	var lastOK bool
	paper.OnTransport = func(latencyMs float64, success bool) {
		calls++
		lastOK = success
	}

	order := domain.Order{ID: "o", Symbol: "BTCUSDT", Side: domain.SideBuy, Type: domain.OrderTypeMarket, Qty: decimal.NewFromInt(1)}
	if _, err := paper.Submit(context.Background(), order); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if calls != 1 || !lastOK {
		t.Errorf("Expected one successful transport report, got calls=%d ok=%v", calls, lastOK)
	}
}

func TestPaper_ImplementsExecutor(t *testing.T) {
	var _ Executor = (*Paper)(nil)
}
