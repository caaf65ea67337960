package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeflow/internal/domain"
)

var (
	// ErrInsufficientCash is returned when a buy exceeds available cash.
	ErrInsufficientCash = errors.New("insufficient cash")

	// ErrNoMarkPrice is returned when a market order arrives before any
	// price was seen for the symbol.
	ErrNoMarkPrice = errors.New("no mark price for symbol")
)

// Paper is a synchronous fill simulator: every submitted order fills
// immediately at the current mark price adjusted by slippage, minus
// commission. It tracks cash double-entry (buys debit, sells credit).
type Paper struct {
	mu            sync.Mutex
	startingCash  decimal.Decimal
	cash          decimal.Decimal
	slippageBps   decimal.Decimal
	commissionBps decimal.Decimal
	marks         map[string]decimal.Decimal
	fills         []Fill
	commissions   decimal.Decimal

	// OnTransport, when set, receives the simulated venue round-trip for
	// each submit. The app wires it into the guardrail transport log.
	OnTransport func(latencyMs float64, success bool)

	now func() time.Time
}

// NewPaper creates a paper executor with the given starting cash and
// slippage/commission in basis points.
func NewPaper(startingCash decimal.Decimal, slippageBps, commissionBps float64) *Paper {
	return &Paper{
		startingCash:  startingCash,
		cash:          startingCash,
		slippageBps:   decimal.NewFromFloat(slippageBps),
		commissionBps: decimal.NewFromFloat(commissionBps),
		marks:         make(map[string]decimal.Decimal),
		now:           time.Now,
	}
}

// UpdatePrice records the latest mark price for a symbol.
func (p *Paper) UpdatePrice(symbol string, px decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[symbol] = px
}

// Submit fills the order at the marked price with slippage against the
// taker, charges commission, and settles cash.
func (p *Paper) Submit(ctx context.Context, order domain.Order) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if order.Qty.Sign() <= 0 {
		return nil, errors.New("order qty must be positive")
	}

	start := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()

	px := order.Price
	if order.Type == domain.OrderTypeMarket || px.IsZero() {
		mark, ok := p.marks[order.Symbol]
		if !ok {
			p.reportTransport(start, false)
			return nil, ErrNoMarkPrice
		}
		px = p.slip(mark, order.Side)
	}

	notional := px.Mul(order.Qty)
	commission := notional.Mul(p.commissionBps).Div(decimal.NewFromInt(10000))

	if order.Side == domain.SideBuy {
		if notional.Add(commission).GreaterThan(p.cash) {
			p.reportTransport(start, false)
			return nil, ErrInsufficientCash
		}
		p.cash = p.cash.Sub(notional)
	} else {
		p.cash = p.cash.Add(notional)
	}
	p.cash = p.cash.Sub(commission)
	p.commissions = p.commissions.Add(commission)

	fill := Fill{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		RouteID:    order.RouteID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Qty:        order.Qty,
		Price:      px,
		Commission: commission,
		Ts:         p.now(),
	}
	p.fills = append(p.fills, fill)

	order.Status = domain.OrderStatusFilled
	p.reportTransport(start, true)
	return &Report{Order: order, Fill: &fill}, nil
}

// Cancel is a no-op for the synchronous simulator: nothing ever rests.
func (p *Paper) Cancel(ctx context.Context, orderID string) error {
	return nil
}

// slip moves the price against the taker by the configured slippage.
func (p *Paper) slip(mark decimal.Decimal, side string) decimal.Decimal {
	adj := mark.Mul(p.slippageBps).Div(decimal.NewFromInt(10000))
	if side == domain.SideBuy {
		return mark.Add(adj)
	}
	return mark.Sub(adj)
}

func (p *Paper) reportTransport(start time.Time, success bool) {
	if p.OnTransport == nil {
		return
	}
	p.OnTransport(float64(p.now().Sub(start).Microseconds())/1000.0, success)
}

// Cash returns the current settled cash balance.
func (p *Paper) Cash() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// StartingCash returns the initial bankroll, used for drawdown baselines.
func (p *Paper) StartingCash() decimal.Decimal {
	return p.startingCash
}

// Commissions returns the cumulative commission charged.
func (p *Paper) Commissions() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commissions
}

// Fills returns a copy of the fill history.
func (p *Paper) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fill, len(p.fills))
	copy(out, p.fills)
	return out
}
