package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PriceFunc resolves a fill price for a contract symbol at a simulation time.
type PriceFunc func(symbol string, now time.Time) (float64, error)

// PaperBroker fills market orders immediately against a price function. When
// no price function is configured, fills record a zero price; the regression
// harness only asserts on order placement, not P&L.
type PaperBroker struct {
	mu      sync.Mutex
	priceFn PriceFunc
	orders  []Order
}

// Ensure PaperBroker implements Broker at compile time.
var _ Broker = (*PaperBroker)(nil)

// NewPaperBroker creates a paper broker. priceFn may be nil.
func NewPaperBroker(priceFn PriceFunc) *PaperBroker {
	return &PaperBroker{priceFn: priceFn}
}

// MarketOrder fills a market order immediately.
func (p *PaperBroker) MarketOrder(symbol string, quantity int, now time.Time) (*Order, error) {
	if symbol == "" {
		return nil, fmt.Errorf("order symbol is required")
	}
	if quantity == 0 {
		return nil, fmt.Errorf("order quantity must be non-zero")
	}

	fillPrice := 0.0
	if p.priceFn != nil {
		price, err := p.priceFn(symbol, now)
		if err != nil {
			return nil, fmt.Errorf("resolving fill price for %s: %w", symbol, err)
		}
		fillPrice = price
	}

	order := Order{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Quantity:  quantity,
		FillPrice: fillPrice,
		Status:    OrderStatusFilled,
		PlacedAt:  now,
	}

	p.mu.Lock()
	p.orders = append(p.orders, order)
	p.mu.Unlock()

	return &order, nil
}

// Orders returns a copy of every order placed so far.
func (p *PaperBroker) Orders() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, len(p.orders))
	copy(out, p.orders)
	return out
}
