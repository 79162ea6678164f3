// Package broker provides order submission for the backtest harness.
package broker

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// OrderStatus represents the lifecycle status of a submitted order.
type OrderStatus string

const (
	// OrderStatusFilled means the order executed completely
	OrderStatusFilled OrderStatus = "filled"
	// OrderStatusRejected means the order was refused before execution
	OrderStatusRejected OrderStatus = "rejected"
)

// Order is the result of a submission. Quantity is signed: positive buys,
// negative sells.
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Quantity  int         `json:"quantity"`
	FillPrice float64     `json:"fill_price"`
	Status    OrderStatus `json:"status"`
	PlacedAt  time.Time   `json:"placed_at"`
}

// Broker defines the interface for submitting orders.
type Broker interface {
	// MarketOrder submits a market order for a contract symbol at the given
	// simulation time and returns the resulting order record.
	MarketOrder(symbol string, quantity int, now time.Time) (*Order, error)

	// Orders returns every order placed so far, in submission order.
	Orders() []Order
}

// CircuitBreakerBroker wraps a Broker with circuit breaker functionality
type CircuitBreakerBroker struct {
	broker  Broker
	breaker *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerBroker implements Broker at compile time.
var _ Broker = (*CircuitBreakerBroker)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	broker Broker,
	fn func(Broker) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(broker) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerBroker creates a new CircuitBreakerBroker with sensible defaults
func NewCircuitBreakerBroker(broker Broker) *CircuitBreakerBroker {
	return NewCircuitBreakerBrokerWithSettings(broker, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerBrokerWithSettings creates a CircuitBreakerBroker with custom settings
func NewCircuitBreakerBrokerWithSettings(broker Broker, settings CircuitBreakerSettings) *CircuitBreakerBroker {
	gbSettings := gobreaker.Settings{
		Name:        "BrokerCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerBroker{
		broker:  broker,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// MarketOrder wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) MarketOrder(symbol string, quantity int, now time.Time) (*Order, error) {
	return execCircuitBreaker(c.breaker, c.broker, func(b Broker) (*Order, error) {
		return b.MarketOrder(symbol, quantity, now)
	})
}

// Orders wraps the underlying broker call with circuit breaker
func (c *CircuitBreakerBroker) Orders() []Order {
	orders, err := execCircuitBreaker(c.breaker, c.broker, func(b Broker) ([]Order, error) {
		return b.Orders(), nil
	})
	if err != nil {
		return nil
	}
	return orders
}
