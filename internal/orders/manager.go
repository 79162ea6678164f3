// Package orders submits the scheduled unit market orders for held contracts.
package orders

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/davzucky/chainuniverse/internal/broker"
	"github.com/davzucky/chainuniverse/internal/storage"
	"github.com/davzucky/chainuniverse/internal/universe"
)

// Config contains configuration for the order manager.
type Config struct {
	// OrderTime is the time of day ("15:04" format) at or after which the
	// daily orders are submitted.
	OrderTime string
	// Location interprets OrderTime. Defaults to UTC.
	Location *time.Location
	// Quantity is the signed order size per contract. Defaults to 1.
	Quantity int
}

// Manager places one market order per tradable underlying per session, for the
// top-ranked held contract, at the configured time of day. An underlying is
// ordered at most once per session regardless of how many data events arrive
// after the order time.
type Manager struct {
	broker    broker.Broker
	store     storage.Interface
	tracker   *universe.Tracker
	logger    *log.Logger
	loc       *time.Location
	tradable  map[string]bool
	placed    map[string]string // underlying -> session date already ordered
	orderMins int
	quantity  int
}

// NewManager creates a new order manager instance.
func NewManager(
	b broker.Broker,
	store storage.Interface,
	tracker *universe.Tracker,
	logger *log.Logger,
	cfg Config,
) (*Manager, error) {
	if b == nil {
		panic("orders.NewManager: broker must not be nil")
	}
	if store == nil {
		panic("orders.NewManager: storage must not be nil")
	}
	if tracker == nil {
		panic("orders.NewManager: tracker must not be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "orders: ", log.LstdFlags)
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	clock, err := time.Parse("15:04", cfg.OrderTime)
	if err != nil {
		return nil, fmt.Errorf("invalid order time %q: %w", cfg.OrderTime, err)
	}

	qty := cfg.Quantity
	if qty == 0 {
		qty = 1
	}

	return &Manager{
		broker:    b,
		store:     store,
		tracker:   tracker,
		logger:    logger,
		loc:       loc,
		tradable:  make(map[string]bool),
		placed:    make(map[string]string),
		orderMins: clock.Hour()*60 + clock.Minute(),
		quantity:  qty,
	}, nil
}

// SetTradable marks whether an underlying participates in order submission.
// Untracked or non-tradable underlyings are skipped silently.
func (m *Manager) SetTradable(underlying string, ok bool) {
	m.tradable[underlying] = ok
}

// OnData is invoked by the engine for every data event. It submits the daily
// orders once the order time has been reached.
func (m *Manager) OnData(now time.Time) error {
	local := now.In(m.loc)
	if local.Hour()*60+local.Minute() < m.orderMins {
		return nil
	}
	session := local.Format("2006-01-02")

	for _, u := range m.tracker.Underlyings() {
		if !m.tradable[u] {
			continue
		}
		if m.placed[u] == session {
			continue
		}
		holdings := m.tracker.Holdings(u)
		if len(holdings) == 0 {
			continue
		}

		contract := holdings[0]
		order, err := m.broker.MarketOrder(contract.Symbol, m.quantity, now)
		if err != nil {
			return fmt.Errorf("market order for %s failed: %w", contract.Symbol, err)
		}
		m.placed[u] = session

		m.logger.Printf("Placed market order %s: %s x%d (session %s)",
			order.ID, order.Symbol, order.Quantity, session)

		if err := m.store.RecordOrder(storage.OrderRecord{
			Session:    session,
			Underlying: u,
			Symbol:     order.Symbol,
			OrderID:    order.ID,
			Quantity:   order.Quantity,
			PlacedAt:   now,
		}); err != nil {
			return fmt.Errorf("recording order %s: %w", order.ID, err)
		}
	}
	return nil
}
