package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"

	"github.com/davzucky/chainuniverse/internal/feed"
	"github.com/davzucky/chainuniverse/internal/models"
	"github.com/davzucky/chainuniverse/internal/storage"
	"github.com/davzucky/chainuniverse/internal/universe"
)

// Event bus topics. Handlers are subscribed synchronously, so publish order is
// delivery order and the single event loop stays the only mutator.
const (
	TopicSecuritiesChanged = "universe:securities_changed"
	TopicData              = "engine:data"
)

// Config contains engine setup.
type Config struct {
	Start    time.Time
	End      time.Time
	Step     time.Duration
	Calendar SessionCalendar
	// Expected maps underlying -> contract symbol the run must end up
	// selecting. A mismatch aborts the run.
	Expected map[string]string
}

// Engine advances the simulated clock and, in order per tick: fires due
// scheduled mutations, runs the session-open evaluation when a new session
// begins, then dispatches the data event. The per-session selection is frozen
// until the next session open regardless of intraday price drift.
type Engine struct {
	clock     *Clock
	cal       SessionCalendar
	step      time.Duration
	tracker   *universe.Tracker
	scheduler *universe.Scheduler
	provider  feed.Provider
	store     storage.Interface
	bus       EventBus.Bus
	logger    *log.Logger
	expected  map[string]string

	lastSession string
	handlerErr  error
}

// New creates an engine wired to the given collaborators.
func New(
	cfg Config,
	tracker *universe.Tracker,
	scheduler *universe.Scheduler,
	provider feed.Provider,
	store storage.Interface,
	logger *log.Logger,
) (*Engine, error) {
	if tracker == nil {
		panic("engine.New: tracker must not be nil")
	}
	if scheduler == nil {
		panic("engine.New: scheduler must not be nil")
	}
	if provider == nil {
		panic("engine.New: provider must not be nil")
	}
	if store == nil {
		panic("engine.New: storage must not be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "engine: ", log.LstdFlags)
	}
	if !cfg.Start.Before(cfg.End) {
		return nil, fmt.Errorf("engine start %s must be before end %s", cfg.Start, cfg.End)
	}
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("engine step must be > 0 (current: %s)", cfg.Step)
	}

	e := &Engine{
		clock:     NewClock(cfg.Start, cfg.End),
		cal:       cfg.Calendar,
		step:      cfg.Step,
		tracker:   tracker,
		scheduler: scheduler,
		provider:  provider,
		store:     store,
		bus:       EventBus.New(),
		logger:    logger,
		expected:  cfg.Expected,
	}

	if err := e.bus.Subscribe(TopicSecuritiesChanged, tracker.OnSecuritiesChanged); err != nil {
		return nil, fmt.Errorf("subscribing tracker: %w", err)
	}

	return e, nil
}

// RegisterDataHandler subscribes a handler to the per-tick data event. A
// handler error aborts the run at the end of the current tick.
func (e *Engine) RegisterDataHandler(fn func(now time.Time) error) error {
	return e.bus.Subscribe(TopicData, func(now time.Time) {
		if err := fn(now); err != nil && e.handlerErr == nil {
			e.handlerErr = err
		}
	})
}

// Run executes the backtest until the clock expires, then verifies the
// expected selections. Any handler or evaluation error aborts immediately.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Printf("Backtest starting: %s -> %s, step %s",
		e.clock.CurrentTime.Format(time.RFC3339), e.clock.EndTime.Format(time.RFC3339), e.step)

	for !e.clock.IsExpired() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		now := e.clock.CurrentTime

		// Mutations landing exactly on a session boundary must apply
		// before that session's evaluation.
		e.scheduler.Fire(now)

		if date, open := e.cal.SessionDate(now); open {
			if date != e.lastSession {
				if err := e.evaluateSession(date, now); err != nil {
					return err
				}
				e.lastSession = date
			}
			e.bus.Publish(TopicData, now)
			if e.handlerErr != nil {
				return e.handlerErr
			}
		}

		e.clock.Add(e.step)
	}

	if err := e.verifyExpectations(); err != nil {
		return err
	}

	e.logger.Printf("Backtest complete: %d sessions evaluated, %d orders placed",
		e.store.GetStatistics().SessionsEvaluated, e.store.GetStatistics().OrdersPlaced)
	return nil
}

// evaluateSession runs the chain filter for every tracked underlying and
// applies the resulting universe changes.
func (e *Engine) evaluateSession(date string, now time.Time) error {
	e.store.BumpSessionsEvaluated()

	for _, u := range e.tracker.Underlyings() {
		cfg, ok := e.tracker.Config(u)
		if !ok {
			continue
		}

		candidates, err := e.provider.Chain(u, now)
		if err != nil {
			return fmt.Errorf("session %s: chain for %s: %w", date, u, err)
		}
		ref, err := e.provider.ReferencePrice(u, now)
		if err != nil {
			return fmt.Errorf("session %s: reference price for %s: %w", date, u, err)
		}

		selected := universe.Select(candidates, ref, now, cfg)
		added, removed := diffContracts(e.tracker.Holdings(u), selected)

		if len(added) > 0 || len(removed) > 0 {
			e.bus.Publish(TopicSecuritiesChanged, added, removed)
		}

		symbols := make([]string, 0, len(selected))
		for _, c := range selected {
			symbols = append(symbols, c.Symbol)
		}
		e.logger.Printf("Session %s: %s ref %.2f selected [%s]", date, u, ref, strings.Join(symbols, " "))

		if err := e.store.RecordSelection(storage.SelectionRecord{
			Session:    date,
			Underlying: u,
			Reference:  ref,
			Selected:   symbols,
			Timestamp:  now,
		}); err != nil {
			return fmt.Errorf("session %s: recording selection for %s: %w", date, u, err)
		}
	}
	return nil
}

// verifyExpectations checks the final selection per underlying against the
// configured expectations. A mismatch is a correctness regression, not a
// recoverable condition.
func (e *Engine) verifyExpectations() error {
	for u, want := range e.expected {
		rec, ok := e.store.LatestSelection(u)
		if !ok || len(rec.Selected) == 0 {
			return fmt.Errorf("selection mismatch for %s: nothing selected, want %s", u, want)
		}
		if rec.Selected[0] != want {
			return fmt.Errorf("selection mismatch for %s: got %s, want %s", u, rec.Selected[0], want)
		}
	}
	return nil
}

// diffContracts splits the new selection into contracts to add and contracts
// to drop relative to the currently held list. Comparison is by symbol.
func diffContracts(held, selected []models.OptionContract) (added, removed []models.OptionContract) {
	heldSet := make(map[string]struct{}, len(held))
	for _, c := range held {
		heldSet[c.Symbol] = struct{}{}
	}
	selectedSet := make(map[string]struct{}, len(selected))
	for _, c := range selected {
		selectedSet[c.Symbol] = struct{}{}
	}

	for _, c := range selected {
		if _, ok := heldSet[c.Symbol]; !ok {
			added = append(added, c)
		}
	}
	for _, c := range held {
		if _, ok := selectedSet[c.Symbol]; !ok {
			removed = append(removed, c)
		}
	}
	return added, removed
}
