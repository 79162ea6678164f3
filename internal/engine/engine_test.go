package engine

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davzucky/chainuniverse/internal/feed"
	"github.com/davzucky/chainuniverse/internal/models"
	"github.com/davzucky/chainuniverse/internal/storage"
	"github.com/davzucky/chainuniverse/internal/universe"
)

// twoSessionConfig spans Thursday 2014-06-05 and Friday 2014-06-06.
func twoSessionConfig(t *testing.T, expected map[string]string) Config {
	t.Helper()
	cal, err := NewSessionCalendar("09:30", "16:00", time.UTC)
	require.NoError(t, err)
	return Config{
		Start:    time.Date(2014, 6, 5, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2014, 6, 7, 0, 0, 0, 0, time.UTC),
		Step:     30 * time.Minute,
		Calendar: cal,
		Expected: expected,
	}
}

func putContract(underlying string, strike float64, y, m, d int) models.OptionContract {
	return models.NewOptionContract(underlying,
		time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), models.RightPut, strike)
}

func callContract(underlying string, strike float64, y, m, d int) models.OptionContract {
	return models.NewOptionContract(underlying,
		time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC), models.RightCall, strike)
}

func putFilter() universe.FilterConfig {
	return universe.FilterConfig{
		MaxWindow: 180 * 24 * time.Hour,
		Right:     models.RightPut,
		Count:     1,
	}
}

type harness struct {
	tracker   *universe.Tracker
	scheduler *universe.Scheduler
	provider  *feed.StaticProvider
	store     *storage.MockStorage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tracker := universe.NewTracker()
	return &harness{
		tracker:   tracker,
		scheduler: universe.NewScheduler(tracker, log.New(os.Stderr, "test: ", 0)),
		provider:  feed.NewStaticProvider(),
		store:     storage.NewMockStorage(),
	}
}

func (h *harness) engine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	eng, err := New(cfg, h.tracker, h.scheduler, h.provider, h.store,
		log.New(os.Stderr, "test: ", 0))
	require.NoError(t, err)
	return eng
}

func TestEngine_SelectsExpectedContract(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("TWX", putFilter()))
	h.provider.SetChain("TWX",
		putContract("TWX", 70, 2014, 10, 8),
		putContract("TWX", 75, 2014, 9, 10),
		callContract("TWX", 70, 2014, 10, 8),
	)
	h.provider.SetPrice("TWX", 71)

	eng := h.engine(t, twoSessionConfig(t, map[string]string{
		"TWX": "TWX141008P00070000",
	}))

	require.NoError(t, eng.Run(context.Background()))

	holdings := h.tracker.Holdings("TWX")
	require.Len(t, holdings, 1)
	assert.Equal(t, "TWX141008P00070000", holdings[0].Symbol)

	// One evaluation per session, frozen intraday.
	assert.Equal(t, 2, h.store.GetStatistics().SessionsEvaluated)
	assert.Equal(t, 2, h.store.GetStatistics().SelectionsStored)
}

func TestEngine_SelectionMismatchAbortsRun(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("TWX", putFilter()))
	h.provider.SetChain("TWX", putContract("TWX", 70, 2014, 10, 8))
	h.provider.SetPrice("TWX", 71)

	eng := h.engine(t, twoSessionConfig(t, map[string]string{
		"TWX": "TWX140910P00075000",
	}))

	err := eng.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selection mismatch")
}

func TestEngine_EmptySelectionIsNotAnError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("TWX", putFilter()))
	// Calls only: nothing passes the put filter.
	h.provider.SetChain("TWX", callContract("TWX", 70, 2014, 10, 8))
	h.provider.SetPrice("TWX", 71)

	eng := h.engine(t, twoSessionConfig(t, nil))

	require.NoError(t, eng.Run(context.Background()))
	assert.Empty(t, h.tracker.Holdings("TWX"))
	assert.Equal(t, 2, h.store.GetStatistics().EmptySelections)
}

func TestEngine_ScheduledAddTakesEffectAtSessionOpen(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("TWX", putFilter()))
	h.provider.SetChain("TWX", putContract("TWX", 70, 2014, 10, 8))
	h.provider.SetPrice("TWX", 71)
	h.provider.SetChain("AAPL", putContract("AAPL", 92.5, 2014, 10, 8))
	h.provider.SetPrice("AAPL", 93)

	// Lands exactly on Friday's session open: must apply before that
	// session's evaluation.
	require.NoError(t, h.scheduler.Register(universe.ScheduledMutation{
		At:         time.Date(2014, 6, 6, 9, 30, 0, 0, time.UTC),
		Kind:       universe.MutationAddChain,
		Underlying: "AAPL",
		Config:     putFilter(),
	}))

	eng := h.engine(t, twoSessionConfig(t, nil))
	require.NoError(t, eng.Run(context.Background()))

	require.Len(t, h.tracker.Holdings("AAPL"), 1)

	// Thursday: TWX only. Friday: both.
	var aaplSessions []string
	for _, rec := range h.store.Selections() {
		if rec.Underlying == "AAPL" {
			aaplSessions = append(aaplSessions, rec.Session)
		}
	}
	assert.Equal(t, []string{"2014-06-06"}, aaplSessions)
}

func TestEngine_ScheduledRemoveStopsEvaluation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("AAPL", putFilter()))
	h.provider.SetChain("AAPL", putContract("AAPL", 92.5, 2014, 10, 8))
	h.provider.SetPrice("AAPL", 93)

	require.NoError(t, h.scheduler.Register(universe.ScheduledMutation{
		At:         time.Date(2014, 6, 6, 0, 0, 0, 0, time.UTC),
		Kind:       universe.MutationRemoveChain,
		Underlying: "AAPL",
	}))

	eng := h.engine(t, twoSessionConfig(t, nil))
	require.NoError(t, eng.Run(context.Background()))

	assert.False(t, h.tracker.IsTracked("AAPL"))
	assert.Empty(t, h.tracker.Holdings("AAPL"))

	var sessions []string
	for _, rec := range h.store.Selections() {
		sessions = append(sessions, rec.Session)
	}
	assert.Equal(t, []string{"2014-06-05"}, sessions, "no evaluation after the chain is removed")
}

func TestEngine_SelectionFrozenIntraday(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("TWX", putFilter()))
	h.provider.SetChain("TWX",
		putContract("TWX", 70, 2014, 10, 8),
		putContract("TWX", 75, 2014, 10, 8),
	)
	h.provider.SetPrice("TWX", 71)

	eng := h.engine(t, twoSessionConfig(t, nil))

	// Shift the reference price towards the 75 strike mid-session on
	// Thursday. The held contract must not change until Friday's open.
	moved := false
	require.NoError(t, eng.RegisterDataHandler(func(now time.Time) error {
		if !moved && now.Hour() >= 12 {
			h.provider.SetPrice("TWX", 76)
			moved = true
		}
		if now.Day() == 5 {
			holdings := h.tracker.Holdings("TWX")
			if len(holdings) != 1 || holdings[0].Strike != 70 {
				return errors.New("intraday selection drifted")
			}
		}
		return nil
	}))

	require.NoError(t, eng.Run(context.Background()))

	// Friday's open re-evaluates with the new price and swaps the holding.
	holdings := h.tracker.Holdings("TWX")
	require.Len(t, holdings, 1)
	assert.Equal(t, 75.0, holdings[0].Strike)

	recs := h.store.Selections()
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"TWX141008P00070000"}, recs[0].Selected)
	assert.Equal(t, []string{"TWX141008P00075000"}, recs[1].Selected)
}

func TestEngine_DataHandlerSeesEvaluatedUniverse(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("TWX", putFilter()))
	h.provider.SetChain("TWX", putContract("TWX", 70, 2014, 10, 8))
	h.provider.SetPrice("TWX", 71)

	eng := h.engine(t, twoSessionConfig(t, nil))

	// The session-open evaluation must complete before any data event of
	// that session, including the open tick itself.
	require.NoError(t, eng.RegisterDataHandler(func(now time.Time) error {
		if len(h.tracker.Holdings("TWX")) != 1 {
			return errors.New("data event delivered before session evaluation")
		}
		return nil
	}))

	require.NoError(t, eng.Run(context.Background()))
}

func TestEngine_DataHandlerErrorAborts(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("TWX", putFilter()))
	h.provider.SetChain("TWX", putContract("TWX", 70, 2014, 10, 8))
	h.provider.SetPrice("TWX", 71)

	eng := h.engine(t, twoSessionConfig(t, nil))

	boom := errors.New("boom")
	require.NoError(t, eng.RegisterDataHandler(func(time.Time) error { return boom }))

	err := eng.Run(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestEngine_MissingPriceAborts(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("TWX", putFilter()))
	h.provider.SetChain("TWX", putContract("TWX", 70, 2014, 10, 8))
	// No price configured.

	eng := h.engine(t, twoSessionConfig(t, nil))

	err := eng.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reference price")
}

func TestEngine_ContextCancellation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tracker.AddChain("TWX", putFilter()))
	h.provider.SetChain("TWX", putContract("TWX", 70, 2014, 10, 8))
	h.provider.SetPrice("TWX", 71)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := h.engine(t, twoSessionConfig(t, nil))
	err := eng.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ConfigValidation(t *testing.T) {
	h := newHarness(t)
	cal, err := NewSessionCalendar("09:30", "16:00", time.UTC)
	require.NoError(t, err)

	_, err = New(Config{
		Start:    time.Date(2014, 6, 7, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2014, 6, 5, 0, 0, 0, 0, time.UTC),
		Step:     time.Minute,
		Calendar: cal,
	}, h.tracker, h.scheduler, h.provider, h.store, nil)
	require.Error(t, err)

	_, err = New(Config{
		Start:    time.Date(2014, 6, 5, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2014, 6, 7, 0, 0, 0, 0, time.UTC),
		Step:     0,
		Calendar: cal,
	}, h.tracker, h.scheduler, h.provider, h.store, nil)
	require.Error(t, err)
}
