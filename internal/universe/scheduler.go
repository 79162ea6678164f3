package universe

import (
	"fmt"
	"log"
	"os"
	"time"
)

// MutationKind identifies what a scheduled mutation does when it fires.
type MutationKind string

const (
	// MutationAddChain begins tracking an underlying's option chain
	MutationAddChain MutationKind = "add_chain"
	// MutationRemoveChain stops tracking an underlying's option chain
	MutationRemoveChain MutationKind = "remove_chain"
)

// Valid returns true if the MutationKind is one of the defined constants
func (k MutationKind) Valid() bool {
	switch k {
	case MutationAddChain, MutationRemoveChain:
		return true
	default:
		return false
	}
}

// ScheduledMutation is a one-shot universe change: at time At, apply Kind to
// Underlying. Config is only consulted for add mutations. The fired flag is
// one-way: it starts false and is set true on firing, never reset, so a
// mutation executes at most once no matter how often Fire is called.
type ScheduledMutation struct {
	At         time.Time
	Kind       MutationKind
	Underlying string
	Config     FilterConfig
	fired      bool
}

// Fired reports whether the mutation has already executed.
func (m *ScheduledMutation) Fired() bool {
	return m.fired
}

// Scheduler holds registered mutations and applies the due ones to a tracker.
// It is driven from the engine's single event loop and is not goroutine-safe.
type Scheduler struct {
	tracker   *Tracker
	logger    *log.Logger
	mutations []*ScheduledMutation
}

// NewScheduler creates a scheduler that applies mutations to the given tracker.
func NewScheduler(tracker *Tracker, logger *log.Logger) *Scheduler {
	if tracker == nil {
		panic("universe.NewScheduler: tracker must not be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "scheduler: ", log.LstdFlags)
	}
	return &Scheduler{
		tracker: tracker,
		logger:  logger,
	}
}

// Register queues a mutation. Mutations sharing a timestamp fire in
// registration order.
func (s *Scheduler) Register(m ScheduledMutation) error {
	if m.At.IsZero() {
		return fmt.Errorf("mutation timestamp is required")
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("invalid mutation kind %q", m.Kind)
	}
	if m.Underlying == "" {
		return fmt.Errorf("mutation underlying is required")
	}
	if m.Kind == MutationAddChain {
		if err := m.Config.Validate(); err != nil {
			return fmt.Errorf("add_chain %s: %w", m.Underlying, err)
		}
	}
	s.mutations = append(s.mutations, &m)
	return nil
}

// Fire executes every unfired mutation whose timestamp has been reached and
// returns how many fired. Each mutation transitions Pending -> Fired exactly
// once.
func (s *Scheduler) Fire(now time.Time) int {
	fired := 0
	for _, m := range s.mutations {
		if m.fired || m.At.After(now) {
			continue
		}
		switch m.Kind {
		case MutationAddChain:
			if err := s.tracker.AddChain(m.Underlying, m.Config); err != nil {
				s.logger.Printf("add_chain %s failed: %v", m.Underlying, err)
			} else {
				s.logger.Printf("added chain %s at %s", m.Underlying, now.Format(time.RFC3339))
			}
		case MutationRemoveChain:
			s.tracker.RemoveChain(m.Underlying)
			s.logger.Printf("removed chain %s at %s", m.Underlying, now.Format(time.RFC3339))
		}
		m.fired = true
		fired++
	}
	return fired
}

// Pending returns how many registered mutations have not fired yet.
func (s *Scheduler) Pending() int {
	n := 0
	for _, m := range s.mutations {
		if !m.fired {
			n++
		}
	}
	return n
}
