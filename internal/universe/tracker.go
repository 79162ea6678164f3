package universe

import (
	"fmt"
	"sort"
	"sync"

	"github.com/davzucky/chainuniverse/internal/models"
)

// Tracker maintains the set of currently tracked underlyings and, per
// underlying, the ordered list of contracts the filter currently holds. It is
// the sole owner of that mapping: all mutation flows through AddChain,
// RemoveChain and OnSecuritiesChanged.
//
// The engine mutates the tracker from its single event loop; the mutex exists
// so the dashboard can read it concurrently.
type Tracker struct {
	mu      sync.RWMutex
	configs map[string]FilterConfig
	held    map[string][]models.OptionContract
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		configs: make(map[string]FilterConfig),
		held:    make(map[string][]models.OptionContract),
	}
}

// AddChain begins tracking an underlying with the given filter configuration.
// Re-adding an underlying replaces its configuration and keeps its holdings.
func (t *Tracker) AddChain(underlying string, cfg FilterConfig) error {
	if underlying == "" {
		return fmt.Errorf("underlying is required")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("chain %s: %w", underlying, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.configs[underlying] = cfg
	if _, ok := t.held[underlying]; !ok {
		t.held[underlying] = make([]models.OptionContract, 0)
	}
	return nil
}

// RemoveChain stops tracking an underlying and clears its held contracts.
// Removing an untracked underlying is a no-op.
func (t *Tracker) RemoveChain(underlying string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.configs, underlying)
	delete(t.held, underlying)
}

// IsTracked reports whether the underlying has an active filter configuration.
func (t *Tracker) IsTracked(underlying string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.configs[underlying]
	return ok
}

// Config returns the active filter configuration for an underlying.
func (t *Tracker) Config(underlying string) (FilterConfig, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cfg, ok := t.configs[underlying]
	return cfg, ok
}

// OnSecuritiesChanged applies an added/removed notification from the
// evaluator. Adds for untracked underlyings are ignored, duplicate adds do not
// produce duplicate entries, and removals of absent contracts are no-ops.
// Late or repeated notifications are expected under the event model, so none
// of those cases is an error.
func (t *Tracker) OnSecuritiesChanged(added, removed []models.OptionContract) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range added {
		if _, ok := t.configs[c.Underlying]; !ok {
			continue
		}
		if containsContract(t.held[c.Underlying], c.Symbol) {
			continue
		}
		t.held[c.Underlying] = append(t.held[c.Underlying], c)
	}

	for _, c := range removed {
		list, ok := t.held[c.Underlying]
		if !ok {
			continue
		}
		for i := range list {
			if list[i].Symbol == c.Symbol {
				t.held[c.Underlying] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// Holdings returns a copy of the contracts currently held for an underlying.
func (t *Tracker) Holdings(underlying string) []models.OptionContract {
	t.mu.RLock()
	defer t.mu.RUnlock()
	list := t.held[underlying]
	out := make([]models.OptionContract, len(list))
	copy(out, list)
	return out
}

// Underlyings returns the tracked underlyings in ascending order. The stable
// order keeps per-session evaluation deterministic.
func (t *Tracker) Underlyings() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.configs))
	for u := range t.configs {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func containsContract(list []models.OptionContract, symbol string) bool {
	for i := range list {
		if list[i].Symbol == symbol {
			return true
		}
	}
	return false
}
