// Package universe implements option-chain universe selection: a windowed chain
// filter, a lifecycle tracker for the contracts it selects, and a scheduler for
// adding and removing whole chains at fixed points in time.
package universe

import (
	"fmt"
	"sort"
	"time"

	"github.com/davzucky/chainuniverse/internal/models"
)

// FilterConfig describes how a chain is filtered for one underlying. It is data,
// not behavior: a single generic Select interprets it.
type FilterConfig struct {
	// MinWindow and MaxWindow bound expiration - now, inclusive on both ends.
	MinWindow time.Duration
	MaxWindow time.Duration
	// Right restricts the chain to one right type. Empty means both.
	Right models.Right
	// Count is the maximum number of contracts selected per evaluation.
	Count int
}

// Validate checks that the filter configuration is usable.
func (c FilterConfig) Validate() error {
	if c.MinWindow < 0 {
		return fmt.Errorf("filter min_window must be >= 0 (current: %s)", c.MinWindow)
	}
	if c.MaxWindow < c.MinWindow {
		return fmt.Errorf("filter max_window (%s) must be >= min_window (%s)", c.MaxWindow, c.MinWindow)
	}
	if c.Right != "" && !c.Right.Valid() {
		return fmt.Errorf("filter right must be %q, %q or empty (current: %q)",
			models.RightPut, models.RightCall, c.Right)
	}
	if c.Count <= 0 {
		return fmt.Errorf("filter count must be > 0 (current: %d)", c.Count)
	}
	return nil
}

// Select applies cfg to the candidate contracts and returns the chosen ones,
// ranked. Ranking: latest expiration first, then closest strike to
// referencePrice, then ascending contract symbol so exact ties stay
// deterministic across runs.
//
// An empty result is not an error: it means nothing in the chain passed the
// window and right filters.
func Select(candidates []models.OptionContract, referencePrice float64, now time.Time, cfg FilterConfig) []models.OptionContract {
	eligible := make([]models.OptionContract, 0, len(candidates))
	for _, c := range candidates {
		window := c.Expiration.Sub(now)
		if window < cfg.MinWindow || window > cfg.MaxWindow {
			continue
		}
		if cfg.Right != "" && c.Right != cfg.Right {
			continue
		}
		eligible = append(eligible, c)
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.Expiration.Equal(b.Expiration) {
			return a.Expiration.After(b.Expiration)
		}
		da, db := a.Moneyness(referencePrice), b.Moneyness(referencePrice)
		if da != db {
			return da < db
		}
		return a.Symbol < b.Symbol
	})

	if len(eligible) > cfg.Count {
		eligible = eligible[:cfg.Count]
	}
	return eligible
}
