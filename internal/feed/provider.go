// Package feed supplies candidate option chains and reference prices to the
// backtest engine.
package feed

import (
	"time"

	"github.com/davzucky/chainuniverse/internal/models"
)

// Provider is the engine's market data source.
//
// Chain returns the raw candidate contracts for an underlying as of now; the
// universe filter is applied downstream, so implementations should not
// pre-filter. ReferencePrice returns the underlying price used for
// closest-to-money ranking at the given time.
type Provider interface {
	Chain(underlying string, now time.Time) ([]models.OptionContract, error)
	ReferencePrice(underlying string, now time.Time) (float64, error)
}
