package feed

import (
	"fmt"
	"time"

	"github.com/davzucky/chainuniverse/internal/models"
)

// StaticProvider serves a fixed in-memory chain and price per underlying.
// Used by tests and by the engine's dry-run mode.
type StaticProvider struct {
	Chains map[string][]models.OptionContract
	Prices map[string]float64
}

var _ Provider = (*StaticProvider)(nil)

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		Chains: make(map[string][]models.OptionContract),
		Prices: make(map[string]float64),
	}
}

// SetChain replaces the chain for an underlying.
func (p *StaticProvider) SetChain(underlying string, contracts ...models.OptionContract) {
	p.Chains[underlying] = contracts
}

// SetPrice sets the reference price for an underlying.
func (p *StaticProvider) SetPrice(underlying string, price float64) {
	p.Prices[underlying] = price
}

// Chain returns the configured contracts for an underlying.
func (p *StaticProvider) Chain(underlying string, _ time.Time) ([]models.OptionContract, error) {
	list := p.Chains[underlying]
	out := make([]models.OptionContract, len(list))
	copy(out, list)
	return out, nil
}

// ReferencePrice returns the configured price for an underlying.
func (p *StaticProvider) ReferencePrice(underlying string, _ time.Time) (float64, error) {
	price, ok := p.Prices[underlying]
	if !ok {
		return 0, fmt.Errorf("no price data for %s", underlying)
	}
	return price, nil
}
