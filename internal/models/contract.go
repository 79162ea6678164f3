// Package models provides the core domain types for option contracts and underlyings.
package models

import (
	"fmt"
	"math"
	"time"
)

// Right represents the right type of an option contract.
type Right string

const (
	// RightPut represents a put option contract
	RightPut Right = "put"
	// RightCall represents a call option contract
	RightCall Right = "call"
)

// Valid returns true if the Right is one of the defined constants
func (r Right) Valid() bool {
	switch r {
	case RightPut, RightCall:
		return true
	default:
		return false
	}
}

// OptionContract identifies a single option contract. It is an immutable value:
// once built it is only copied, never mutated.
type OptionContract struct {
	Symbol     string    `json:"symbol" csv:"symbol"`
	Underlying string    `json:"underlying" csv:"underlying"`
	Strike     float64   `json:"strike" csv:"strike"`
	Expiration time.Time `json:"expiration" csv:"-"`
	Right      Right     `json:"right" csv:"right"`
}

// NewOptionContract builds a contract with its OCC symbol derived from the parts.
func NewOptionContract(underlying string, expiration time.Time, right Right, strike float64) OptionContract {
	return OptionContract{
		Symbol:     OCCSymbol(underlying, expiration, right, strike),
		Underlying: underlying,
		Strike:     strike,
		Expiration: expiration,
		Right:      right,
	}
}

// OCCSymbol formats a contract identifier in OCC style, e.g. TWX141008P00070000.
func OCCSymbol(underlying string, expiration time.Time, right Right, strike float64) string {
	r := "C"
	if right == RightPut {
		r = "P"
	}
	// Strike is encoded as price*1000, zero padded to 8 digits.
	return fmt.Sprintf("%s%s%s%08d", underlying, expiration.Format("060102"), r, int64(math.Round(strike*1000)))
}

// DTE returns whole days from now until expiration, floored at zero.
func (c OptionContract) DTE(now time.Time) int {
	n := now.UTC().Truncate(24 * time.Hour)
	exp := c.Expiration.UTC().Truncate(24 * time.Hour)
	days := int(exp.Sub(n).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Moneyness returns the absolute distance between the strike and a reference price.
func (c OptionContract) Moneyness(referencePrice float64) float64 {
	return math.Abs(referencePrice - c.Strike)
}

// String returns a human-readable description of the contract.
func (c OptionContract) String() string {
	return fmt.Sprintf("%s %s %.2f %s exp %s",
		c.Underlying, c.Right, c.Strike, c.Symbol, c.Expiration.Format("2006-01-02"))
}

// Validate checks the contract fields are internally consistent.
func (c OptionContract) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("contract symbol is required")
	}
	if c.Underlying == "" {
		return fmt.Errorf("contract %s: underlying is required", c.Symbol)
	}
	if !c.Right.Valid() {
		return fmt.Errorf("contract %s: invalid right %q", c.Symbol, c.Right)
	}
	if c.Strike <= 0 {
		return fmt.Errorf("contract %s: strike must be > 0 (current: %.2f)", c.Symbol, c.Strike)
	}
	if c.Expiration.IsZero() {
		return fmt.Errorf("contract %s: expiration is required", c.Symbol)
	}
	return nil
}
