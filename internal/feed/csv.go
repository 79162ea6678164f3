package feed

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/davzucky/chainuniverse/internal/models"
)

const dateLayout = "2006-01-02"

// chainRow is one contract definition in the chains fixture file.
type chainRow struct {
	Underlying string  `csv:"underlying"`
	Right      string  `csv:"right"`
	Strike     float64 `csv:"strike"`
	Expiration string  `csv:"expiration"`
}

// priceRow is one daily reference price in the prices fixture file.
type priceRow struct {
	Date       string  `csv:"date"`
	Underlying string  `csv:"underlying"`
	Price      float64 `csv:"price"`
}

// CSVProvider serves chains and prices loaded from CSV fixture files. Data is
// immutable after load, so reads need no locking.
type CSVProvider struct {
	chains map[string][]models.OptionContract
	prices map[string]map[string]float64 // underlying -> date -> price
}

// Ensure CSVProvider implements Provider at compile time.
var _ Provider = (*CSVProvider)(nil)

// NewCSVProvider loads chain and price fixtures from the given file paths.
func NewCSVProvider(chainsPath, pricesPath string) (*CSVProvider, error) {
	p := &CSVProvider{
		chains: make(map[string][]models.OptionContract),
		prices: make(map[string]map[string]float64),
	}

	if err := p.loadChains(chainsPath); err != nil {
		return nil, fmt.Errorf("loading chains: %w", err)
	}
	if err := p.loadPrices(pricesPath); err != nil {
		return nil, fmt.Errorf("loading prices: %w", err)
	}
	return p, nil
}

func (p *CSVProvider) loadChains(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from the user's config file
	if err != nil {
		return err
	}
	defer f.Close()

	var rows []*chainRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for i, row := range rows {
		exp, err := time.Parse(dateLayout, row.Expiration)
		if err != nil {
			return fmt.Errorf("%s row %d: invalid expiration %q: %w", path, i+1, row.Expiration, err)
		}
		right := models.Right(row.Right)
		contract := models.NewOptionContract(row.Underlying, exp.UTC(), right, row.Strike)
		if err := contract.Validate(); err != nil {
			return fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		p.chains[row.Underlying] = append(p.chains[row.Underlying], contract)
	}
	return nil
}

func (p *CSVProvider) loadPrices(path string) error {
	f, err := os.Open(path) // #nosec G304 -- path comes from the user's config file
	if err != nil {
		return err
	}
	defer f.Close()

	var rows []*priceRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for i, row := range rows {
		if _, err := time.Parse(dateLayout, row.Date); err != nil {
			return fmt.Errorf("%s row %d: invalid date %q: %w", path, i+1, row.Date, err)
		}
		if row.Price <= 0 {
			return fmt.Errorf("%s row %d: price must be > 0 (current: %.2f)", path, i+1, row.Price)
		}
		if p.prices[row.Underlying] == nil {
			p.prices[row.Underlying] = make(map[string]float64)
		}
		p.prices[row.Underlying][row.Date] = row.Price
	}
	return nil
}

// Chain returns every contract defined for an underlying. Unknown underlyings
// yield an empty chain, not an error: a chain may be added to the universe
// before its fixture data begins.
func (p *CSVProvider) Chain(underlying string, _ time.Time) ([]models.OptionContract, error) {
	list := p.chains[underlying]
	out := make([]models.OptionContract, len(list))
	copy(out, list)
	return out, nil
}

// ReferencePrice returns the price for the underlying on the given date,
// falling back to the most recent earlier date when the exact day is missing.
func (p *CSVProvider) ReferencePrice(underlying string, now time.Time) (float64, error) {
	byDate, ok := p.prices[underlying]
	if !ok {
		return 0, fmt.Errorf("no price data for %s", underlying)
	}

	day := now.Format(dateLayout)
	if price, ok := byDate[day]; ok {
		return price, nil
	}

	// Walk back to the latest date before now.
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		if d < day {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return 0, fmt.Errorf("no price for %s on or before %s", underlying, day)
	}
	sort.Strings(dates)
	return byDate[dates[len(dates)-1]], nil
}
