// Package config provides configuration management for the backtest harness.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/davzucky/chainuniverse/internal/models"
	"github.com/davzucky/chainuniverse/internal/universe"
)

const (
	dateLayout     = "2006-01-02"
	scheduleLayout = "2006-01-02 15:04"

	// defaultStep is used when session.step is unset
	defaultStep = 30 * time.Minute
	// defaultTimezone is used when session.timezone is unset
	defaultTimezone = "America/New_York"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Session     SessionConfig     `yaml:"session"`
	Universe    UniverseConfig    `yaml:"universe"`
	Orders      OrdersConfig      `yaml:"orders"`
	Feed        FeedConfig        `yaml:"feed"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Assertions  []AssertionConfig `yaml:"assertions"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// SessionConfig defines the simulated calendar the backtest runs over.
type SessionConfig struct {
	Timezone string `yaml:"timezone"` // e.g., "America/New_York"
	Open     string `yaml:"open"`     // "HH:MM"
	Close    string `yaml:"close"`    // "HH:MM"
	Start    string `yaml:"start"`    // first trading date, "2006-01-02"
	End      string `yaml:"end"`      // last trading date, inclusive
	Step     string `yaml:"step"`     // clock tick, e.g. "30m"
}

// UniverseConfig defines the tracked underlyings and scheduled chain mutations.
type UniverseConfig struct {
	Underlyings []UnderlyingConfig `yaml:"underlyings"`
	Schedule    []ScheduleConfig   `yaml:"schedule"`
}

// UnderlyingConfig defines one underlying tracked from the start of the run.
type UnderlyingConfig struct {
	Symbol   string       `yaml:"symbol"`
	Tradable bool         `yaml:"tradable"`
	Filter   FilterConfig `yaml:"filter"`
}

// FilterConfig defines the chain filter for one underlying.
type FilterConfig struct {
	MinWindow string `yaml:"min_window"` // duration, e.g. "0h"
	MaxWindow string `yaml:"max_window"` // duration, e.g. "4320h" (180 days)
	Right     string `yaml:"right"`      // put | call | "" (both)
	Count     int    `yaml:"count"`
}

// ScheduleConfig defines one scheduled chain add or remove.
type ScheduleConfig struct {
	At         string       `yaml:"at"` // "2006-01-02 15:04" in session timezone
	Action     string       `yaml:"action"`
	Underlying string       `yaml:"underlying"`
	Tradable   bool         `yaml:"tradable"`
	Filter     FilterConfig `yaml:"filter"`
}

// OrdersConfig defines the daily order submission glue.
type OrdersConfig struct {
	Time     string `yaml:"time"` // "HH:MM"
	Quantity int    `yaml:"quantity"`
}

// FeedConfig points at the market data fixture files.
type FeedConfig struct {
	Chains string `yaml:"chains"`
	Prices string `yaml:"prices"`
}

// StorageConfig defines storage settings for run results.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the status dashboard settings.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AssertionConfig defines one expected final selection.
type AssertionConfig struct {
	Underlying string `yaml:"underlying"`
	Expected   string `yaml:"expected"` // contract symbol
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) normalize() {
	if c.Session.Timezone == "" {
		c.Session.Timezone = defaultTimezone
	}
	if c.Session.Open == "" {
		c.Session.Open = "09:30"
	}
	if c.Session.Close == "" {
		c.Session.Close = "16:00"
	}
	if c.Session.Step == "" {
		c.Session.Step = defaultStep.String()
	}
	if c.Orders.Time == "" {
		c.Orders.Time = "15:00"
	}
	if c.Orders.Quantity == 0 {
		c.Orders.Quantity = 1
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	loc, err := c.Location()
	if err != nil {
		return fmt.Errorf("session.timezone invalid: %w", err)
	}

	// Session validation
	start, err1 := time.ParseInLocation(dateLayout, c.Session.Start, loc)
	end, err2 := time.ParseInLocation(dateLayout, c.Session.End, loc)
	if err1 != nil || err2 != nil {
		return fmt.Errorf("session.start/session.end must be %q dates", dateLayout)
	}
	if end.Before(start) {
		return fmt.Errorf("session.end (%s) must not be before session.start (%s)", c.Session.End, c.Session.Start)
	}
	if _, err := time.ParseDuration(c.Session.Step); err != nil {
		return fmt.Errorf("session.step invalid: %w", err)
	}
	o, err1 := time.Parse("15:04", c.Session.Open)
	e, err2 := time.Parse("15:04", c.Session.Close)
	if err1 != nil || err2 != nil || !o.Before(e) {
		return fmt.Errorf("session open/close window invalid (start/end parse/order)")
	}

	// Universe validation
	if len(c.Universe.Underlyings) == 0 && len(c.Universe.Schedule) == 0 {
		return fmt.Errorf("universe must define at least one underlying or scheduled mutation")
	}
	seen := make(map[string]bool)
	for _, u := range c.Universe.Underlyings {
		if u.Symbol == "" {
			return fmt.Errorf("universe.underlyings: symbol is required")
		}
		if seen[u.Symbol] {
			return fmt.Errorf("universe.underlyings: duplicate symbol %s", u.Symbol)
		}
		seen[u.Symbol] = true
		if _, err := u.Filter.Build(); err != nil {
			return fmt.Errorf("universe.underlyings %s: %w", u.Symbol, err)
		}
	}
	for i, s := range c.Universe.Schedule {
		if _, err := time.ParseInLocation(scheduleLayout, s.At, loc); err != nil {
			return fmt.Errorf("universe.schedule[%d]: invalid at %q: %w", i, s.At, err)
		}
		kind := universe.MutationKind(s.Action)
		if !kind.Valid() {
			return fmt.Errorf("universe.schedule[%d]: action must be %q or %q (current: %q)",
				i, universe.MutationAddChain, universe.MutationRemoveChain, s.Action)
		}
		if s.Underlying == "" {
			return fmt.Errorf("universe.schedule[%d]: underlying is required", i)
		}
		if kind == universe.MutationAddChain {
			if _, err := s.Filter.Build(); err != nil {
				return fmt.Errorf("universe.schedule[%d] %s: %w", i, s.Underlying, err)
			}
		}
	}

	// Orders validation
	if _, err := time.Parse("15:04", c.Orders.Time); err != nil {
		return fmt.Errorf("orders.time invalid: %w", err)
	}

	// Feed validation
	if c.Feed.Chains == "" {
		return fmt.Errorf("feed.chains is required")
	}
	if c.Feed.Prices == "" {
		return fmt.Errorf("feed.prices is required")
	}

	// Storage validation
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	// Dashboard validation
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be in (0,65535] when enabled")
	}

	// Assertion validation
	for i, a := range c.Assertions {
		if a.Underlying == "" || a.Expected == "" {
			return fmt.Errorf("assertions[%d]: underlying and expected are required", i)
		}
	}

	return nil
}

// Build converts the yaml filter block into a universe.FilterConfig.
func (f FilterConfig) Build() (universe.FilterConfig, error) {
	minW, err := time.ParseDuration(f.MinWindow)
	if err != nil {
		return universe.FilterConfig{}, fmt.Errorf("filter min_window invalid: %w", err)
	}
	maxW, err := time.ParseDuration(f.MaxWindow)
	if err != nil {
		return universe.FilterConfig{}, fmt.Errorf("filter max_window invalid: %w", err)
	}
	cfg := universe.FilterConfig{
		MinWindow: minW,
		MaxWindow: maxW,
		Right:     models.Right(f.Right),
		Count:     f.Count,
	}
	if err := cfg.Validate(); err != nil {
		return universe.FilterConfig{}, err
	}
	return cfg, nil
}

// Location returns the configured session time zone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Session.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	return time.LoadLocation(tz)
}

// StartTime returns midnight of the first trading date in the session zone.
func (c *Config) StartTime() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(dateLayout, c.Session.Start, loc)
}

// EndTime returns midnight after the last trading date, so the final session
// is fully simulated.
func (c *Config) EndTime() (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	end, err := time.ParseInLocation(dateLayout, c.Session.End, loc)
	if err != nil {
		return time.Time{}, err
	}
	return end.AddDate(0, 0, 1), nil
}

// StepDuration returns the configured clock tick.
func (c *Config) StepDuration() time.Duration {
	d, err := time.ParseDuration(c.Session.Step)
	if err != nil {
		return defaultStep
	}
	return d
}

// MutationTime parses a schedule entry timestamp in the session zone.
func (c *Config) MutationTime(at string) (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(scheduleLayout, at, loc)
}

// ExpectedSelections returns the assertion map consumed by the engine.
func (c *Config) ExpectedSelections() map[string]string {
	if len(c.Assertions) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.Assertions))
	for _, a := range c.Assertions {
		out[a.Underlying] = a.Expected
	}
	return out
}
