// Package engine drives the backtest: a simulated clock advanced tick by tick,
// with session-open universe evaluation, scheduled mutations, and data-event
// dispatch in a fixed order.
package engine

import (
	"fmt"
	"time"
)

// Clock is the simulated backtest clock. It only moves forward.
type Clock struct {
	CurrentTime time.Time
	EndTime     time.Time
}

// NewClock creates a clock spanning [start, end].
func NewClock(start, end time.Time) *Clock {
	return &Clock{CurrentTime: start, EndTime: end}
}

// Add advances the clock.
func (c *Clock) Add(d time.Duration) {
	c.CurrentTime = c.CurrentTime.Add(d)
}

// IsExpired reports whether the clock has reached its end time.
func (c *Clock) IsExpired() bool {
	return c.CurrentTime.Equal(c.EndTime) || c.CurrentTime.After(c.EndTime)
}

// SessionCalendar maps wall-clock instants onto trading sessions: Monday to
// Friday, between the configured open and close times in the configured
// location.
type SessionCalendar struct {
	loc       *time.Location
	openMins  int
	closeMins int
}

// NewSessionCalendar parses open and close times in "15:04" format.
func NewSessionCalendar(open, close string, loc *time.Location) (SessionCalendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	o, err := time.Parse("15:04", open)
	if err != nil {
		return SessionCalendar{}, fmt.Errorf("invalid session open %q: %w", open, err)
	}
	c, err := time.Parse("15:04", close)
	if err != nil {
		return SessionCalendar{}, fmt.Errorf("invalid session close %q: %w", close, err)
	}
	cal := SessionCalendar{
		loc:       loc,
		openMins:  o.Hour()*60 + o.Minute(),
		closeMins: c.Hour()*60 + c.Minute(),
	}
	if cal.openMins >= cal.closeMins {
		return SessionCalendar{}, fmt.Errorf("session open %s must be before close %s", open, close)
	}
	return cal, nil
}

// SessionDate returns the trading date for t and whether t falls inside a
// session (inclusive open, exclusive close).
func (cal SessionCalendar) SessionDate(t time.Time) (string, bool) {
	local := t.In(cal.loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return "", false
	}
	mins := local.Hour()*60 + local.Minute()
	if mins < cal.openMins || mins >= cal.closeMins {
		return "", false
	}
	return local.Format("2006-01-02"), true
}

// Location returns the calendar's time zone.
func (cal SessionCalendar) Location() *time.Location {
	return cal.loc
}
