// Package polltest provides a deterministic clock for poll-driven code.
package polltest

import (
	"context"
	"time"
)

// Clock is a manual clock. Sleep advances the clock instantly, and every Now
// call adds Step, which models slow probes that eat into the budget.
type Clock struct {
	now    time.Time
	Step   time.Duration
	Sleeps []time.Duration
}

// NewClock returns a Clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.now = c.now.Add(c.Step)
	return c.now
}

func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Sleeps = append(c.Sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Advance moves the clock forward without recording a sleep.
func (c *Clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
