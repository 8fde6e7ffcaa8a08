// Package simclock provides the deterministic clock owned by the simulation
// driver. Components never read wall time; they are handed timestamps from
// this clock so runs replay identically.
package simclock

import "time"

// Clock advances in fixed steps from a configured start instant.
type Clock struct {
	current time.Time
	step    time.Duration
}

// New creates a clock starting at start and advancing by step per tick.
func New(start time.Time, step time.Duration) *Clock {
	return &Clock{current: start, step: step}
}

// Now returns the current simulated instant.
func (c *Clock) Now() time.Time { return c.current }

// Tick advances the clock one step and returns the new instant.
func (c *Clock) Tick() time.Time {
	c.current = c.current.Add(c.step)
	return c.current
}

// Advance moves the clock forward by d without consuming a tick. Used by
// halt-machine tests to jump past cure windows and halt durations.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.current = c.current.Add(d)
	return c.current
}
