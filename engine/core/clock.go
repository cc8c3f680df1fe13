package core

import "time"

// Clock measures frame time for the engine loop. now is replaceable in tests.
type Clock struct {
	now      func() time.Time
	start    time.Time
	lastTick time.Time
	elapsed  time.Duration
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Start resets the clock. Elapsed and Tick count from here.
func (c *Clock) Start() {
	c.start = c.now()
	c.lastTick = c.start
	c.elapsed = 0
}

// Stop freezes Elapsed at its last updated value.
func (c *Clock) Stop() {
	c.start = time.Time{}
}

func (c *Clock) Running() bool {
	return !c.start.IsZero()
}

// Update samples the time. A stopped clock keeps its value.
func (c *Clock) Update() {
	if c.Running() {
		c.elapsed = c.now().Sub(c.start)
	}
}

// Elapsed returns the seconds since Start, as of the last Update.
func (c *Clock) Elapsed() float64 {
	return c.elapsed.Seconds()
}

// Tick returns the seconds since the previous Tick, or since Start for the
// first one. A stopped clock returns 0.
func (c *Clock) Tick() float64 {
	if !c.Running() {
		return 0
	}
	now := c.now()
	delta := now.Sub(c.lastTick)
	c.lastTick = now
	return delta.Seconds()
}
