package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fakeClock() (*Clock, *time.Time) {
	now := time.Unix(100, 0)
	c := NewClock()
	c.now = func() time.Time { return now }
	return c, &now
}

func TestClockElapsedAndTick(t *testing.T) {
	c, now := fakeClock()
	assert.False(t, c.Running())
	assert.Zero(t, c.Tick())

	c.Start()
	*now = now.Add(250 * time.Millisecond)
	assert.InDelta(t, 0.25, c.Tick(), 1e-9)
	*now = now.Add(100 * time.Millisecond)
	assert.InDelta(t, 0.1, c.Tick(), 1e-9)

	assert.Zero(t, c.Elapsed(), "elapsed only moves on Update")
	c.Update()
	assert.InDelta(t, 0.35, c.Elapsed(), 1e-9)

	c.Stop()
	*now = now.Add(time.Second)
	c.Update()
	assert.InDelta(t, 0.35, c.Elapsed(), 1e-9)
	assert.Zero(t, c.Tick())
}
