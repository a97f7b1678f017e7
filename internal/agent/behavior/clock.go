package behavior

import "time"

// TimeSource reports the time elapsed since it was last asked. Time based
// nodes call Elapsed once per tick; units are up to the application.
type TimeSource interface {
	Elapsed() float64
}

// TimeSourceFunc adapts a function to TimeSource.
type TimeSourceFunc func() float64

func (f TimeSourceFunc) Elapsed() float64 {
	return f()
}

// WallClock measures elapsed wall time in seconds.
type WallClock struct {
	now  func() time.Time
	last time.Time
}

// NewWallClock returns a clock whose first Elapsed call measures from now.
func NewWallClock() *WallClock {
	return newWallClock(time.Now)
}

func newWallClock(now func() time.Time) *WallClock {
	return &WallClock{now: now, last: now()}
}

func (c *WallClock) Elapsed() float64 {
	t := c.now()
	d := t.Sub(c.last)
	c.last = t
	return d.Seconds()
}

// StepClock advances by a fixed step on every call, as in a fixed timestep
// game loop.
type StepClock struct {
	Step float64
}

func (c StepClock) Elapsed() float64 {
	return c.Step
}
