package calendar

import "time"

// Clock is the injectable time source. Production code uses SystemClock;
// tests freeze it.
type Clock interface {
	Now() time.Time
	Today() Date
}

// SystemClock reads the wall clock in the organization timezone.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock returns a Clock backed by the wall clock.
func NewSystemClock(loc *time.Location) *SystemClock {
	return &SystemClock{loc: loc}
}

func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *SystemClock) Today() Date {
	return DateOf(time.Now(), c.loc)
}

// FrozenClock always reports the same instant. Tests advance it explicitly.
type FrozenClock struct {
	now time.Time
	loc *time.Location
}

// NewFrozenClock returns a Clock frozen at the given instant.
func NewFrozenClock(now time.Time, loc *time.Location) *FrozenClock {
	return &FrozenClock{now: now.In(loc), loc: loc}
}

func (c *FrozenClock) Now() time.Time {
	return c.now
}

func (c *FrozenClock) Today() Date {
	return DateOf(c.now, c.loc)
}

// Advance moves the frozen clock forward by d.
func (c *FrozenClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// Set moves the frozen clock to the given instant.
func (c *FrozenClock) Set(t time.Time) {
	c.now = t.In(c.loc)
}
