package testfixtures

import (
	"sync"
	"time"

	"github.com/example/autoescola/internal/domain"
)

// Clock is a settable time source shared by the services under test. Lesson
// deadlines are calendar based, so it also speaks in dates and times of day.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

// Now returns the clock's instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NowFunc returns Now for injection into service configs. A nil clock falls
// back to the wall clock.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new instant.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// SetLessonTime moves the clock to at on date in loc.
func (c *Clock) SetLessonTime(date domain.Date, at domain.TimeOfDay, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	c.Set(at.On(date, loc))
}

// Today is the calendar date of the clock's instant in loc.
func (c *Clock) Today(loc *time.Location) domain.Date {
	if loc == nil {
		loc = time.UTC
	}
	return domain.DateOf(c.Now().In(loc))
}
