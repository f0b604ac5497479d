// Package clock provides the time source for the signage board. Production
// code uses RealClock; tests inject MockClock. OffsetClock shifts the
// observation instant for debugging boards at a different time of day.
package clock

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Clock provides an abstraction for time operations.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using actual system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// MockClock implements Clock and provides a controllable, thread-safe time for tests.
type MockClock struct {
	currentTime time.Time
	mu          sync.Mutex
}

// NewMockClock creates a new MockClock set to the specified time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

// Now returns the mock clock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// Set changes the mock clock's current time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = t
}

// Advance moves the mock clock by the specified duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

// OffsetClock reports Base's time shifted by a fixed Offset.
type OffsetClock struct {
	Base   Clock
	Offset time.Duration
}

// Now returns the shifted time.
func (o OffsetClock) Now() time.Time {
	return o.Base.Now().Add(o.Offset)
}

// LocationClock reports Base's time in Loc, so that hour and date fields
// are those of the signage location rather than the host.
type LocationClock struct {
	Base Clock
	Loc  *time.Location
}

// Now returns the base time converted to Loc.
func (l LocationClock) Now() time.Time {
	t := l.Base.Now()
	if l.Loc == nil {
		return t
	}
	return t.In(l.Loc)
}

// New composes the production clock: system time in loc, shifted by offset.
func New(loc *time.Location, offset time.Duration) Clock {
	var c Clock = LocationClock{Base: RealClock{}, Loc: loc}
	if offset != 0 {
		c = OffsetClock{Base: c, Offset: offset}
	}
	return c
}

// MaxOffsetMinutes bounds the debug offset to one week either way.
const MaxOffsetMinutes = 7 * 24 * 60

// ParseOffsetMinutes parses a signed minute offset. Empty, non-numeric or
// out-of-range input yields zero.
func ParseOffsetMinutes(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > MaxOffsetMinutes || n < -MaxOffsetMinutes {
		return 0
	}
	return time.Duration(n) * time.Minute
}
