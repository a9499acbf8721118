// Package system provides clocks for timestamping progress events.
package system

import (
	"sync"
	"time"
)

// Clock implements vocab.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Stepped is a deterministic clock that advances by a fixed step on each
// call. Tests use it to get reproducible durations.
type Stepped struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStepped starts at start and advances by step per Now call.
func NewStepped(start time.Time, step time.Duration) *Stepped {
	return &Stepped{now: start.UTC(), step: step}
}

// Now returns the current fake time and advances it.
func (s *Stepped) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now
	s.now = s.now.Add(s.step)
	return now
}
