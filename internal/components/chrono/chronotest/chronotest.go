// Package chronotest provides deterministic chrono implementations for tests.
package chronotest

import (
	"context"
	"sync"
	"time"
)

// Sleeper records requested sleeps instead of blocking. It advances Clock
// (when set) by each slept duration.
type Sleeper struct {
	mu    sync.Mutex
	slept []time.Duration
	Clock *Clock

	// OnSleep runs after a sleep is recorded, a non-nil error is returned
	// from Sleep. Useful for stopping infinite loops.
	OnSleep func(n int, d time.Duration) error
}

func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.slept = append(s.slept, d)
	n := len(s.slept)
	hook := s.OnSleep
	s.mu.Unlock()

	if s.Clock != nil {
		s.Clock.Advance(d)
	}
	if hook != nil {
		return hook(n, d)
	}
	return nil
}

// Slept returns a copy of every duration passed to Sleep.
func (s *Sleeper) Slept() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.slept))
	copy(out, s.slept)
	return out
}

// Clock is a manually advanced TimeAPI.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
