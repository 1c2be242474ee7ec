// Package scheduler provides the timer capability used by the cache and the
// query coordinator: one-shot callbacks, periodic callbacks and cancellable
// sleeps, all driven by an injectable clock so tests never wait on the wall
// clock.
//
// Every handle handed out by a Scheduler is tracked until it fires or is
// stopped. Stop cancels everything still outstanding, which is what process
// shutdown and test teardown rely on to avoid leaking scheduled callbacks.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Handle cancels a scheduled callback.
type Handle interface {
	// Stop cancels the callback. It reports whether the callback was still
	// pending (one-shot) or running (periodic) when Stop was called.
	Stop() bool
}

// Scheduler manages timers on a single clock.
type Scheduler struct {
	clock   clockwork.Clock
	mu      sync.Mutex
	entries map[*entry]struct{}
	stopped bool
}

type entry struct {
	s      *Scheduler
	mu     sync.Mutex
	timer  clockwork.Timer
	ticker clockwork.Ticker
	done   chan struct{}
	once   sync.Once
}

// New creates a Scheduler on the given clock. A nil clock uses the real one.
func New(clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:   clock,
		entries: make(map[*entry]struct{}),
	}
}

// Clock returns the underlying clock.
func (s *Scheduler) Clock() clockwork.Clock {
	return s.clock
}

// Now returns the current time on the scheduler clock.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Since returns the time elapsed since t on the scheduler clock.
func (s *Scheduler) Since(t time.Time) time.Duration {
	return s.clock.Since(t)
}

// After runs fn once after d elapses.
func (s *Scheduler) After(d time.Duration, fn func()) Handle {
	e := &entry{s: s, done: make(chan struct{})}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return inert{}
	}
	s.entries[e] = struct{}{}
	s.mu.Unlock()

	t := s.clock.AfterFunc(d, func() {
		if !e.release() {
			return
		}
		fn()
	})

	e.mu.Lock()
	e.timer = t
	e.mu.Unlock()
	select {
	case <-e.done:
		// Stopped before the timer was recorded.
		t.Stop()
	default:
	}
	return e
}

// Every runs fn each time d elapses until the handle is stopped.
// Ticks that arrive while fn is still running are dropped.
func (s *Scheduler) Every(d time.Duration, fn func()) Handle {
	if d <= 0 {
		return inert{}
	}
	e := &entry{s: s, done: make(chan struct{})}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return inert{}
	}
	s.entries[e] = struct{}{}
	s.mu.Unlock()

	ticker := s.clock.NewTicker(d)
	e.mu.Lock()
	e.ticker = ticker
	e.mu.Unlock()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-e.done:
				return
			case <-ticker.Chan():
				select {
				case <-e.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return e
}

// Sleep blocks for d on the scheduler clock. It returns ctx.Err() if the
// context ends first.
func (s *Scheduler) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := s.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

// Pending returns the number of handles that have neither fired nor been
// stopped.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every outstanding handle. Handles requested afterwards are
// inert.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	entries := make([]*entry, 0, len(s.entries))
	for e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.Stop()
	}
}

// release marks the entry finished and forgets it. It reports whether this
// call performed the transition.
func (e *entry) release() bool {
	released := false
	e.once.Do(func() {
		released = true
		close(e.done)
		e.s.mu.Lock()
		delete(e.s.entries, e)
		e.s.mu.Unlock()
	})
	return released
}

func (e *entry) Stop() bool {
	if !e.release() {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
	if e.ticker != nil {
		e.ticker.Stop()
	}
	return true
}

type inert struct{}

func (inert) Stop() bool { return false }
