// Package circuitbreaker guards fetch attempts for a cache key against a
// backend that keeps failing. While a key's breaker is open, attempts fail
// fast instead of burning through the retry schedule against a dead
// resource.
//
// # State machine
//
//	Closed ──(error rate ≥ threshold)──► Open ──(OpenDuration elapsed)──► HalfOpen
//	  ▲                                                                        │
//	  └──────────────(all probes succeed)───────────────────────────────────────┘
//	                  (any probe fails) ──────────────────────────────────► Open
//
// The error rate is computed over a sliding window of recent outcomes, and
// only once MinRequests outcomes are in the window.
//
// # Invariants
//
//   - The successes and failures slices contain only timestamps within the
//     current sliding window; trimWindow is called after every write.
//   - maxWindowEntries caps both slices.
//   - halfOpenProbes is reset to 0 on every Open→HalfOpen transition.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, attempts pass through
	StateOpen                  // Attempts are rejected
	StateHalfOpen              // Limited probe attempts are allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker configuration.
type Config struct {
	ErrorPct       float64       // Error percentage threshold to trip the breaker (0-100)
	MinRequests    int           // Outcomes required in the window before the rate is evaluated
	WindowDuration time.Duration // Sliding window for error rate calculation
	OpenDuration   time.Duration // How long the breaker stays open before probing
	HalfOpenProbes int           // Probe attempts allowed in half-open state
}

// Enabled reports whether the configuration describes a working breaker.
func (c Config) Enabled() bool {
	return c.ErrorPct > 0 && c.WindowDuration > 0 && c.OpenDuration > 0
}

// Breaker is a per-key circuit breaker.
type Breaker struct {
	mu             sync.Mutex
	cfg            Config
	clock          clockwork.Clock
	onChange       func(from, to State)
	state          State
	successes      []time.Time // timestamps of recent successes within window
	failures       []time.Time // timestamps of recent failures within window
	openedAt       time.Time   // when the breaker transitioned to open
	halfOpenProbes int         // number of probes allowed so far in half-open
	halfOpenOK     int         // number of successful probes in half-open
}

// New creates a circuit breaker on the real clock.
func New(cfg Config) *Breaker {
	return NewWithClock(cfg, nil)
}

// NewWithClock creates a circuit breaker whose window and open duration are
// measured on clock.
func NewWithClock(cfg Config, clock clockwork.Clock) *Breaker {
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Breaker{cfg: cfg, clock: clock}
}

// Allow reports whether an attempt may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.clock.Since(b.openedAt) < b.cfg.OpenDuration {
			return false
		}
		b.transition(StateHalfOpen)
		b.halfOpenProbes = 1
		return true
	case StateHalfOpen:
		if b.halfOpenProbes < b.cfg.HalfOpenProbes {
			b.halfOpenProbes++
			return true
		}
		return false
	}
	return true
}

// RecordSuccess records a successful attempt.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	switch b.state {
	case StateClosed:
		b.successes = append(b.successes, now)
		b.trimWindow(now)
	case StateHalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenProbes {
			b.transition(StateClosed)
			b.successes = b.successes[:0]
			b.failures = b.failures[:0]
		}
	}
}

// RecordFailure records a failed attempt.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()

	switch b.state {
	case StateClosed:
		b.failures = append(b.failures, now)
		b.trimWindow(now)
		b.checkThreshold(now)
	case StateHalfOpen:
		b.transition(StateOpen)
		b.openedAt = now
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.clock.Since(b.openedAt) >= b.cfg.OpenDuration {
		b.transition(StateHalfOpen)
	}
	return b.state
}

// transition moves to a new state and notifies the observer. Must be called
// under lock.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if to == StateHalfOpen {
		b.halfOpenProbes = 0
		b.halfOpenOK = 0
	}
	if b.onChange != nil && from != to {
		b.onChange(from, to)
	}
}

const maxWindowEntries = 10000

// trimWindow removes entries outside the sliding window. Must be called under lock.
func (b *Breaker) trimWindow(now time.Time) {
	cutoff := now.Add(-b.cfg.WindowDuration)
	b.successes = trimBefore(b.successes, cutoff)
	b.failures = trimBefore(b.failures, cutoff)

	if len(b.successes) > maxWindowEntries {
		b.successes = b.successes[len(b.successes)-maxWindowEntries:]
	}
	if len(b.failures) > maxWindowEntries {
		b.failures = b.failures[len(b.failures)-maxWindowEntries:]
	}
}

// checkThreshold trips the breaker if the error rate reaches the threshold. Must be called under lock.
func (b *Breaker) checkThreshold(now time.Time) {
	total := len(b.successes) + len(b.failures)
	if total < b.cfg.MinRequests {
		return
	}
	errorPct := float64(len(b.failures)) / float64(total) * 100
	if errorPct >= b.cfg.ErrorPct {
		b.transition(StateOpen)
		b.openedAt = now
	}
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	copy(times, times[i:])
	return times[:len(times)-i]
}

// Registry holds one breaker per cache key, all sharing a configuration.
type Registry struct {
	cfg      Config
	clock    clockwork.Clock
	onChange func(key string, from, to State)

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry. A nil clock uses the real one.
func NewRegistry(cfg Config, clock clockwork.Clock) *Registry {
	return &Registry{
		cfg:      cfg,
		clock:    clock,
		breakers: make(map[string]*Breaker),
	}
}

// OnStateChange registers an observer for state transitions of any breaker
// created afterwards. It runs under the breaker's lock and must not call
// back into it.
func (r *Registry) OnStateChange(fn func(key string, from, to State)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Get returns the breaker for key, creating it on first use. It returns nil
// when the registry configuration does not enable breaking.
func (r *Registry) Get(key string) *Breaker {
	if r == nil || !r.cfg.Enabled() {
		return nil
	}

	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	b = NewWithClock(r.cfg, r.clock)
	if fn := r.onChange; fn != nil {
		b.onChange = func(from, to State) { fn(key, from, to) }
	}
	r.breakers[key] = b
	return b
}

// Remove deletes the breaker for key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	delete(r.breakers, key)
	r.mu.Unlock()
}

// Snapshot returns the state of every breaker by key.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for key, b := range r.breakers {
		out[key] = b.State().String()
	}
	return out
}
