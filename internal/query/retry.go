package query

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Phase is the state of a fetch sequence.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// LinearBackOff waits Delay multiplied by the number of the attempt that
// just failed: Delay, 2*Delay, 3*Delay and so on.
type LinearBackOff struct {
	Delay time.Duration
	n     int
}

// NewLinearBackOff returns a linear policy starting at delay.
func NewLinearBackOff(delay time.Duration) *LinearBackOff {
	return &LinearBackOff{Delay: delay}
}

// NextBackOff implements backoff.BackOff.
func (b *LinearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.Delay * time.Duration(b.n)
}

// Reset implements backoff.BackOff.
func (b *LinearBackOff) Reset() { b.n = 0 }

// Sequence is the retry state machine of one fetch sequence:
//
//	Idle ──Begin──► Fetching(1) ──Fail, retry left──► Fetching(n+1)
//	                     │                                  │
//	                     ├──Succeed──► Succeeded            │
//	                     └──Fail, exhausted or fatal──► Failed
//
// It performs no I/O; the caller runs attempts and sleeps the returned delay.
type Sequence struct {
	retries int
	policy  backoff.BackOff
	phase   Phase
	attempt int
	last    error
}

// NewSequence creates a sequence allowing up to retries retries after the
// first attempt. A nil policy falls back to a one second linear backoff.
func NewSequence(retries int, policy backoff.BackOff) *Sequence {
	if retries < 0 {
		retries = 0
	}
	if policy == nil {
		policy = NewLinearBackOff(time.Second)
	}
	policy.Reset()
	return &Sequence{retries: retries, policy: policy}
}

// Begin starts the first attempt.
func (s *Sequence) Begin() {
	if s.phase != PhaseIdle {
		return
	}
	s.phase = PhaseFetching
	s.attempt = 1
}

// Succeed settles the sequence successfully.
func (s *Sequence) Succeed() {
	if s.phase == PhaseFetching {
		s.phase = PhaseSucceeded
		s.last = nil
	}
}

// Fail records a failed attempt. It returns the delay before the next
// attempt and true when the sequence moves on to another attempt, or false
// once it has settled as failed.
func (s *Sequence) Fail(err error) (time.Duration, bool) {
	if s.phase != PhaseFetching {
		return 0, false
	}
	s.last = err
	if !Retryable(err) || s.attempt > s.retries {
		s.phase = PhaseFailed
		return 0, false
	}
	delay := s.policy.NextBackOff()
	if delay == backoff.Stop {
		s.phase = PhaseFailed
		return 0, false
	}
	s.attempt++
	return delay, true
}

// Phase returns the current phase.
func (s *Sequence) Phase() Phase { return s.phase }

// Attempt returns the number of the current or last attempt, starting at 1.
func (s *Sequence) Attempt() int { return s.attempt }

// Err returns the failure of the last attempt.
func (s *Sequence) Err() error { return s.last }
