package query

import (
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = TransportError(errors.New("connection reset"))

func TestLinearBackOff(t *testing.T) {
	b := NewLinearBackOff(time.Second)
	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 3*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(t, time.Second, b.NextBackOff())
}

func TestSequenceRetriesThenExhausts(t *testing.T) {
	s := NewSequence(3, NewLinearBackOff(time.Second))
	assert.Equal(t, PhaseIdle, s.Phase())

	s.Begin()
	require.Equal(t, PhaseFetching, s.Phase())
	require.Equal(t, 1, s.Attempt())

	var delays []time.Duration
	for {
		d, retry := s.Fail(errFlaky)
		if !retry {
			break
		}
		delays = append(delays, d)
	}

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, delays)
	assert.Equal(t, 4, s.Attempt(), "retryCount+1 attempts")
	assert.Equal(t, PhaseFailed, s.Phase())
	assert.Equal(t, errFlaky, s.Err())
}

func TestSequenceSucceedsAfterRetry(t *testing.T) {
	s := NewSequence(3, nil)
	s.Begin()
	_, retry := s.Fail(errFlaky)
	require.True(t, retry)
	s.Succeed()

	assert.Equal(t, PhaseSucceeded, s.Phase())
	assert.Equal(t, 2, s.Attempt())
	assert.NoError(t, s.Err())

	_, retry = s.Fail(errFlaky)
	assert.False(t, retry, "settled sequences ignore further outcomes")
	assert.Equal(t, PhaseSucceeded, s.Phase())
}

func TestSequenceFatalErrorSurfacesImmediately(t *testing.T) {
	s := NewSequence(3, nil)
	s.Begin()
	_, retry := s.Fail(StatusError(400))
	assert.False(t, retry)
	assert.Equal(t, PhaseFailed, s.Phase())
	assert.Equal(t, 1, s.Attempt())
}

func TestSequenceHonoursBackOffStop(t *testing.T) {
	s := NewSequence(5, &backoff.StopBackOff{})
	s.Begin()
	_, retry := s.Fail(errFlaky)
	assert.False(t, retry)
	assert.Equal(t, PhaseFailed, s.Phase())
}

func TestSequenceZeroRetries(t *testing.T) {
	s := NewSequence(-1, nil)
	s.Begin()
	_, retry := s.Fail(errFlaky)
	assert.False(t, retry)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "fetching", PhaseFetching.String())
	assert.Equal(t, "succeeded", PhaseSucceeded.String())
	assert.Equal(t, "failed", PhaseFailed.String())
}
