package query

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/oriys/vantage/internal/logging"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	logging.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func newTestClient(t *testing.T, opts ...ClientOption) (*Client, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	c := NewClient(append([]ClientOption{WithClock(clock)}, opts...)...)
	t.Cleanup(c.Shutdown)
	return c, clock
}

// counter is a fetcher returning a fixed value and counting calls.
type counter[T any] struct {
	calls atomic.Int32
	value T
}

func (f *counter[T]) fetch(ctx context.Context) (T, error) {
	f.calls.Add(1)
	return f.value, nil
}

// gated blocks every call until release is closed.
type gated[T any] struct {
	calls   atomic.Int32
	value   T
	release chan struct{}
}

func newGated[T any](v T) *gated[T] {
	return &gated[T]{value: v, release: make(chan struct{})}
}

func (f *gated[T]) fetch(ctx context.Context) (T, error) {
	f.calls.Add(1)
	<-f.release
	return f.value, nil
}

// advanceUntil steps the fake clock in 100ms increments until cond holds.
// The clock only moves while some timer is pending, so time never passes
// while a fetch is running.
func advanceUntil(t *testing.T, clock *clockwork.FakeClock, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		require.True(t, time.Now().Before(deadline), "condition not reached")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		err := clock.BlockUntilContext(ctx, 1)
		cancel()
		if err == nil {
			clock.Advance(100 * time.Millisecond)
		}
	}
}

func eventually(t *testing.T, cond func() bool, msgAndArgs ...interface{}) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msgAndArgs...)
}

func newFakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(epoch)
}
