package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/vantage/internal/circuitbreaker"
)

func TestFetchDeduplicatesConcurrentCallers(t *testing.T) {
	c, _ := newTestClient(t)
	f := newGated("payload")

	const n = 5
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		q := NewQuery(c, "projects", f.fetch)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := q.Fetch(context.Background())
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	eventually(t, func() bool { return f.calls.Load() == 1 })
	close(f.release)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, v := range results {
		assert.Equal(t, "payload", v)
	}
}

func TestTwoMountsShareOneFetch(t *testing.T) {
	c, _ := newTestClient(t)
	f := newGated([]string{"alpha", "beta"})

	a := NewQuery(c, "projects", f.fetch)
	b := NewQuery(c, "projects", f.fetch)
	require.NoError(t, a.Start())
	require.NoError(t, b.Start())

	assert.True(t, a.State().Loading)
	assert.True(t, b.State().Loading)

	close(f.release)
	eventually(t, func() bool { return a.State().HasData && b.State().HasData })

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, a.State().Data, b.State().Data)
	assert.False(t, a.State().Loading)
}

func TestFreshEntryServedWithoutNetwork(t *testing.T) {
	c, _ := newTestClient(t)
	f := &counter[int]{value: 7}
	q := NewQuery(c, "stats", f.fetch, WithStaleTime(time.Minute))

	_, err := q.Fetch(context.Background())
	require.NoError(t, err)
	v, err := q.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, v)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestRefetchBypassesFreshEntry(t *testing.T) {
	c, _ := newTestClient(t)
	f := &counter[int]{value: 1}
	q := NewQuery(c, "stats", f.fetch, WithStaleTime(time.Hour))

	_, err := q.Fetch(context.Background())
	require.NoError(t, err)
	require.False(t, q.IsStale())

	_, err = q.Refetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestRetryThenSuccess(t *testing.T) {
	c, clock := newTestClient(t)

	var mu sync.Mutex
	var at []time.Time
	fetch := func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		at = append(at, clock.Now())
		if len(at) < 3 {
			return "", TransportError(errors.New("connection reset"))
		}
		return "ok", nil
	}

	var successes, failures atomic.Int32
	q := NewQuery(c, "stats", fetch,
		WithRetry(3, time.Second),
		WithAttemptTimeout(0),
		OnSuccess(func(string) { successes.Add(1) }),
		OnError(func(error) { failures.Add(1) }),
	)

	done := make(chan error, 1)
	go func() {
		_, err := q.Fetch(context.Background())
		done <- err
	}()
	advanceUntil(t, clock, func() bool { return len(done) == 1 })
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, at, 3)
	first, second := at[1].Sub(at[0]), at[2].Sub(at[1])
	assert.Equal(t, time.Second, first)
	assert.Equal(t, 2*first, second)

	st := q.State()
	assert.Equal(t, "ok", st.Data)
	assert.Empty(t, st.Error)
	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(0), failures.Load())
}

func TestRetriesExhausted(t *testing.T) {
	c, clock := newTestClient(t)

	var calls atomic.Int32
	fetch := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "before", nil
		}
		return "", StatusError(503)
	}

	var failures atomic.Int32
	q := NewQuery(c, "stats", fetch,
		WithRetry(3, time.Second),
		WithAttemptTimeout(0),
		OnError(func(error) { failures.Add(1) }),
	)
	_, err := q.Fetch(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := q.Refetch(context.Background())
		done <- err
	}()
	advanceUntil(t, clock, func() bool { return len(done) == 1 })

	err = <-done
	require.Error(t, err)
	assert.Equal(t, KindServer, KindOf(err))
	assert.Equal(t, int32(1+4), calls.Load(), "first fetch plus retryCount+1 attempts")

	st := q.State()
	assert.Equal(t, "before", st.Data)
	assert.Equal(t, "HTTP 503: Service Unavailable", st.Error)
	assert.False(t, st.Loading)
	assert.Equal(t, int32(1), failures.Load())
}

func TestClientErrorIsNotRetried(t *testing.T) {
	c, _ := newTestClient(t)

	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, StatusError(404)
	}
	q := NewQuery(c, "project-9", fetch)

	_, err := q.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "HTTP 404: Not Found", q.State().Error)
}

func TestAttemptTimeout(t *testing.T) {
	c, clock := newTestClient(t)

	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		<-release // ignores ctx, like a slow backend that cannot be aborted
		return "late", nil
	}
	q := NewQuery(c, "summary", fetch, WithRetry(0, time.Second))

	done := make(chan error, 1)
	go func() {
		_, err := q.Fetch(context.Background())
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(DefaultAttemptTimeout)

	err := <-done
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Equal(t, "request timeout", q.State().Error)

	close(release)
	time.Sleep(20 * time.Millisecond)
	_, ok := c.Store().Get("summary")
	assert.False(t, ok, "abandoned attempt must not write the store")
}

func TestMutateIsSynchronousAndLocal(t *testing.T) {
	c, _ := newTestClient(t)
	f := &counter[string]{value: "remote"}
	q := NewQuery(c, "stats", f.fetch)

	q.Mutate("local")

	st := q.State()
	assert.Equal(t, "local", st.Data)
	assert.False(t, q.IsStale())
	assert.False(t, st.Stale)
	assert.Equal(t, int32(0), f.calls.Load())

	e, ok := c.Store().Get("stats")
	require.True(t, ok)
	assert.Equal(t, "local", e.Value)
}

func TestMutateIsFreshOnRealClock(t *testing.T) {
	c := NewClient()
	t.Cleanup(c.Shutdown)
	f := &counter[int]{value: 1}
	q := NewQuery(c, "stats", f.fetch)

	q.Mutate(42)

	assert.False(t, q.IsStale(), "a value written just now is fresh even with a zero stale time")
	v, ok := q.Read()
	require.True(t, ok)
	assert.Equal(t, 42, v)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), f.calls.Load(), "a fresh read does not revalidate")
}

func TestMutateKeepsFetchFlags(t *testing.T) {
	c, _ := newTestClient(t)
	f := newGated("remote")
	q := NewQuery(c, "stats", f.fetch)
	require.NoError(t, q.Start())
	eventually(t, func() bool { return f.calls.Load() == 1 })

	q.Mutate("local")
	assert.True(t, q.State().Loading, "loading belongs to the fetch in flight")

	close(f.release)
	eventually(t, func() bool { return !q.State().Loading })
	assert.Equal(t, "remote", q.State().Data)
}

func TestReadServesStaleWhileRevalidating(t *testing.T) {
	c, clock := newTestClient(t)

	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
	q := NewQuery(c, "stats", fetch, WithStaleTime(5000*time.Millisecond))

	_, err := q.Fetch(context.Background())
	require.NoError(t, err)

	clock.Advance(4999 * time.Millisecond)
	v, ok := q.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "fresh read must not hit the network")

	clock.Advance(2 * time.Millisecond)
	v, ok = q.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v, "stale value is returned first")
	q.Read()

	eventually(t, func() bool { return q.State().Data == 2 })
	assert.False(t, q.State().Loading)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEntryEvictedAfterCacheTime(t *testing.T) {
	c, clock := newTestClient(t)
	f := &counter[string]{value: "v"}
	q := NewQuery(c, "stats", f.fetch, WithCacheTime(10000*time.Millisecond))

	_, err := q.Fetch(context.Background())
	require.NoError(t, err)

	clock.Advance(10001 * time.Millisecond)
	eventually(t, func() bool {
		_, ok := c.Store().Get("stats")
		return !ok
	})
}

func TestFocusRevalidatesOnlyWhenStale(t *testing.T) {
	c, clock := newTestClient(t)
	f := &counter[int]{value: 1}
	q := NewQuery(c, "stats", f.fetch, WithStaleTime(time.Minute))

	require.NoError(t, q.Start())
	eventually(t, func() bool { return q.State().HasData })

	c.Revalidate()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())

	clock.Advance(2 * time.Minute)
	c.Revalidate()
	assert.False(t, q.State().Loading, "focus refetch is silent")
	eventually(t, func() bool { return f.calls.Load() == 2 })
}

func TestFocusDuringFetchJoins(t *testing.T) {
	c, _ := newTestClient(t)
	f := newGated(1)
	q := NewQuery(c, "stats", f.fetch)
	require.NoError(t, q.Start())
	eventually(t, func() bool { return f.calls.Load() == 1 })

	c.Revalidate()
	q.Revalidate()
	time.Sleep(10 * time.Millisecond)

	close(f.release)
	eventually(t, func() bool { return q.State().HasData })
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestFocusIgnoresDisabledOrOptedOut(t *testing.T) {
	c, clock := newTestClient(t)
	f := &counter[int]{value: 1}
	q := NewQuery(c, "stats", f.fetch, WithRefetchOnWindowFocus(false))
	require.NoError(t, q.Start())
	eventually(t, func() bool { return q.State().HasData })

	clock.Advance(time.Hour)
	c.Revalidate()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestPollingForcesRevalidation(t *testing.T) {
	c, clock := newTestClient(t)
	f := &counter[int]{value: 1}
	q := NewQuery(c, "health", f.fetch,
		WithStaleTime(time.Hour),
		WithRefetchInterval(30*time.Second),
	)
	require.NoError(t, q.Start())
	eventually(t, func() bool { return f.calls.Load() == 1 })

	clock.Advance(30 * time.Second)
	eventually(t, func() bool { return f.calls.Load() == 2 }, "poll ignores freshness")

	clock.Advance(30 * time.Second)
	eventually(t, func() bool { return f.calls.Load() == 3 })

	q.Close()
	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(3), f.calls.Load(), "closed query stops polling")
}

func TestCloseDropsLateResultButFillsCache(t *testing.T) {
	c, _ := newTestClient(t)
	f := newGated("late")

	var successes atomic.Int32
	q := NewQuery(c, "projects", f.fetch, OnSuccess(func(string) { successes.Add(1) }))
	require.NoError(t, q.Start())
	eventually(t, func() bool { return f.calls.Load() == 1 })

	q.Close()
	close(f.release)

	eventually(t, func() bool {
		_, ok := c.Store().Get("projects")
		return ok
	})
	time.Sleep(10 * time.Millisecond)
	assert.False(t, q.State().HasData)
	assert.Equal(t, int32(0), successes.Load())
	assert.ErrorIs(t, q.Start(), ErrQueryClosed)
}

func TestDisabledQueryWaitsForEnable(t *testing.T) {
	c, clock := newTestClient(t)
	f := &counter[int]{value: 3}
	q := NewQuery(c, "project-0", f.fetch, WithEnabled(false))

	require.NoError(t, q.Start())
	clock.Advance(time.Hour)
	q.Read()
	c.Revalidate()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.False(t, q.State().Loading)

	q.SetEnabled(true)
	eventually(t, func() bool { return q.State().Data == 3 })
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestInitialDataComesFromCache(t *testing.T) {
	c, _ := newTestClient(t)
	c.Store().Set("stats", 99, time.Minute)

	q := NewQuery(c, "stats", (&counter[int]{}).fetch)
	st := q.State()
	assert.True(t, st.HasData)
	assert.Equal(t, 99, st.Data)
}

func TestInvalidateRevalidatesLiveQueries(t *testing.T) {
	c, _ := newTestClient(t)
	f := &counter[int]{value: 1}
	q := NewQuery(c, "projects", f.fetch, WithStaleTime(time.Hour))
	require.NoError(t, q.Start())
	eventually(t, func() bool { return q.State().HasData })

	c.Invalidate("projects", "unrelated")
	eventually(t, func() bool { return f.calls.Load() == 2 })
	eventually(t, func() bool {
		_, ok := c.Store().Get("projects")
		return ok
	})
}

// versioned answers "old" on its first call, blocking until release is
// closed, and "new" on every later call.
type versioned struct {
	calls   atomic.Int32
	release chan struct{}
}

func (f *versioned) fetch(ctx context.Context) (string, error) {
	if f.calls.Add(1) == 1 {
		<-f.release
		return "old", nil
	}
	return "new", nil
}

func TestRefetchSupersedesSlowerFetch(t *testing.T) {
	c, _ := newTestClient(t)
	f := &versioned{release: make(chan struct{})}
	q := NewQuery(c, "projects", f.fetch, WithStaleTime(time.Hour))

	slow := make(chan string, 1)
	go func() {
		v, _ := q.Fetch(context.Background())
		slow <- v
	}()
	eventually(t, func() bool { return f.calls.Load() == 1 })

	v, err := q.Refetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", v)

	close(f.release)
	select {
	case v := <-slow:
		assert.Equal(t, "new", v, "the superseded caller picks up the newer entry")
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch never returned")
	}

	e, ok := c.Store().Get("projects")
	require.True(t, ok)
	assert.Equal(t, "new", e.Value)
	assert.Equal(t, "new", q.State().Data)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestInvalidateDiscardsInFlightResult(t *testing.T) {
	c, _ := newTestClient(t)
	f := &versioned{release: make(chan struct{})}
	q := NewQuery(c, "projects", f.fetch, WithStaleTime(time.Hour))
	require.NoError(t, q.Start())
	eventually(t, func() bool { return f.calls.Load() == 1 })

	c.Invalidate("projects")
	eventually(t, func() bool { return q.State().Data == "new" })

	close(f.release)
	time.Sleep(20 * time.Millisecond)

	e, ok := c.Store().Get("projects")
	require.True(t, ok)
	assert.Equal(t, "new", e.Value)
	st := q.State()
	assert.Equal(t, "new", st.Data)
	assert.False(t, st.Loading)
	assert.NoError(t, st.Err)
}

func TestCircuitBreakerStopsRetries(t *testing.T) {
	c, clock := newTestClient(t, WithBreaker(circuitbreaker.Config{
		ErrorPct:       50,
		WindowDuration: time.Minute,
		OpenDuration:   time.Minute,
	}))

	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, StatusError(500)
	}
	q := NewQuery(c, "stats", fetch, WithAttemptTimeout(0))

	done := make(chan error, 1)
	go func() {
		_, err := q.Fetch(context.Background())
		done <- err
	}()
	advanceUntil(t, clock, func() bool { return len(done) == 1 })

	err := <-done
	assert.Equal(t, KindCircuitOpen, KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, map[string]string{"stats": "open"}, c.Breakers().Snapshot())
}

func TestShutdownCancelsEverything(t *testing.T) {
	clock := newFakeClock()
	c := NewClient(WithClock(clock))

	q := NewQuery(c, "health", (&counter[int]{value: 1}).fetch, WithRefetchInterval(time.Second))
	require.NoError(t, q.Start())
	eventually(t, func() bool { return q.State().HasData })
	require.NotZero(t, c.Scheduler().Pending())

	c.Shutdown()
	c.Shutdown()

	assert.Zero(t, c.Scheduler().Pending())
	assert.Zero(t, c.Store().Len())
	assert.True(t, c.Closed())

	_, err := q.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
	assert.ErrorIs(t, NewQuery(c, "x", (&counter[int]{}).fetch).Start(), ErrClientClosed)
}

func TestShutdownAbortsRetrySleep(t *testing.T) {
	clock := newFakeClock()
	c := NewClient(WithClock(clock))

	fetch := func(ctx context.Context) (int, error) {
		return 0, TransportError(errors.New("refused"))
	}
	q := NewQuery(c, "stats", fetch, WithAttemptTimeout(0))

	done := make(chan error, 1)
	go func() {
		_, err := q.Fetch(context.Background())
		done <- err
	}()
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))

	c.Shutdown()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClientClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch still sleeping after shutdown")
	}
}

func TestCallerCancellationLeavesSequenceRunning(t *testing.T) {
	c, _ := newTestClient(t)
	f := newGated("v")
	q := NewQuery(c, "stats", f.fetch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Fetch(ctx)
		done <- err
	}()
	eventually(t, func() bool { return f.calls.Load() == 1 })
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(f.release)
	eventually(t, func() bool { return q.State().Data == "v" })
	assert.False(t, q.State().Loading)
}

func TestClientDefaultsApply(t *testing.T) {
	c, _ := newTestClient(t, WithDefaults(WithStaleTime(time.Hour), WithRetry(0, 0)))

	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, TransportError(errors.New("down"))
	}
	q := NewQuery(c, "stats", fetch)
	_, err := q.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "client default disables retries")
}
