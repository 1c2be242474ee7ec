package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/vantage/internal/scheduler"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	sched := scheduler.New(clock)
	t.Cleanup(sched.Stop)
	return NewStore(sched), clock
}

func TestKey(t *testing.T) {
	assert.Equal(t, "stats", Key("stats"))
	assert.Equal(t, "project-7", Key("project", 7))
	assert.Equal(t, "a-b-true", Key("a", "b", true))
	assert.Equal(t, "", Key())
}

func TestStore_SetAndGet(t *testing.T) {
	s, _ := newTestStore(t)

	_, ok := s.Get("stats")
	assert.False(t, ok)

	s.Set("stats", 42, time.Minute)
	e, ok := s.Get("stats")
	require.True(t, ok)
	assert.Equal(t, 42, e.Value)
	assert.Equal(t, "stats", e.Key)
	assert.Equal(t, epoch, e.StoredAt)
}

func TestStore_EvictsAfterTTL(t *testing.T) {
	s, clock := newTestStore(t)
	s.Set("stats", "v", 10*time.Second)

	clock.Advance(10*time.Second - time.Millisecond)
	_, ok := s.Get("stats")
	assert.True(t, ok, "entry must survive until its ttl")

	clock.Advance(2 * time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := s.Get("stats")
		return !ok
	}, time.Second, time.Millisecond)
}

func TestStore_OverwriteCancelsPriorEviction(t *testing.T) {
	s, clock := newTestStore(t)
	s.Set("projects", "old", 10*time.Second)

	clock.Advance(6 * time.Second)
	s.Set("projects", "new", 10*time.Second)

	// The first timer would have fired here.
	clock.Advance(5 * time.Second)
	time.Sleep(10 * time.Millisecond)

	e, ok := s.Get("projects")
	require.True(t, ok)
	assert.Equal(t, "new", e.Value)
	assert.Equal(t, epoch.Add(6*time.Second), e.StoredAt)
}

func TestStore_StaleTimerIgnoresReplacedEntry(t *testing.T) {
	s, _ := newTestStore(t)
	s.Set("k", "first", 0)

	s.mu.Lock()
	stale := s.entries["k"]
	s.mu.Unlock()

	s.Set("k", "second", 0)
	s.expire("k", stale)

	e, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second", e.Value)
}

func TestStore_ZeroTTLNeverExpires(t *testing.T) {
	s, clock := newTestStore(t)
	s.Set("health", "ok", 0)
	clock.Advance(24 * time.Hour)
	_, ok := s.Get("health")
	assert.True(t, ok)
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(t)
	sched := s.sched

	s.Set("k", 1, time.Minute)
	require.Equal(t, 1, sched.Pending())

	assert.True(t, s.Delete("k"))
	assert.Equal(t, 0, sched.Pending(), "delete cancels the eviction timer")
	assert.False(t, s.Delete("k"), "deleting an absent key is a no-op")
}

func TestStore_ClearCancelsAllTimers(t *testing.T) {
	s, _ := newTestStore(t)
	s.Set("a", 1, time.Minute)
	s.Set("b", 2, time.Hour)
	s.Set("c", 3, 0)
	require.Equal(t, 2, s.sched.Pending())

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.sched.Pending())
}

func TestStore_OnEvictReasons(t *testing.T) {
	s, clock := newTestStore(t)

	var mu sync.Mutex
	got := map[string]string{}
	s.OnEvict(func(key, reason string) {
		mu.Lock()
		got[key] = reason
		mu.Unlock()
	})

	s.Set("expiring", 1, time.Second)
	s.Set("deleted", 2, time.Minute)
	s.Set("cleared", 3, time.Minute)

	s.Delete("deleted")
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got["expiring"] == ReasonExpired
	}, time.Second, time.Millisecond)
	s.Clear()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, ReasonInvalidated, got["deleted"])
	assert.Equal(t, ReasonCleared, got["cleared"])
}

func TestStore_Keys(t *testing.T) {
	s, _ := newTestStore(t)
	s.Set("tasks", 1, 0)
	s.Set("projects", 1, 0)
	s.Set("stats", 1, 0)
	assert.Equal(t, []string{"projects", "stats", "tasks"}, s.Keys())
}
