package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/oriys/vantage/internal/scheduler"
)

// Store is the process-wide entry store shared by every query of a client.
// It keeps at most one live entry per key. Each entry owns its eviction
// timer; overwriting or deleting the key cancels it first.
type Store struct {
	sched *scheduler.Scheduler

	mu        sync.Mutex
	entries   map[string]*record
	observers []func(key, reason string)
}

type record struct {
	entry Entry
	evict scheduler.Handle
}

// NewStore creates an empty store whose expiry timers run on sched.
func NewStore(sched *scheduler.Scheduler) *Store {
	if sched == nil {
		sched = scheduler.New(nil)
	}
	return &Store{
		sched:   sched,
		entries: make(map[string]*record),
	}
}

// OnEvict registers an observer called after an entry leaves the store.
// Observers run outside the store lock.
func (s *Store) OnEvict(fn func(key, reason string)) {
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Get returns the entry for key. It has no side effects.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return rec.entry, true
}

// Set stores value under key, stamped with the current scheduler time.
// A positive ttl schedules removal; ttl <= 0 keeps the entry until it is
// deleted or cleared.
func (s *Store) Set(key string, value any, ttl time.Duration) Entry {
	rec := &record{entry: Entry{Key: key, Value: value, StoredAt: s.sched.Now()}}

	s.mu.Lock()
	if prev, ok := s.entries[key]; ok && prev.evict != nil {
		prev.evict.Stop()
	}
	s.entries[key] = rec
	if ttl > 0 {
		rec.evict = s.sched.After(ttl, func() { s.expire(key, rec) })
	}
	s.mu.Unlock()

	return rec.entry
}

// expire removes key only if rec is still the live entry. A timer that lost
// the race against a later Set finds a different record and does nothing.
func (s *Store) expire(key string, rec *record) {
	s.mu.Lock()
	if cur, ok := s.entries[key]; !ok || cur != rec {
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	observers := s.observers
	s.mu.Unlock()

	notify(observers, key, ReasonExpired)
}

// Delete cancels the eviction timer for key and removes the entry. It
// reports whether an entry was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	rec, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if rec.evict != nil {
		rec.evict.Stop()
	}
	delete(s.entries, key)
	observers := s.observers
	s.mu.Unlock()

	notify(observers, key, ReasonInvalidated)
	return true
}

// Clear cancels every outstanding eviction timer and empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for key, rec := range s.entries {
		if rec.evict != nil {
			rec.evict.Stop()
		}
		keys = append(keys, key)
	}
	s.entries = make(map[string]*record)
	observers := s.observers
	s.mu.Unlock()

	for _, key := range keys {
		notify(observers, key, ReasonCleared)
	}
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Keys returns the live keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	s.mu.Unlock()
	sort.Strings(keys)
	return keys
}

func notify(observers []func(key, reason string), key, reason string) {
	for _, fn := range observers {
		fn(key, reason)
	}
}
