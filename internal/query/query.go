package query

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/oriys/vantage/internal/cache"
	"github.com/oriys/vantage/internal/metrics"
	"github.com/oriys/vantage/internal/scheduler"
)

// State is a point-in-time view of a query.
type State[T any] struct {
	Data      T
	HasData   bool
	Loading   bool
	Error     string // empty when the last fetch did not fail
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

// mode selects how a fetch trigger runs the core algorithm.
type mode struct {
	silent    bool // leave the loading flag alone
	skipFresh bool // go to the network even when the entry is fresh
}

// Query is one subscription to a cached resource.
type Query[T any] struct {
	id     string
	client *Client
	key    string
	fetch  fetchFunc
	opts   options

	mu        sync.Mutex
	data      T
	hasData   bool
	loading   bool
	err       error
	updatedAt time.Time
	enabled   bool
	started   bool
	closed    bool
	poll      scheduler.Handle

	revalidating atomic.Bool
}

// NewQuery creates a query for key. The query starts with whatever the
// store holds for key and does nothing until Start or an explicit Fetch.
func NewQuery[T any](client *Client, key string, fetch Fetcher[T], opts ...Option) *Query[T] {
	o := defaultOptions()
	for _, opt := range client.defaults {
		opt(&o)
	}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Query[T]{
		id:      uuid.New().String()[:8],
		client:  client,
		key:     key,
		opts:    o,
		enabled: o.enabled,
		fetch: func(ctx context.Context) (any, error) {
			return fetch(ctx)
		},
	}
	if v, e, ok := q.cached(); ok {
		q.data, q.hasData, q.updatedAt = v, true, e.StoredAt
	}
	return q
}

// ID returns the subscription id.
func (q *Query[T]) ID() string { return q.id }

// Key returns the cache key.
func (q *Query[T]) Key() string { return q.key }

// Start subscribes the query to client triggers. When enabled it fetches in
// the background and starts polling.
func (q *Query[T]) Start() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueryClosed
	}
	if q.started {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	if err := q.client.register(q.id, q); err != nil {
		return err
	}

	q.mu.Lock()
	q.started = true
	enabled := q.enabled
	q.mu.Unlock()

	if enabled {
		q.activate()
	}
	return nil
}

// Close tears the subscription down. Polling stops at once; a fetch still
// in flight may complete and populate the store, but no longer touches this
// query's state or callbacks.
func (q *Query[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	poll := q.poll
	q.poll = nil
	q.mu.Unlock()

	if poll != nil {
		poll.Stop()
	}
	q.client.unregister(q.id)
}

func (q *Query[T]) close() { q.Close() }

func (q *Query[T]) cacheKey() string { return q.key }

// Fetch runs the core algorithm: fresh entry, else join the request in
// flight, else a new fetch sequence.
func (q *Query[T]) Fetch(ctx context.Context) (T, error) {
	return q.execute(ctx, mode{})
}

// Refetch drops the entry and fetches from the network regardless of
// staleness. A request already in flight for the key is superseded: its
// response is not stored and does not reach this query.
func (q *Query[T]) Refetch(ctx context.Context) (T, error) {
	q.client.supersede(q.key)
	return q.execute(ctx, mode{skipFresh: true})
}

// Read returns the value to show right now. When the query is enabled and
// the entry is stale it also starts one silent background revalidation.
func (q *Query[T]) Read() (T, bool) {
	v, e, ok := q.cached()
	if !ok {
		q.mu.Lock()
		v, ok = q.data, q.hasData
		q.mu.Unlock()
	}

	if q.Enabled() {
		if q.isStale(e) {
			q.background(mode{silent: true})
		} else {
			metrics.Global().RecordHit(q.key)
		}
	}
	return v, ok
}

// Mutate writes v to the store, resetting its time-to-live, and makes it
// the query's data. It never touches the network and leaves the loading
// and error state of a fetch in flight alone.
func (q *Query[T]) Mutate(v T) {
	e := q.client.store.Set(q.key, v, q.opts.cacheTime)
	metrics.SetCacheEntries(q.client.store.Len())

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.data = v
	q.hasData = true
	q.updatedAt = e.StoredAt
}

// Revalidate is the focus trigger for this query alone: a silent fetch when
// the query refetches on focus, is enabled and is stale.
func (q *Query[T]) Revalidate() {
	q.focus()
}

func (q *Query[T]) focus() {
	q.mu.Lock()
	ok := !q.closed && q.enabled && q.opts.refetchOnFocus
	q.mu.Unlock()
	if ok && q.IsStale() {
		q.background(mode{silent: true})
	}
}

// invalidated runs when the client dropped this query's key. The request
// it starts must not be skipped even if another revalidation is running,
// since that one may be waiting on the invalidated response.
func (q *Query[T]) invalidated() {
	q.mu.Lock()
	ok := !q.closed && q.started && q.enabled
	q.mu.Unlock()
	if ok {
		q.client.spawn(func() {
			_, _ = q.execute(q.client.ctx, mode{silent: true})
		})
	}
}

// SetEnabled flips the enabled gate. Enabling a started query fetches and
// starts polling; disabling it stops polling.
func (q *Query[T]) SetEnabled(enabled bool) {
	q.mu.Lock()
	prev := q.enabled
	q.enabled = enabled
	live := q.started && !q.closed
	var poll scheduler.Handle
	if !enabled {
		poll, q.poll = q.poll, nil
	}
	q.mu.Unlock()

	if poll != nil {
		poll.Stop()
	}
	if live && enabled && !prev {
		q.activate()
	}
}

// Enabled reports the enabled gate.
func (q *Query[T]) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enabled
}

// IsStale reports whether the entry is missing or older than the stale time.
func (q *Query[T]) IsStale() bool {
	_, e, _ := q.cached()
	return q.isStale(e)
}

func (q *Query[T]) isStale(e *cache.Entry) bool {
	if e == nil {
		return true
	}
	// Ages are compared in whole milliseconds, so a fresh write with the
	// default stale time of zero is not stale the moment it lands.
	return q.client.sched.Since(e.StoredAt).Truncate(time.Millisecond) > q.opts.staleTime
}

// State returns a snapshot of the query.
func (q *Query[T]) State() State[T] {
	stale := q.IsStale()
	q.mu.Lock()
	defer q.mu.Unlock()
	return State[T]{
		Data:      q.data,
		HasData:   q.hasData,
		Loading:   q.loading,
		Error:     Message(q.err),
		Err:       q.err,
		Stale:     stale,
		UpdatedAt: q.updatedAt,
	}
}

// activate kicks off the initial fetch and polling of an enabled query.
func (q *Query[T]) activate() {
	q.mu.Lock()
	if !q.hasData {
		q.loading = true
	}
	if q.opts.refetchInterval > 0 && q.poll == nil {
		q.poll = q.client.sched.Every(q.opts.refetchInterval, q.tick)
	}
	q.mu.Unlock()

	if !q.client.spawn(func() {
		_, _ = q.execute(q.client.ctx, mode{})
	}) {
		q.mu.Lock()
		q.loading = false
		q.mu.Unlock()
	}
}

// tick is the polling trigger: a silent network revalidation that skips
// the freshness check but still joins a request in flight.
func (q *Query[T]) tick() {
	q.background(mode{silent: true, skipFresh: true})
}

// background runs a silent trigger unless one of this query's triggers is
// already running.
func (q *Query[T]) background(m mode) {
	if !q.revalidating.CompareAndSwap(false, true) {
		return
	}
	if !q.client.spawn(func() {
		defer q.revalidating.Store(false)
		_, _ = q.execute(q.client.ctx, m)
	}) {
		q.revalidating.Store(false)
	}
}

func (q *Query[T]) execute(ctx context.Context, m mode) (T, error) {
	var zero T
	if q.client.Closed() {
		return zero, ErrClientClosed
	}

	if !m.skipFresh {
		if v, e, ok := q.cached(); ok && !q.isStale(e) {
			metrics.Global().RecordHit(q.key)
			q.mu.Lock()
			if !q.closed {
				q.data, q.hasData, q.updatedAt = v, true, e.StoredAt
				q.loading = false
			}
			q.mu.Unlock()
			return v, nil
		}
	}
	metrics.Global().RecordMiss(q.key)

	q.mu.Lock()
	if !q.closed {
		if !m.silent && !q.hasData {
			q.loading = true
		}
		q.err = nil
	}
	q.mu.Unlock()

	return q.await(ctx, q.client.request(ctx, q.key, q.opts, q.fetch), false)
}

// await waits for the request on ch. A result from a superseded request is
// not applied: the query takes the newer entry when the store already has
// it and otherwise follows the request that now owns the key.
func (q *Query[T]) await(ctx context.Context, ch <-chan singleflight.Result, detached bool) (T, error) {
	var zero T
	for {
		select {
		case res := <-ch:
			if q.client.current(q.key, res) {
				return q.settle(res)
			}
			if v, _, ok := q.cached(); ok {
				q.succeed(v)
				return v, nil
			}
			ch = q.client.request(ctx, q.key, q.opts, q.fetch)
		case <-ctx.Done():
			if !detached {
				// The sequence carries on for the other callers; settle this
				// query's state when it ends.
				q.client.spawn(func() { _, _ = q.await(q.client.ctx, ch, true) })
			}
			return zero, ctx.Err()
		}
	}
}

func (q *Query[T]) settle(res singleflight.Result) (T, error) {
	var zero T
	if res.Shared {
		metrics.Global().RecordShared(q.key)
	}
	if res.Err != nil {
		q.fail(res.Err)
		return zero, res.Err
	}
	o, _ := res.Val.(outcome)
	v, ok := o.val.(T)
	if !ok {
		err := DecodeError(fmt.Errorf("value for key %q has type %T", q.key, o.val))
		q.fail(err)
		return zero, err
	}
	q.succeed(v)
	return v, nil
}

func (q *Query[T]) succeed(v T) {
	at := q.client.sched.Now()
	if e, ok := q.client.store.Get(q.key); ok {
		at = e.StoredAt
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.data = v
	q.hasData = true
	q.loading = false
	q.err = nil
	q.updatedAt = at
	cb := q.opts.onSuccess
	q.mu.Unlock()

	if cb != nil {
		cb(v)
	}
}

func (q *Query[T]) fail(err error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.err = err
	q.loading = false
	cb := q.opts.onError
	q.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// cached returns the stored value for the key when it has type T.
func (q *Query[T]) cached() (T, *cache.Entry, bool) {
	var zero T
	e, ok := q.client.store.Get(q.key)
	if !ok {
		return zero, nil, false
	}
	v, ok := e.Value.(T)
	if !ok {
		return zero, nil, false
	}
	return v, &e, true
}
