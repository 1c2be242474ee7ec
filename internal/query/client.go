// Package query implements the stale-while-revalidate coordinator that sits
// between dashboard consumers and the API.
//
// A Client is the cache service: it owns the entry store, the registry of
// in-flight fetches (at most one per key) and the set of live queries. A
// Query is one subscription to a key. It serves cached data while fresh,
// joins a fetch already in flight for its key, and otherwise runs a fetch
// sequence with per-attempt timeouts and linear retry backoff. Focus,
// polling and invalidation triggers revalidate silently, without raising
// the loading flag.
package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/oriys/vantage/internal/cache"
	"github.com/oriys/vantage/internal/circuitbreaker"
	"github.com/oriys/vantage/internal/logging"
	"github.com/oriys/vantage/internal/metrics"
	"github.com/oriys/vantage/internal/observability"
	"github.com/oriys/vantage/internal/scheduler"
)

// Fetcher loads the current value of a resource.
type Fetcher[T any] func(ctx context.Context) (T, error)

type fetchFunc func(ctx context.Context) (any, error)

// subscriber is the client's view of a live query.
type subscriber interface {
	cacheKey() string
	focus()
	invalidated()
	close()
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	clock    clockwork.Clock
	sched    *scheduler.Scheduler
	breaker  *circuitbreaker.Config
	defaults []Option
}

// WithClock runs the client's timers on clock. Ignored when WithScheduler
// is also given.
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *clientConfig) { c.clock = clock }
}

// WithScheduler runs the client's timers on an existing scheduler. Shutdown
// stops it.
func WithScheduler(s *scheduler.Scheduler) ClientOption {
	return func(c *clientConfig) { c.sched = s }
}

// WithBreaker guards every key with its own circuit breaker.
func WithBreaker(cfg circuitbreaker.Config) ClientOption {
	return func(c *clientConfig) { c.breaker = &cfg }
}

// WithDefaults sets options applied to every query of the client before the
// query's own options.
func WithDefaults(opts ...Option) ClientOption {
	return func(c *clientConfig) { c.defaults = append(c.defaults, opts...) }
}

// Client is the cache service shared by a set of queries.
type Client struct {
	sched    *scheduler.Scheduler
	store    *cache.Store
	inflight singleflight.Group
	breakers *circuitbreaker.Registry
	defaults []Option
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup // background triggers
	seqs   sync.WaitGroup // running fetch sequences

	mu     sync.Mutex
	subs   map[string]subscriber
	gens   map[string]uint64 // bumped each time a key's request is superseded
	closed bool
}

// outcome is what a fetch sequence hands to the callers sharing it. gen is
// the key's generation when the sequence started.
type outcome struct {
	val any
	gen uint64
}

// NewClient creates a cache service.
func NewClient(opts ...ClientOption) *Client {
	var cfg clientConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	sched := cfg.sched
	if sched == nil {
		sched = scheduler.New(cfg.clock)
	}

	c := &Client{
		sched:    sched,
		store:    cache.NewStore(sched),
		defaults: cfg.defaults,
		log:      logging.Component("query"),
		subs:     make(map[string]subscriber),
		gens:     make(map[string]uint64),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.store.OnEvict(func(key, reason string) {
		metrics.Global().RecordEviction(reason)
		metrics.SetCacheEntries(c.store.Len())
	})

	if cfg.breaker != nil && cfg.breaker.Enabled() {
		c.breakers = circuitbreaker.NewRegistry(*cfg.breaker, sched.Clock())
		c.breakers.OnStateChange(func(key string, from, to circuitbreaker.State) {
			metrics.SetCircuitBreakerState(key, int(to))
			metrics.RecordCircuitBreakerTrip(key, to.String())
			c.log.Warn().
				Str("key", key).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		})
	}
	return c
}

// Store returns the entry store.
func (c *Client) Store() *cache.Store { return c.store }

// Scheduler returns the scheduler driving the client's timers.
func (c *Client) Scheduler() *scheduler.Scheduler { return c.sched }

// Breakers returns the circuit breaker registry, or nil when breaking is off.
func (c *Client) Breakers() *circuitbreaker.Registry { return c.breakers }

// Revalidate is the host's "focus regained" signal. Every live query that
// refetches on focus, is enabled and is stale revalidates silently. A query
// whose key is already being fetched joins that fetch.
func (c *Client) Revalidate() {
	for _, s := range c.subscribers() {
		s.focus()
	}
}

// Invalidate drops the entries for keys. Live queries reading them
// revalidate silently, starting a fresh request even if one was in flight.
func (c *Client) Invalidate(keys ...string) {
	if len(keys) == 0 {
		return
	}
	drop := make(map[string]bool, len(keys))
	for _, key := range keys {
		c.supersede(key)
		drop[key] = true
	}
	for _, s := range c.subscribers() {
		if drop[s.cacheKey()] {
			s.invalidated()
		}
	}
}

// Shutdown stops every query, cancels outstanding timers and fetch
// sequences, waits for them to wind down and empties the store.
func (c *Client) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := make([]subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	c.cancel()
	c.sched.Stop()
	c.bg.Wait()
	c.seqs.Wait()
	c.store.Clear()
	c.log.Debug().Int("queries", len(subs)).Msg("query client shut down")
}

// Closed reports whether Shutdown has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) register(id string, s subscriber) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if _, ok := c.subs[id]; ok {
		return nil
	}
	c.subs[id] = s
	metrics.IncActiveQueries()
	return nil
}

func (c *Client) unregister(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[id]; ok {
		delete(c.subs, id)
		metrics.DecActiveQueries()
	}
}

func (c *Client) subscribers() []subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	return out
}

// spawn runs fn in a goroutine tracked by Shutdown. It reports false once
// the client is closed.
func (c *Client) spawn(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn()
	}()
	return true
}

// enter admits a new fetch sequence unless the client is closed.
func (c *Client) enter() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.seqs.Add(1)
	return true
}

// supersede takes the in-flight slot for key away from whatever request
// holds it and drops the entry. The superseded request keeps running for
// its callers but can no longer write to the store.
func (c *Client) supersede(key string) {
	c.mu.Lock()
	c.gens[key]++
	c.inflight.Forget(key)
	c.mu.Unlock()
	c.store.Delete(key)
}

// current reports whether res comes from a request that still owns the
// key, i.e. one that was not superseded while it ran.
func (c *Client) current(key string, res singleflight.Result) bool {
	o, _ := res.Val.(outcome)
	c.mu.Lock()
	defer c.mu.Unlock()
	return o.gen == c.gens[key]
}

// commit writes v to the store unless the request of generation gen has
// been superseded.
func (c *Client) commit(key string, gen uint64, v any, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return false
	}
	c.store.Set(key, v, ttl)
	return true
}

// request joins the in-flight fetch for key or starts a new fetch sequence.
func (c *Client) request(ctx context.Context, key string, o options, fetch fetchFunc) <-chan singleflight.Result {
	// The sequence is shared by every caller that joins it, so one caller
	// giving up must not cancel it. Trace values are kept.
	seqCtx := context.WithoutCancel(ctx)

	// Reading the generation and claiming the slot happen together so a
	// concurrent supersede cannot slip in between.
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[key]
	return c.inflight.DoChan(key, func() (any, error) {
		if !c.enter() {
			return outcome{gen: gen}, ErrClientClosed
		}
		defer c.seqs.Done()
		v, err := c.sequence(seqCtx, key, gen, o, fetch)
		return outcome{val: v, gen: gen}, err
	})
}

// sequence drives one fetch sequence through the retry state machine. On
// success the value is written to the store before the in-flight slot is
// released, unless the sequence has been superseded in the meantime.
func (c *Client) sequence(ctx context.Context, key string, gen uint64, o options, fetch fetchFunc) (any, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	ctx, span := observability.StartSpan(ctx, "query.fetch",
		observability.AttrCacheKey.String(key),
		observability.AttrResource.String(metrics.Resource(key)),
	)
	defer span.End()

	start := c.sched.Now()
	seq := NewSequence(o.retries, o.backOff())
	seq.Begin()

	for {
		metrics.Global().RecordAttempt(key)
		v, err := c.attempt(ctx, key, o.attemptTimeout, fetch)
		if err == nil {
			seq.Succeed()
			if c.commit(key, gen, v, o.cacheTime) {
				metrics.SetCacheEntries(c.store.Len())
			} else {
				c.log.Debug().Str("key", key).Msg("superseded fetch result discarded")
			}
			c.settle(ctx, key, seq, start, nil)
			observability.SetSpanOK(span)
			return v, nil
		}

		delay, retry := seq.Fail(err)
		if !retry {
			if c.ctx.Err() != nil {
				err = ErrClientClosed
			}
			c.settle(ctx, key, seq, start, err)
			span.SetAttributes(observability.AttrErrorKind.String(KindOf(err).String()))
			observability.SetSpanError(span, err)
			return nil, err
		}

		metrics.Global().RecordRetry(key, KindOf(err).String())
		logging.WithTrace(ctx).Debug().
			Str("key", key).
			Int("attempt", seq.Attempt()-1).
			Dur("delay", delay).
			Err(err).
			Msg("fetch attempt failed, retrying")

		if err := c.sched.Sleep(ctx, delay); err != nil {
			err = ErrClientClosed
			c.settle(ctx, key, seq, start, err)
			observability.SetSpanError(span, err)
			return nil, err
		}
	}
}

func (c *Client) settle(ctx context.Context, key string, seq *Sequence, start time.Time, err error) {
	durationMs := c.sched.Since(start).Milliseconds()
	metrics.Global().RecordFetch(key, durationMs, err == nil)
	observability.SpanFromContext(ctx).SetAttributes(
		observability.AttrAttempts.Int(seq.Attempt()),
		observability.AttrDurationMs.Int64(durationMs),
	)

	entry := &logging.FetchLog{
		Key:        key,
		TraceID:    observability.GetTraceID(ctx),
		DurationMs: durationMs,
		Attempts:   seq.Attempt(),
		Success:    err == nil,
	}
	if err != nil {
		entry.Error = Message(err)
		if !errors.Is(err, ErrClientClosed) {
			logging.WithTrace(ctx).Warn().
				Str("key", key).
				Int("attempts", seq.Attempt()).
				Str("kind", KindOf(err).String()).
				Err(err).
				Msg("fetch failed")
		}
	}
	logging.Fetches().Log(entry)
}

var errAttemptTimeout = errors.New("attempt timed out")

type attemptResult struct {
	value any
	err   error
}

// attempt runs fetch once, bounded by timeout on the scheduler clock. When
// the bound expires the attempt is abandoned: fetch keeps running with a
// cancelled context and whatever it returns later is dropped.
func (c *Client) attempt(ctx context.Context, key string, timeout time.Duration, fetch fetchFunc) (any, error) {
	breaker := c.breakers.Get(key)
	if breaker != nil && !breaker.Allow() {
		return nil, errCircuitOpen
	}

	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if timeout > 0 {
		h := c.sched.After(timeout, func() { cancel(errAttemptTimeout) })
		defer h.Stop()
	}

	done := make(chan attemptResult, 1)
	go func() {
		v, err := fetch(actx)
		done <- attemptResult{value: v, err: err}
	}()

	var res attemptResult
	select {
	case res = <-done:
	case <-actx.Done():
		res.err = actx.Err()
	}

	if res.err != nil {
		switch {
		case errors.Is(context.Cause(actx), errAttemptTimeout):
			res.err = TimeoutError(errAttemptTimeout)
		case KindOf(res.err) == KindUnknown && errors.Is(res.err, context.DeadlineExceeded):
			res.err = TimeoutError(res.err)
		}
	}

	if breaker != nil {
		switch {
		case res.err == nil:
			breaker.RecordSuccess()
		case Retryable(res.err):
			breaker.RecordFailure()
		}
	}
	return res.value, res.err
}
