package query

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Defaults applied to every query before client and per-query options.
const (
	DefaultCacheTime      = 5 * time.Minute
	DefaultRetryCount     = 3
	DefaultRetryDelay     = time.Second
	DefaultAttemptTimeout = 10 * time.Second
)

// Option configures a Query.
type Option func(*options)

type options struct {
	staleTime       time.Duration
	cacheTime       time.Duration
	retries         int
	retryDelay      time.Duration
	newBackOff      func() backoff.BackOff
	attemptTimeout  time.Duration
	refetchOnFocus  bool
	refetchInterval time.Duration
	enabled         bool
	onSuccess       func(any)
	onError         func(error)
}

func defaultOptions() options {
	return options{
		cacheTime:      DefaultCacheTime,
		retries:        DefaultRetryCount,
		retryDelay:     DefaultRetryDelay,
		attemptTimeout: DefaultAttemptTimeout,
		refetchOnFocus: true,
		enabled:        true,
	}
}

func (o options) backOff() backoff.BackOff {
	if o.newBackOff != nil {
		return o.newBackOff()
	}
	return NewLinearBackOff(o.retryDelay)
}

// WithStaleTime sets how long a stored entry counts as fresh.
func WithStaleTime(d time.Duration) Option {
	return func(o *options) { o.staleTime = d }
}

// WithCacheTime sets the time-to-live of entries this query writes.
// Zero or negative keeps them until invalidated.
func WithCacheTime(d time.Duration) Option {
	return func(o *options) { o.cacheTime = d }
}

// WithRetry sets the number of retries after the first attempt and the
// base delay of the linear backoff.
func WithRetry(count int, delay time.Duration) Option {
	return func(o *options) {
		o.retries = count
		o.retryDelay = delay
	}
}

// WithBackOff replaces the linear retry delay with a custom policy. The
// factory is called once per fetch sequence.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(o *options) { o.newBackOff = factory }
}

// WithAttemptTimeout bounds every single attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *options) { o.attemptTimeout = d }
}

// WithRefetchOnWindowFocus controls whether revalidate triggers refetch the
// query when it is stale.
func WithRefetchOnWindowFocus(enabled bool) Option {
	return func(o *options) { o.refetchOnFocus = enabled }
}

// WithRefetchInterval polls the resource every d while the query is started
// and enabled.
func WithRefetchInterval(d time.Duration) Option {
	return func(o *options) { o.refetchInterval = d }
}

// WithEnabled sets the initial state of the enabled gate.
func WithEnabled(enabled bool) Option {
	return func(o *options) { o.enabled = enabled }
}

// OnSuccess observes every successful fetch settled by the query.
func OnSuccess[T any](fn func(T)) Option {
	return func(o *options) {
		o.onSuccess = func(v any) {
			if t, ok := v.(T); ok {
				fn(t)
			}
		}
	}
}

// OnError observes every exhausted fetch failure settled by the query.
func OnError(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}
