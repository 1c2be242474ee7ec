package query

import (
	"context"
	"sync"
)

// MutationState is a point-in-time view of a mutation.
type MutationState[T any] struct {
	Data    T
	HasData bool
	Loading bool
	Error   string
	Err     error
}

// MutationOption configures a Mutation.
type MutationOption func(*mutationOptions)

type mutationOptions struct {
	invalidate []func(arg, result any)
	onSuccess  func(result, arg any)
	onError    func(err error, arg any)
	onSettled  func(result any, err error, arg any)
}

// OnMutationSuccess observes a successful mutation with its argument.
func OnMutationSuccess[A, T any](fn func(result T, arg A)) MutationOption {
	return func(o *mutationOptions) {
		o.onSuccess = func(result, arg any) {
			r, _ := result.(T)
			a, _ := arg.(A)
			fn(r, a)
		}
	}
}

// OnMutationError observes a failed mutation with its argument.
func OnMutationError[A any](fn func(err error, arg A)) MutationOption {
	return func(o *mutationOptions) {
		o.onError = func(err error, arg any) {
			a, _ := arg.(A)
			fn(err, a)
		}
	}
}

// OnSettled observes every mutation after its success or error observer.
// On failure result is the zero value.
func OnSettled[A, T any](fn func(result T, err error, arg A)) MutationOption {
	return func(o *mutationOptions) {
		o.onSettled = func(result any, err error, arg any) {
			r, _ := result.(T)
			a, _ := arg.(A)
			fn(r, err, a)
		}
	}
}

// Invalidates drops the keys returned by keys from client after every
// successful mutation, before the success observer runs. Live queries on
// those keys revalidate.
func Invalidates[A, T any](client *Client, keys func(arg A, result T) []string) MutationOption {
	return func(o *mutationOptions) {
		o.invalidate = append(o.invalidate, func(arg, result any) {
			a, _ := arg.(A)
			r, _ := result.(T)
			client.Invalidate(keys(a, r)...)
		})
	}
}

// Mutation runs a write against the API and tracks its outcome. Unlike a
// query it never retries and never caches its result.
type Mutation[A, T any] struct {
	fn   func(ctx context.Context, arg A) (T, error)
	opts mutationOptions

	mu   sync.Mutex
	data T
	has  bool
	busy bool
	err  error
}

// NewMutation creates a mutation around fn.
func NewMutation[A, T any](fn func(ctx context.Context, arg A) (T, error), opts ...MutationOption) *Mutation[A, T] {
	m := &Mutation[A, T]{fn: fn}
	for _, opt := range opts {
		opt(&m.opts)
	}
	return m
}

// Mutate runs the mutation with arg and returns its result.
func (m *Mutation[A, T]) Mutate(ctx context.Context, arg A) (T, error) {
	m.mu.Lock()
	m.busy = true
	m.err = nil
	m.mu.Unlock()

	result, err := m.fn(ctx, arg)

	m.mu.Lock()
	m.busy = false
	if err != nil {
		m.err = err
	} else {
		m.data = result
		m.has = true
	}
	m.mu.Unlock()

	if err != nil {
		if m.opts.onError != nil {
			m.opts.onError(err, arg)
		}
		if m.opts.onSettled != nil {
			var zero T
			m.opts.onSettled(zero, err, arg)
		}
		return result, err
	}

	for _, inv := range m.opts.invalidate {
		inv(arg, result)
	}
	if m.opts.onSuccess != nil {
		m.opts.onSuccess(result, arg)
	}
	if m.opts.onSettled != nil {
		m.opts.onSettled(result, nil, arg)
	}
	return result, nil
}

// Reset clears the result, error and loading state.
func (m *Mutation[A, T]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	m.data, m.has, m.busy, m.err = zero, false, false, nil
}

// State returns a snapshot of the mutation.
func (m *Mutation[A, T]) State() MutationState[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MutationState[T]{
		Data:    m.data,
		HasData: m.has,
		Loading: m.busy,
		Error:   Message(m.err),
		Err:     m.err,
	}
}
