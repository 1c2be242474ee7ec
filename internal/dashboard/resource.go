package dashboard

import (
	"context"
	"time"

	"github.com/oriys/vantage/internal/query"
)

// Status is the type-erased state of a resource.
type Status struct {
	Key       string    `json:"key"`
	HasData   bool      `json:"has_data"`
	Loading   bool      `json:"loading"`
	Stale     bool      `json:"stale"`
	Enabled   bool      `json:"enabled"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Resource is a query whose value type is hidden, so that transports can
// serve any preset uniformly.
type Resource interface {
	Key() string
	Start() error
	Close()
	Read() (any, bool)
	Fetch(ctx context.Context) (any, error)
	Refetch(ctx context.Context) (any, error)
	Revalidate()
	Status() Status
}

type resource[T any] struct {
	q *query.Query[T]
}

func wrap[T any](q *query.Query[T]) Resource {
	return resource[T]{q: q}
}

func (r resource[T]) Key() string  { return r.q.Key() }
func (r resource[T]) Start() error { return r.q.Start() }
func (r resource[T]) Close()       { r.q.Close() }
func (r resource[T]) Revalidate()  { r.q.Revalidate() }

func (r resource[T]) Read() (any, bool) {
	v, ok := r.q.Read()
	if !ok {
		return nil, false
	}
	return v, true
}

func (r resource[T]) Fetch(ctx context.Context) (any, error) {
	return r.q.Fetch(ctx)
}

func (r resource[T]) Refetch(ctx context.Context) (any, error) {
	return r.q.Refetch(ctx)
}

func (r resource[T]) Status() Status {
	st := r.q.State()
	return Status{
		Key:       r.q.Key(),
		HasData:   st.HasData,
		Loading:   st.Loading,
		Stale:     st.Stale,
		Enabled:   r.q.Enabled(),
		Error:     st.Error,
		UpdatedAt: st.UpdatedAt,
	}
}
