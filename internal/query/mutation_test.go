package query

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type projectUpdate struct {
	ID   int
	Name string
}

func TestMutationSuccessInvalidatesBeforeObservers(t *testing.T) {
	c, _ := newTestClient(t)
	c.Store().Set("projects", []string{"old"}, time.Minute)
	c.Store().Set("project-7", "old", time.Minute)
	c.Store().Set("stats", 1, time.Minute)

	var order []string
	m := NewMutation(
		func(ctx context.Context, u projectUpdate) (projectUpdate, error) { return u, nil },
		Invalidates(c, func(u projectUpdate, res projectUpdate) []string {
			return []string{"projects", "project-7"}
		}),
		OnMutationSuccess(func(res projectUpdate, arg projectUpdate) {
			_, ok := c.Store().Get("projects")
			assert.False(t, ok, "cache is invalidated before onSuccess")
			order = append(order, "success")
		}),
		OnSettled(func(res projectUpdate, err error, arg projectUpdate) {
			assert.NoError(t, err)
			order = append(order, "settled")
		}),
	)

	got, err := m.Mutate(context.Background(), projectUpdate{ID: 7, Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, []string{"success", "settled"}, order)

	_, ok := c.Store().Get("project-7")
	assert.False(t, ok)
	_, ok = c.Store().Get("stats")
	assert.True(t, ok, "unrelated keys survive")

	st := m.State()
	assert.True(t, st.HasData)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
}

func TestMutationFailure(t *testing.T) {
	c, _ := newTestClient(t)
	c.Store().Set("projects", 1, time.Minute)

	var errs, settled atomic.Int32
	m := NewMutation(
		func(ctx context.Context, id int) (struct{}, error) {
			return struct{}{}, ApplicationError("Project not found")
		},
		Invalidates(c, func(id int, _ struct{}) []string { return []string{"projects"} }),
		OnMutationError(func(err error, id int) {
			assert.Equal(t, 42, id)
			errs.Add(1)
		}),
		OnSettled(func(_ struct{}, err error, id int) {
			assert.Error(t, err)
			settled.Add(1)
		}),
	)

	_, err := m.Mutate(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, int32(1), errs.Load())
	assert.Equal(t, int32(1), settled.Load())
	assert.Equal(t, "Project not found", m.State().Error)

	_, ok := c.Store().Get("projects")
	assert.True(t, ok, "failed mutations invalidate nothing")

	m.Reset()
	assert.Equal(t, MutationState[struct{}]{}, m.State())
}

func TestMutationClearsErrorOnNextRun(t *testing.T) {
	fail := true
	m := NewMutation(func(ctx context.Context, _ string) (string, error) {
		if fail {
			return "", errors.New("nope")
		}
		return "ok", nil
	})

	_, err := m.Mutate(context.Background(), "")
	require.Error(t, err)
	fail = false
	_, err = m.Mutate(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, m.State().Error)
	assert.Equal(t, "ok", m.State().Data)
}
