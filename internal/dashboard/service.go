// Package dashboard binds the dashboard REST API to the query coordinator:
// one preset query per resource and the project mutations that keep them
// consistent.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oriys/vantage/internal/apiclient"
	"github.com/oriys/vantage/internal/cache"
	"github.com/oriys/vantage/internal/logging"
	"github.com/oriys/vantage/internal/query"
)

// Cache keys of the dashboard resources.
const (
	KeyStats       = "stats"
	KeyTasks       = "tasks"
	KeyProjects    = "projects"
	KeyPerformance = "performance"
	KeySummary     = "summary"
	KeyOverview    = "dashboard"
	KeyHealth      = "health"
)

// Preset freshness windows.
const (
	DefaultStaleTime     = 5 * time.Minute
	DefaultCacheTime     = 10 * time.Minute
	PerformanceStaleTime = 10 * time.Minute
	PerformanceCacheTime = 15 * time.Minute
	HealthCacheTime      = time.Minute
)

// ErrUnknownResource is returned by Open for keys no preset serves.
var ErrUnknownResource = errors.New("unknown resource")

// ProjectKey returns the cache key of a single project.
func ProjectKey(id int) string {
	return cache.Key("project", id)
}

// Service exposes the dashboard resources as queries.
type Service struct {
	api    *apiclient.Client
	client *query.Client
	extra  []query.Option

	mu     sync.Mutex
	opened map[string]Resource
}

// NewService creates a Service. opts apply to every preset after the
// preset's own settings.
func NewService(api *apiclient.Client, client *query.Client, opts ...query.Option) *Service {
	return &Service{
		api:    api,
		client: client,
		extra:  opts,
		opened: make(map[string]Resource),
	}
}

// Client returns the query client backing the service.
func (s *Service) Client() *query.Client { return s.client }

func (s *Service) preset(stale, cacheTime time.Duration, opts []query.Option) []query.Option {
	out := []query.Option{query.WithStaleTime(stale), query.WithCacheTime(cacheTime)}
	out = append(out, s.extra...)
	return append(out, opts...)
}

// Stats returns the headline figures query.
func (s *Service) Stats(opts ...query.Option) *query.Query[[]StatCard] {
	return query.NewQuery(s.client, KeyStats,
		query.FromJSON[[]StatCard](s.api.Getter(apiclient.EndpointStats)),
		s.preset(DefaultStaleTime, DefaultCacheTime, opts)...)
}

// Tasks returns the open tasks query.
func (s *Service) Tasks(opts ...query.Option) *query.Query[[]Task] {
	return query.NewQuery(s.client, KeyTasks,
		query.FromJSON[[]Task](s.api.Getter(apiclient.EndpointTasks)),
		s.preset(DefaultStaleTime, DefaultCacheTime, opts)...)
}

// Projects returns the project list query.
func (s *Service) Projects(opts ...query.Option) *query.Query[[]Project] {
	return query.NewQuery(s.client, KeyProjects,
		query.FromJSON[[]Project](s.api.Getter(apiclient.EndpointProjects)),
		s.preset(DefaultStaleTime, DefaultCacheTime, opts)...)
}

// Project returns the query for one project. It stays disabled for id 0.
func (s *Service) Project(id int, opts ...query.Option) *query.Query[Project] {
	opts = append([]query.Option{query.WithEnabled(id != 0)}, opts...)
	return query.NewQuery(s.client, ProjectKey(id),
		query.FromJSON[Project](s.api.Getter(apiclient.ProjectPath(id))),
		s.preset(DefaultStaleTime, DefaultCacheTime, opts)...)
}

// Performance returns the performance chart query. The chart changes
// slowly and is kept longer than the other resources.
func (s *Service) Performance(opts ...query.Option) *query.Query[Performance] {
	return query.NewQuery(s.client, KeyPerformance,
		query.FromJSON[Performance](s.api.Getter(apiclient.EndpointPerformance)),
		s.preset(PerformanceStaleTime, PerformanceCacheTime, opts)...)
}

// Summary returns the upcoming work counters query.
func (s *Service) Summary(opts ...query.Option) *query.Query[Summary] {
	return query.NewQuery(s.client, KeySummary,
		query.FromJSON[Summary](s.api.Getter(apiclient.EndpointSummary)),
		s.preset(DefaultStaleTime, DefaultCacheTime, opts)...)
}

// Overview returns the combined dashboard query.
func (s *Service) Overview(opts ...query.Option) *query.Query[Overview] {
	return query.NewQuery(s.client, KeyOverview,
		query.FromJSON[Overview](s.api.Getter(apiclient.EndpointDashboard)),
		s.preset(DefaultStaleTime, DefaultCacheTime, opts)...)
}

// Health returns the API liveness query. It is always stale so every
// trigger probes the API.
func (s *Service) Health(opts ...query.Option) *query.Query[Health] {
	return query.NewQuery(s.client, KeyHealth,
		query.FromJSON[Health](s.api.Getter(apiclient.EndpointHealth)),
		s.preset(0, HealthCacheTime, opts)...)
}

// CreateProject returns a mutation that creates a project and invalidates
// the project list and the combined overview.
func (s *Service) CreateProject(opts ...query.MutationOption) *query.Mutation[ProjectInput, Project] {
	opts = append([]query.MutationOption{
		query.Invalidates(s.client, func(ProjectInput, Project) []string {
			return []string{KeyProjects, KeyOverview}
		}),
	}, opts...)
	return query.NewMutation(func(ctx context.Context, in ProjectInput) (Project, error) {
		body, err := s.api.Post(ctx, apiclient.EndpointProjects, in)
		if err != nil {
			return Project{}, err
		}
		return query.Decode[Project](body)
	}, opts...)
}

// UpdateProject returns a mutation that updates a project and invalidates
// the list, the project itself and the overview that embeds them.
func (s *Service) UpdateProject(opts ...query.MutationOption) *query.Mutation[ProjectUpdate, Project] {
	opts = append([]query.MutationOption{
		query.Invalidates(s.client, func(u ProjectUpdate, _ Project) []string {
			return []string{KeyProjects, ProjectKey(u.ID), KeyOverview}
		}),
	}, opts...)
	return query.NewMutation(func(ctx context.Context, u ProjectUpdate) (Project, error) {
		body, err := s.api.Put(ctx, apiclient.ProjectPath(u.ID), u.Input)
		if err != nil {
			return Project{}, err
		}
		return query.Decode[Project](body)
	}, opts...)
}

// DeleteProject returns a mutation that deletes a project by id and
// invalidates the list, the project and the overview.
func (s *Service) DeleteProject(opts ...query.MutationOption) *query.Mutation[int, struct{}] {
	opts = append([]query.MutationOption{
		query.Invalidates(s.client, func(id int, _ struct{}) []string {
			return []string{KeyProjects, ProjectKey(id), KeyOverview}
		}),
	}, opts...)
	return query.NewMutation(func(ctx context.Context, id int) (struct{}, error) {
		body, err := s.api.Delete(ctx, apiclient.ProjectPath(id))
		if err != nil {
			return struct{}{}, err
		}
		return query.Decode[struct{}](body)
	}, opts...)
}

// Open returns the started resource for key, creating it on first use.
// Keys are the preset names plus "project-<id>". opts only apply when the
// resource is created.
func (s *Service) Open(key string, opts ...query.Option) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.opened[key]; ok {
		return r, nil
	}

	r, err := s.resource(key, opts)
	if err != nil {
		return nil, err
	}
	if err := r.Start(); err != nil {
		return nil, err
	}
	s.opened[key] = r
	logging.Op().Debug().Str("key", key).Msg("resource opened")
	return r, nil
}

func (s *Service) resource(key string, opts []query.Option) (Resource, error) {
	switch key {
	case KeyStats:
		return wrap(s.Stats(opts...)), nil
	case KeyTasks:
		return wrap(s.Tasks(opts...)), nil
	case KeyProjects:
		return wrap(s.Projects(opts...)), nil
	case KeyPerformance:
		return wrap(s.Performance(opts...)), nil
	case KeySummary:
		return wrap(s.Summary(opts...)), nil
	case KeyOverview:
		return wrap(s.Overview(opts...)), nil
	case KeyHealth:
		return wrap(s.Health(opts...)), nil
	}
	if rest, ok := strings.CutPrefix(key, "project-"); ok {
		id, err := strconv.Atoi(rest)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownResource, key)
		}
		return wrap(s.Project(id, opts...)), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownResource, key)
}

// Opened returns the keys of every resource opened so far.
func (s *Service) Opened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.opened))
	for k := range s.opened {
		keys = append(keys, k)
	}
	return keys
}

// Close closes every opened resource.
func (s *Service) Close() {
	s.mu.Lock()
	opened := s.opened
	s.opened = make(map[string]Resource)
	s.mu.Unlock()

	for _, r := range opened {
		r.Close()
	}
}
