// Package mockapi serves an in-memory rendition of the dashboard REST API.
// It backs local development and the integration tests of the packages
// that talk to the API, and can inject failures per path.
package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oriys/vantage/internal/dashboard"
	"github.com/oriys/vantage/internal/logging"
)

const defaultBodyLimit = 1 << 20

var (
	errProjectNotFound = errors.New("Project not found")
	validStatuses      = []string{"In Progress", "Completed", "On Hold", "Pending"}
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type fault struct {
	status    int
	remaining int
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock used for timestamps and response delays.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithDelay delays every /api response, like a slow upstream.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// Server is the in-memory dashboard API.
type Server struct {
	clock clockwork.Clock
	delay time.Duration
	mux   *http.ServeMux

	mu          sync.Mutex
	stats       []dashboard.StatCard
	tasks       []dashboard.Task
	projects    []dashboard.Project
	performance dashboard.Performance
	summary     dashboard.Summary
	requests    map[string]int
	faults      map[string]*fault
}

// New creates a Server seeded with the demo data set.
func New(opts ...Option) *Server {
	s := &Server{
		clock:       clockwork.NewRealClock(),
		stats:       seedStats(),
		tasks:       seedTasks(),
		projects:    seedProjects(),
		performance: seedPerformance(),
		summary:     seedSummary(),
		requests:    make(map[string]int),
		faults:      make(map[string]*fault),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PUT /api/projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("GET /api/performance", s.handlePerformance)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Error: "Route not found"})
	})
	s.mux = mux
	return s
}

// Fail makes the next times requests to path answer with status.
func (s *Server) Fail(path string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if times <= 0 {
		delete(s.faults, path)
		return
	}
	s.faults[path] = &fault{status: status, remaining: times}
}

// Requests returns how many requests reached path.
func (s *Server) Requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

// SetSummary replaces the summary counters.
func (s *Server) SetSummary(sum dashboard.Summary) {
	s.mu.Lock()
	s.summary = sum
	s.mu.Unlock()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	s.mu.Lock()
	s.requests[path]++
	var status int
	if f, ok := s.faults[path]; ok {
		status = f.status
		if f.remaining--; f.remaining <= 0 {
			delete(s.faults, path)
		}
	}
	s.mu.Unlock()

	logging.Op().Debug().Str("method", r.Method).Str("path", path).Int("fault", status).Msg("mock api request")

	if s.delay > 0 && strings.HasPrefix(path, "/api/") {
		select {
		case <-s.clock.After(s.delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		writeJSON(w, status, envelope{Error: http.StatusText(status)})
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, http.StatusOK, slices.Clone(s.stats))
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, http.StatusOK, slices.Clone(s.tasks))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, http.StatusOK, slices.Clone(s.projects))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(r.PathValue("id"))
	if i < 0 {
		writeJSON(w, http.StatusNotFound, envelope{Error: errProjectNotFound.Error()})
		return
	}
	writeData(w, http.StatusOK, s.projects[i])
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in dashboard.ProjectInput
	if err := decodeBody(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
		return
	}
	if err := validateInput(in); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := 1
	for _, p := range s.projects {
		id = max(id, p.ID+1)
	}
	status := in.Status
	if status == "" {
		status = "In Progress"
	}
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	now := s.clock.Now().UTC()
	p := dashboard.Project{
		ID:          id,
		Name:        in.Name,
		Status:      status,
		StatusColor: statusColor(status),
		Progress:    in.Progress,
		Total:       in.Total,
		Done:        in.Done,
		Due:         in.Due,
		Owner:       in.Owner,
		OwnerImg:    fmt.Sprintf("https://i.pravatar.cc/150?u=%d", id),
		Description: in.Description,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.projects = append(s.projects, p)
	writeData(w, http.StatusCreated, p)
}

// projectPatch carries the fields present in an update body.
type projectPatch struct {
	Name        *string   `json:"name"`
	Status      *string   `json:"status"`
	Progress    *int      `json:"progress"`
	Total       *int      `json:"total"`
	Done        *int      `json:"done"`
	Due         *string   `json:"due"`
	Owner       *string   `json:"owner"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var patch projectPatch
	if err := decodeBody(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(r.PathValue("id"))
	if i < 0 {
		writeJSON(w, http.StatusNotFound, envelope{Error: errProjectNotFound.Error()})
		return
	}
	if err := validatePatch(patch); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
		return
	}

	p := s.projects[i]
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Status != nil {
		p.Status = *patch.Status
		p.StatusColor = statusColor(p.Status)
	}
	if patch.Progress != nil {
		p.Progress = *patch.Progress
	}
	if patch.Total != nil {
		p.Total = *patch.Total
	}
	if patch.Done != nil {
		p.Done = *patch.Done
	}
	if patch.Due != nil {
		p.Due = *patch.Due
	}
	if patch.Owner != nil {
		p.Owner = *patch.Owner
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Tags != nil {
		p.Tags = *patch.Tags
	}
	p.UpdatedAt = s.clock.Now().UTC()
	s.projects[i] = p
	writeData(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(r.PathValue("id"))
	if i < 0 {
		writeJSON(w, http.StatusNotFound, envelope{Error: errProjectNotFound.Error()})
		return
	}
	s.projects = slices.Delete(s.projects, i, i+1)
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Project deleted successfully"})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, http.StatusOK, s.performance)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, http.StatusOK, s.summary)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, http.StatusOK, dashboard.Overview{
		Stats:       slices.Clone(s.stats),
		Tasks:       slices.Clone(s.tasks),
		Projects:    slices.Clone(s.projects),
		Performance: s.performance,
		Summary:     s.summary,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.Health{Status: "ok", Timestamp: s.clock.Now().UTC()})
}

// indexOf must be called with s.mu held.
func (s *Server) indexOf(raw string) int {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return slices.IndexFunc(s.projects, func(p dashboard.Project) bool { return p.ID == id })
}

func validateInput(in dashboard.ProjectInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("Project name is required and must be a non-empty string")
	}
	if strings.TrimSpace(in.Owner) == "" {
		return errors.New("Project owner is required and must be a non-empty string")
	}
	if in.Due == "" {
		return errors.New("Project due date is required")
	}
	return validateCommon(ptrIf(in.Status != "", in.Status), &in.Progress, &in.Total, &in.Done)
}

func validatePatch(p projectPatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return errors.New("Project name must be a non-empty string")
	}
	if p.Owner != nil && strings.TrimSpace(*p.Owner) == "" {
		return errors.New("Project owner must be a non-empty string")
	}
	return validateCommon(p.Status, p.Progress, p.Total, p.Done)
}

func validateCommon(status *string, progress, total, done *int) error {
	if status != nil && !slices.Contains(validStatuses, *status) {
		return fmt.Errorf("Invalid status. Must be one of: %s", strings.Join(validStatuses, ", "))
	}
	if progress != nil && (*progress < 0 || *progress > 100) {
		return errors.New("Progress must be a number between 0 and 100")
	}
	if total != nil && *total < 0 {
		return errors.New("Total tasks must be a non-negative number")
	}
	if done != nil && *done < 0 {
		return errors.New("Done tasks must be a non-negative number")
	}
	return nil
}

func ptrIf(ok bool, s string) *string {
	if !ok {
		return nil
	}
	return &s
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, defaultBodyLimit))
	if err != nil {
		return errors.New("failed to read request body")
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("request body must be a valid project object")
	}
	return nil
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
