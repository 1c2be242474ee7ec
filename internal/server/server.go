// Package server is the control plane of a running vantage daemon. It
// serves cached dashboard resources with stale-while-revalidate semantics
// and exposes the revalidate and invalidate triggers over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/vantage/internal/cache"
	"github.com/oriys/vantage/internal/dashboard"
	"github.com/oriys/vantage/internal/logging"
	"github.com/oriys/vantage/internal/metrics"
	"github.com/oriys/vantage/internal/observability"
	"github.com/oriys/vantage/internal/query"
)

// Response headers describing the cache state of a served resource.
const (
	HeaderCacheKey   = "X-Cache-Key"
	HeaderCacheStale = "X-Cache-Stale"
)

// Config contains dependencies for the control server.
type Config struct {
	Service     *dashboard.Service
	Invalidator *cache.Invalidator // Optional: fans invalidations out to peers
	Version     string
}

// Server routes control requests.
type Server struct {
	cfg    Config
	client *query.Client
	mux    *http.ServeMux
}

type resourceResponse struct {
	Key       string     `json:"key"`
	Data      any        `json:"data"`
	Stale     bool       `json:"stale"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("dashboard service is required")
	}
	s := &Server{
		cfg:    cfg,
		client: cfg.Service.Client(),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/", s.handleResource)
	s.mux.HandleFunc("GET /resources", s.handleResources)
	s.mux.HandleFunc("POST /revalidate", s.handleRevalidate)
	s.mux.HandleFunc("POST /invalidate", s.handleInvalidate)
	s.mux.HandleFunc("POST /refetch", s.handleRefetch)
	s.mux.Handle("GET /metrics", metrics.PrometheusHandler())
	s.mux.Handle("GET /stats", metrics.Global().JSONHandler())
	return s, nil
}

// Handler returns the routes wrapped with tracing.
func (s *Server) Handler() http.Handler {
	return observability.HTTPMiddleware(s.mux)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// StartHTTPServer starts serving s on addr in the background.
func StartHTTPServer(addr string, s *Server) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error().Err(err).Str("addr", addr).Msg("HTTP server error")
		}
	}()

	return server
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.client.Closed() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"version":        s.cfg.Version,
		"entries":        s.client.Store().Len(),
		"pending_timers": s.client.Scheduler().Pending(),
		"resources":      len(s.cfg.Service.Opened()),
	})
}

// resourceKey maps an API path onto a cache key: /api/stats is "stats",
// /api/projects/3 is "project-3".
func resourceKey(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok || rest == "" {
		return "", false
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch {
	case len(parts) == 1:
		return parts[0], true
	case len(parts) == 2 && parts[0] == "projects":
		id, err := strconv.Atoi(parts[1])
		if err != nil || id <= 0 {
			return "", false
		}
		return dashboard.ProjectKey(id), true
	}
	return "", false
}

// handleResource serves whatever the cache holds and lets the query
// revalidate behind it. Only a resource with nothing to show waits for the
// network.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	key, ok := resourceKey(r.URL.Path)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown resource")
		return
	}
	res, err := s.cfg.Service.Open(key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dashboard.ErrUnknownResource) {
			status = http.StatusNotFound
		}
		writeJSONError(w, status, err.Error())
		return
	}

	data, ok := res.Read()
	if !ok {
		data, err = res.Fetch(r.Context())
		if err != nil {
			writeJSONError(w, statusFor(err), query.Message(err))
			return
		}
	}
	s.writeResource(w, res, data)
}

func (s *Server) writeResource(w http.ResponseWriter, res dashboard.Resource, data any) {
	st := res.Status()
	w.Header().Set(HeaderCacheKey, st.Key)
	w.Header().Set(HeaderCacheStale, strconv.FormatBool(st.Stale))

	resp := resourceResponse{
		Key:   st.Key,
		Data:  data,
		Stale: st.Stale,
		Error: st.Error,
	}
	if !st.UpdatedAt.IsZero() {
		resp.UpdatedAt = &st.UpdatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	keys := s.cfg.Service.Opened()
	slices.Sort(keys)
	statuses := make([]dashboard.Status, 0, len(keys))
	for _, key := range keys {
		res, err := s.cfg.Service.Open(key)
		if err != nil {
			continue
		}
		statuses = append(statuses, res.Status())
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	s.client.Revalidate()
	logging.WithTrace(r.Context()).Debug().Msg("revalidate requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "revalidating"})
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	keys := r.URL.Query()["key"]
	if len(keys) == 0 {
		writeJSONError(w, http.StatusBadRequest, "at least one key is required")
		return
	}

	s.client.Invalidate(keys...)
	published := 0
	if s.cfg.Invalidator != nil {
		for _, key := range keys {
			if err := s.cfg.Invalidator.Publish(r.Context(), key); err != nil {
				logging.WithTrace(r.Context()).Warn().Err(err).Str("key", key).Msg("publish invalidation failed")
				continue
			}
			published++
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"invalidated": keys,
		"published":   published,
	})
}

func (s *Server) handleRefetch(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSONError(w, http.StatusBadRequest, "key is required")
		return
	}
	res, err := s.cfg.Service.Open(key)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	data, err := res.Refetch(r.Context())
	if err != nil {
		writeJSONError(w, statusFor(err), query.Message(err))
		return
	}
	s.writeResource(w, res, data)
}

// statusFor maps a fetch failure onto the status returned to our caller.
func statusFor(err error) int {
	switch query.KindOf(err) {
	case query.KindClient:
		var qe *query.Error
		if errors.As(err, &qe) && qe.Status == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case query.KindTimeout:
		return http.StatusGatewayTimeout
	case query.KindCircuitOpen:
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, query.ErrClientClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Op().Debug().Err(fmt.Errorf("encode response: %w", err)).Msg("write failed")
	}
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
