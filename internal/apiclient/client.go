// Package apiclient is the HTTP transport for the dashboard REST API. It
// returns raw response bodies and classifies failures for the query
// coordinator; it never retries on its own.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/oriys/vantage/internal/observability"
	"github.com/oriys/vantage/internal/query"
)

// DefaultTimeout bounds a single request when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Dashboard API endpoints.
const (
	EndpointStats       = "/api/stats"
	EndpointTasks       = "/api/tasks"
	EndpointProjects    = "/api/projects"
	EndpointPerformance = "/api/performance"
	EndpointSummary     = "/api/summary"
	EndpointDashboard   = "/api/dashboard"
	EndpointHealth      = "/health"
)

// ProjectPath returns the endpoint of a single project.
func ProjectPath(id int) string {
	return fmt.Sprintf("%s/%d", EndpointProjects, id)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// Client wraps HTTP calls to the dashboard API.
type Client struct {
	baseURL string
	timeout time.Duration
	headers map[string]string
	client  *http.Client
}

// New creates an API client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		headers: cfg.Headers,
		client:  &http.Client{},
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	ctx, span := observability.StartClientSpan(ctx, method+" "+path)
	defer span.End()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	observability.InjectHTTPHeaders(ctx, req.Header)

	resp, err := c.client.Do(req)
	if err != nil {
		err = classify(ctx, reqCtx, err)
		observability.SetSpanError(span, err)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		err = classify(ctx, reqCtx, err)
		observability.SetSpanError(span, err)
		return nil, err
	}

	if resp.StatusCode >= 400 {
		err := query.StatusError(resp.StatusCode)
		observability.SetSpanError(span, err)
		return nil, err
	}

	if len(respBody) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(respBody), nil
}

// classify maps a failed round trip to the error taxonomy. Cancellation by
// the caller is passed through untouched.
func classify(ctx, reqCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ne net.Error
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return query.TimeoutError(err)
	}
	return query.TransportError(err)
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// Getter returns a raw body getter for path, suitable for query.FromJSON.
func (c *Client) Getter(path string) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		return c.Get(ctx, path)
	}
}
