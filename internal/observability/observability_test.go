package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	use(tp, "vantage-test")
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		globalProvider.Store(disabledProvider())
	})
	return rec
}

func TestDisabledTracerIsUsable(t *testing.T) {
	require.NoError(t, Init(context.Background(), Config{Enabled: false}))
	assert.False(t, Enabled())

	ctx, span := StartSpan(context.Background(), "noop")
	span.End()
	assert.Empty(t, GetTraceID(ctx))
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInitRejectsUnknownExporter(t *testing.T) {
	err := Init(context.Background(), Config{Enabled: true, Exporter: "carrier-pigeon"})
	assert.ErrorContains(t, err, "unknown exporter")
}

func TestPropagationRoundTrip(t *testing.T) {
	withRecorder(t)

	ctx, span := StartClientSpan(context.Background(), "GET /api/stats")
	defer span.End()

	h := http.Header{}
	InjectHTTPHeaders(ctx, h)
	require.NotEmpty(t, h.Get("traceparent"))

	remote := ExtractHTTPHeaders(context.Background(), h)
	assert.Equal(t, GetTraceID(ctx), GetTraceID(remote))
}

func TestHTTPMiddlewareRecordsServerSpan(t *testing.T) {
	rec := withRecorder(t)

	h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, GetSpanID(r.Context()))
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/stats", spans[0].Name())
	assert.Equal(t, "Error", spans[0].Status().Code.String())
}
