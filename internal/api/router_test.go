package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/demoapps/otelhello/internal/logger"
	"github.com/demoapps/otelhello/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/proto"
)

// collector is an in-process OTLP/HTTP receiver that decodes protobuf
// payloads for /v1/traces, /v1/metrics and /v1/logs.
type collector struct {
	mu           sync.Mutex
	spanNames    []string
	metricNames  []string
	logBodies    []string
	serviceNames map[string]map[string]bool // path -> service.name values
}

func newCollector(t *testing.T) (*collector, *httptest.Server) {
	t.Helper()

	c := &collector{serviceNames: map[string]map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(c.ServeHTTP))
	t.Cleanup(srv.Close)
	return c, srv
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch r.URL.Path {
	case "/v1/traces":
		var req coltracepb.ExportTraceServiceRequest
		if err := proto.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rs := range req.GetResourceSpans() {
			c.sawResource(r.URL.Path, rs.GetResource())
			for _, ss := range rs.GetScopeSpans() {
				for _, s := range ss.GetSpans() {
					c.spanNames = append(c.spanNames, s.GetName())
				}
			}
		}
	case "/v1/metrics":
		var req colmetricpb.ExportMetricsServiceRequest
		if err := proto.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rm := range req.GetResourceMetrics() {
			c.sawResource(r.URL.Path, rm.GetResource())
			for _, sm := range rm.GetScopeMetrics() {
				for _, m := range sm.GetMetrics() {
					c.metricNames = append(c.metricNames, m.GetName())
				}
			}
		}
	case "/v1/logs":
		var req collogspb.ExportLogsServiceRequest
		if err := proto.Unmarshal(body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, rl := range req.GetResourceLogs() {
			c.sawResource(r.URL.Path, rl.GetResource())
			for _, sl := range rl.GetScopeLogs() {
				for _, l := range sl.GetLogRecords() {
					c.logBodies = append(c.logBodies, l.GetBody().GetStringValue())
				}
			}
		}
	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
}

func (c *collector) sawResource(path string, res *resourcepb.Resource) {
	if c.serviceNames[path] == nil {
		c.serviceNames[path] = map[string]bool{}
	}
	c.serviceNames[path][attrValue(res.GetAttributes(), "service.name")] = true
}

func attrValue(attrs []*commonpb.KeyValue, key string) string {
	for _, kv := range attrs {
		if kv.GetKey() == key {
			return kv.GetValue().GetStringValue()
		}
	}
	return ""
}

func (c *collector) SpanNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.spanNames...)
}

func (c *collector) MetricNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.metricNames...)
}

func (c *collector) LogBodies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.logBodies...)
}

func (c *collector) ServiceNames(path string) map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[string]bool{}
	for k, v := range c.serviceNames[path] {
		out[k] = v
	}
	return out
}

func bootstrap(t *testing.T, collectorURL string, interval time.Duration) *telemetry.Handle {
	t.Helper()

	h, err := telemetry.Bootstrap(context.Background(), telemetry.Config{
		ServiceName:          "go-service",
		ServiceVersion:       "1.0.0",
		Environment:          "test",
		CollectorBaseURL:     collectorURL,
		MetricExportInterval: interval,
	}, telemetry.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestRouter_ExportsToCollector(t *testing.T) {
	c, srv := newCollector(t)
	h := bootstrap(t, srv.URL, 100*time.Millisecond)

	var logBuf bytes.Buffer
	router, err := NewRouter(h, slog.New(slog.NewTextHandler(&logBuf, nil)))
	require.NoError(t, err)

	rr := get(t, router, "/")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Hello from Go service\n", rr.Body.String())
	assert.Contains(t, logBuf.String(), "trace_id=", "request log should carry the span context")

	// Metrics arrive on the periodic reader without any explicit flush.
	assert.Eventually(t, func() bool {
		for _, name := range c.MetricNames() {
			if name == "http.greetings.total" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	logger.NewWithWriter(io.Discard, "test", h.LoggerProvider()).Info("greeting served")
	require.NoError(t, h.ForceFlush(context.Background()))

	spans := c.SpanNames()
	assert.Contains(t, spans, "GoRoot")
	assert.Contains(t, spans, "handle-root")
	assert.Contains(t, c.LogBodies(), "greeting served")

	assert.Equal(t, map[string]bool{"go-service": true}, c.ServiceNames("/v1/traces"))
	assert.Equal(t, map[string]bool{"go-service": true}, c.ServiceNames("/v1/metrics"))
	assert.Zero(t, h.ExportFailures())
}

func TestRouter_HealthzWithUnreachableCollector(t *testing.T) {
	h := bootstrap(t, "http://127.0.0.1:1", time.Minute)

	router, err := NewRouter(h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rr := get(t, router, "/healthz")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok\n", rr.Body.String())
	}
	assert.Equal(t, http.StatusOK, get(t, router, "/").Code)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Delivery failures are logged and counted, never returned.
	assert.NoError(t, h.ForceFlush(ctx))
	assert.Positive(t, h.ExportFailures())
}

func TestRouter_UnknownRoute(t *testing.T) {
	_, srv := newCollector(t)
	h := bootstrap(t, srv.URL, time.Minute)

	router, err := NewRouter(h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/missing").Code)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
