package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/demoapps/otelhello/internal/metrics"
	"github.com/demoapps/otelhello/internal/middleware"
	"github.com/demoapps/otelhello/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	otelchimetric "github.com/riandyrn/otelchi/metric"
)

// TracerName is the instrumentation scope of handler spans.
const TracerName = "otelhello/api"

// NewRouter registers the service routes on a chi router. Call it only
// after telemetry.Bootstrap has succeeded.
func NewRouter(h *telemetry.Handle, logger *slog.Logger) (http.Handler, error) {
	m, err := metrics.New(h.Meter(metrics.ScopeName))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	srv := NewServer(h.Tracer(TracerName), m)

	r := chi.NewRouter()

	// HTTP metrics
	metricCfg := otelchimetric.NewBaseConfig(h.ServiceName(), otelchimetric.WithMeterProvider(h.MeterProvider()))
	r.Use(otelchimetric.NewRequestDurationMillis(metricCfg))
	r.Use(otelchimetric.NewRequestInFlight(metricCfg))
	r.Use(otelchimetric.NewResponseSizeBytes(metricCfg))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "traceparent", "tracestate", "baggage"},
	}))

	// Each route gets its own server span; the request logger runs inside it
	// so log lines carry the trace context.
	requestLog := middleware.RequestLogger(logger)
	r.With(h.Middleware("GoRoot"), requestLog).Get("/", srv.HandleRoot)
	r.With(h.Middleware("GoHealth"), requestLog).Get("/healthz", srv.HandleHealth)

	return r, nil
}
