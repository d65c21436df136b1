package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/demoapps/otelhello/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const Greeting = "Hello from Go service"

type Server struct {
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

func NewServer(tracer trace.Tracer, m *metrics.Metrics) *Server {
	return &Server{
		tracer:  tracer,
		metrics: m,
	}
}

func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, span := s.tracer.Start(r.Context(), "handle-root")
	defer span.End()

	span.SetAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("http.path", r.URL.Path),
	)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, Greeting)

	s.metrics.RecordGreeting(ctx, r.Method, time.Since(start).Seconds())
}

// HandleHealth reports liveness. It must not depend on telemetry export.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
