package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"

	apperrors "github.com/demoapps/otelhello/internal/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type (
	spanExporterFunc   func(ctx context.Context, endpoint string, headers map[string]string) (sdktrace.SpanExporter, error)
	metricExporterFunc func(ctx context.Context, endpoint string, headers map[string]string) (sdkmetric.Exporter, error)
	logExporterFunc    func(ctx context.Context, endpoint string, headers map[string]string) (sdklog.Exporter, error)
)

func newOTLPSpanExporter(ctx context.Context, endpoint string, headers map[string]string) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(endpoint),
	}
	if len(headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}
	return otlptracehttp.New(ctx, opts...)
}

func newOTLPMetricExporter(ctx context.Context, endpoint string, headers map[string]string) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpointURL(endpoint),
	}
	if len(headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(headers))
	}
	return otlpmetrichttp.New(ctx, opts...)
}

func newOTLPLogExporter(ctx context.Context, endpoint string, headers map[string]string) (sdklog.Exporter, error) {
	opts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(endpoint),
	}
	if len(headers) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(headers))
	}
	return otlploghttp.New(ctx, opts...)
}

// deliveryTracker logs and counts failed exports. The logger must not be
// bridged into the log pipeline it is reporting on.
type deliveryTracker struct {
	logger   *slog.Logger
	failures atomic.Int64
}

func (d *deliveryTracker) observe(ctx context.Context, signal string, err error) {
	if err == nil {
		return
	}
	d.failures.Add(1)

	appErr := apperrors.NewExportDeliveryError(signal, err)
	d.logger.WarnContext(ctx, "telemetry export failed",
		"signal", signal,
		"error_type", appErr.Type,
		"error_code", appErr.Code(),
		"error", appErr,
	)
}

// Export errors are reported to the tracker and then dropped, so the SDK
// keeps its schedule and the next batch or tick tries again on its own.

type trackedSpanExporter struct {
	sdktrace.SpanExporter
	tracker *deliveryTracker
}

func (e *trackedSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.tracker.observe(ctx, "traces", e.SpanExporter.ExportSpans(ctx, spans))
	return nil
}

type trackedMetricExporter struct {
	sdkmetric.Exporter
	tracker *deliveryTracker
}

func (e *trackedMetricExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	e.tracker.observe(ctx, "metrics", e.Exporter.Export(ctx, rm))
	return nil
}

type trackedLogExporter struct {
	sdklog.Exporter
	tracker *deliveryTracker
}

func (e *trackedLogExporter) Export(ctx context.Context, records []sdklog.Record) error {
	e.tracker.observe(ctx, "logs", e.Exporter.Export(ctx, records))
	return nil
}
