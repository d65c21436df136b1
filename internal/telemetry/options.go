package telemetry

import (
	"context"
	"log/slog"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures Bootstrap.
type Option func(*options)

type options struct {
	logger            *slog.Logger
	newSpanExporter   spanExporterFunc
	newMetricExporter metricExporterFunc
	newLogExporter    logExporterFunc
}

func newOptions(opts ...Option) *options {
	o := &options{
		logger:            slog.Default(),
		newSpanExporter:   newOTLPSpanExporter,
		newMetricExporter: newOTLPMetricExporter,
		newLogExporter:    newOTLPLogExporter,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger used for bootstrap events and export failures.
// Defaults to slog.Default() at the time Bootstrap is called.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSpanExporter replaces the OTLP/HTTP trace exporter.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) {
		o.newSpanExporter = func(context.Context, string, map[string]string) (sdktrace.SpanExporter, error) {
			return exp, nil
		}
	}
}

// WithMetricExporter replaces the OTLP/HTTP metric exporter. It is still
// driven by the periodic reader.
func WithMetricExporter(exp sdkmetric.Exporter) Option {
	return func(o *options) {
		o.newMetricExporter = func(context.Context, string, map[string]string) (sdkmetric.Exporter, error) {
			return exp, nil
		}
	}
}

// WithLogExporter replaces the OTLP/HTTP log exporter.
func WithLogExporter(exp sdklog.Exporter) Option {
	return func(o *options) {
		o.newLogExporter = func(context.Context, string, map[string]string) (sdklog.Exporter, error) {
			return exp, nil
		}
	}
}
