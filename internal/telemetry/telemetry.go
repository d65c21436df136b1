package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/demoapps/otelhello/internal/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultShutdownTimeout bounds Shutdown when the caller's context has no deadline.
const DefaultShutdownTimeout = 5 * time.Second

// The process-wide slot. A Handle occupies it from the start of Bootstrap
// until Shutdown or a failed Bootstrap releases it.
var (
	slotMu sync.Mutex
	slot   *Handle
)

func acquire(h *Handle) error {
	slotMu.Lock()
	defer slotMu.Unlock()

	if slot != nil {
		return apperrors.NewAlreadyInitializedError(slot.cfg.ServiceName)
	}
	slot = h
	return nil
}

func release(h *Handle) {
	slotMu.Lock()
	defer slotMu.Unlock()

	if slot == h {
		slot = nil
	}
}

// The delegating providers otel installs before anything is configured. Once
// a delegate has been set they forward to it forever, so restore never puts
// them back.
var (
	defaultTracerProvider = otel.GetTracerProvider()
	defaultMeterProvider  = otel.GetMeterProvider()
	defaultLoggerProvider = global.GetLoggerProvider()
)

// globals are the process-wide defaults replaced by install.
type globals struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	loggerProvider log.LoggerProvider
	propagator     propagation.TextMapPropagator
	errorHandler   otel.ErrorHandler
}

// Handle owns the installed telemetry pipelines.
type Handle struct {
	cfg       Config
	endpoints Endpoints
	logger    *slog.Logger
	tracker   *deliveryTracker

	resource       *resource.Resource
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider
	propagator     propagation.TextMapPropagator

	previous globals

	shutdownOnce sync.Once
	shutdownErr  error
}

// Bootstrap builds the trace, metric, and log pipelines for cfg and installs
// them as the process-wide providers. It either returns a fully installed
// Handle or an error with nothing left registered.
//
// Errors match apperrors.ErrInvalidConfig, apperrors.ErrExporterConstruction,
// or apperrors.ErrAlreadyInitialized.
func Bootstrap(ctx context.Context, cfg Config, opts ...Option) (*Handle, error) {
	cfg = cfg.clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := newOptions(opts...)
	h := &Handle{
		cfg:       cfg,
		endpoints: DeriveEndpoints(cfg.CollectorBaseURL),
		logger:    o.logger,
		tracker:   &deliveryTracker{logger: o.logger},
	}
	if err := acquire(h); err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error

	// fail undoes everything registered so far, newest first, and frees the slot.
	fail := func(inErr error) (*Handle, error) {
		var err error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			err = errors.Join(err, shutdownFuncs[i](ctx))
		}
		if err != nil {
			h.logger.WarnContext(ctx, "telemetry rollback incomplete", "error", err)
		}
		release(h)
		return nil, inErr
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return fail(apperrors.NewExporterConstructionError("failed to create resource", "RESOURCE_FAILED", err))
	}
	h.resource = res

	spanExporter, err := o.newSpanExporter(ctx, h.endpoints.Traces, cfg.Headers)
	if err != nil {
		return fail(apperrors.NewExporterConstructionError("failed to create trace exporter", "TRACE_EXPORTER_FAILED", err))
	}
	shutdownFuncs = append(shutdownFuncs, spanExporter.Shutdown)

	metricExporter, err := o.newMetricExporter(ctx, h.endpoints.Metrics, cfg.Headers)
	if err != nil {
		return fail(apperrors.NewExporterConstructionError("failed to create metric exporter", "METRIC_EXPORTER_FAILED", err))
	}
	shutdownFuncs = append(shutdownFuncs, metricExporter.Shutdown)

	logExporter, err := o.newLogExporter(ctx, h.endpoints.Logs, cfg.Headers)
	if err != nil {
		return fail(apperrors.NewExporterConstructionError("failed to create log exporter", "LOG_EXPORTER_FAILED", err))
	}
	shutdownFuncs = append(shutdownFuncs, logExporter.Shutdown)

	// Providers take ownership of their exporters from here on.
	h.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(&trackedSpanExporter{SpanExporter: spanExporter, tracker: h.tracker}),
		sdktrace.WithResource(res),
	)
	h.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				&trackedMetricExporter{Exporter: metricExporter, tracker: h.tracker},
				sdkmetric.WithInterval(cfg.MetricExportInterval),
			),
		),
		sdkmetric.WithResource(res),
	)
	h.loggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(&trackedLogExporter{Exporter: logExporter, tracker: h.tracker})),
		sdklog.WithResource(res),
	)
	h.propagator = propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	shutdownFuncs = []func(context.Context) error{
		h.tracerProvider.Shutdown,
		h.meterProvider.Shutdown,
		h.loggerProvider.Shutdown,
	}

	if err := runtime.Start(runtime.WithMeterProvider(h.meterProvider)); err != nil {
		return fail(apperrors.NewExporterConstructionError("failed to start runtime metrics", "RUNTIME_METRICS_FAILED", err))
	}

	h.install()

	h.logger.InfoContext(ctx, "telemetry initialized",
		"service", cfg.ServiceName,
		"traces_endpoint", h.endpoints.Traces,
		"metrics_endpoint", h.endpoints.Metrics,
		"logs_endpoint", h.endpoints.Logs,
		"metric_interval", cfg.MetricExportInterval,
	)

	return h, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceInstanceIDKey.String(uuid.New().String()),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}

	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// install registers the providers as process-wide defaults and remembers
// the previous ones for Shutdown.
func (h *Handle) install() {
	h.previous = globals{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		loggerProvider: global.GetLoggerProvider(),
		propagator:     otel.GetTextMapPropagator(),
		errorHandler:   otel.GetErrorHandler(),
	}

	otel.SetTracerProvider(h.tracerProvider)
	otel.SetMeterProvider(h.meterProvider)
	global.SetLoggerProvider(h.loggerProvider)
	otel.SetTextMapPropagator(h.propagator)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		h.logger.Warn("opentelemetry error", "error", err)
	}))
}

// restore reinstalls the providers that install replaced. The otel defaults
// are swapped for noop providers instead, since they still delegate to h.
func (h *Handle) restore() {
	tp := h.previous.tracerProvider
	if tp == defaultTracerProvider {
		tp = tracenoop.NewTracerProvider()
	}
	mp := h.previous.meterProvider
	if mp == defaultMeterProvider {
		mp = metricnoop.NewMeterProvider()
	}
	lp := h.previous.loggerProvider
	if lp == defaultLoggerProvider {
		lp = lognoop.NewLoggerProvider()
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	global.SetLoggerProvider(lp)
	otel.SetTextMapPropagator(h.previous.propagator)
	otel.SetErrorHandler(h.previous.errorHandler)
}

// TracerProvider returns the SDK tracer provider owned by h.
func (h *Handle) TracerProvider() *sdktrace.TracerProvider {
	return h.tracerProvider
}

// MeterProvider returns the SDK meter provider owned by h.
func (h *Handle) MeterProvider() *sdkmetric.MeterProvider {
	return h.meterProvider
}

// LoggerProvider returns the SDK logger provider owned by h.
func (h *Handle) LoggerProvider() *sdklog.LoggerProvider {
	return h.loggerProvider
}

// Propagator returns the text map propagator installed with h.
func (h *Handle) Propagator() propagation.TextMapPropagator {
	return h.propagator
}

// Tracer returns a tracer with the given name
func (h *Handle) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return h.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter with the given name
func (h *Handle) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return h.meterProvider.Meter(name, opts...)
}

func (h *Handle) Resource() *resource.Resource {
	return h.resource
}

func (h *Handle) ServiceName() string {
	return h.cfg.ServiceName
}

func (h *Handle) Endpoints() Endpoints {
	return h.endpoints
}

// ExportFailures returns how many export attempts failed since Bootstrap.
func (h *Handle) ExportFailures() int64 {
	return h.tracker.failures.Load()
}

// Middleware returns an HTTP middleware that starts a server span named
// operation and records otelhttp server metrics on h's providers.
func (h *Handle) Middleware(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, operation,
			otelhttp.WithTracerProvider(h.tracerProvider),
			otelhttp.WithMeterProvider(h.meterProvider),
			otelhttp.WithPropagators(h.propagator),
		)
	}
}

// ForceFlush exports everything buffered in all three pipelines.
func (h *Handle) ForceFlush(ctx context.Context) error {
	var errs []error

	if err := h.tracerProvider.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("trace flush: %w", err))
	}
	if err := h.meterProvider.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter flush: %w", err))
	}
	if err := h.loggerProvider.ForceFlush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("log flush: %w", err))
	}

	return errors.Join(errs...)
}

// Shutdown unregisters the providers, flushes pending data, releases the
// exporters, and frees the process slot. Later calls return the first result.
//
// Providers that were set before Bootstrap are reinstalled. If none were,
// noop providers take their place. Tracers and meters obtained from the otel
// globals before the first Bootstrap stay bound to that handle's providers
// and record nothing once it is shut down.
func (h *Handle) Shutdown(ctx context.Context) error {
	if h == nil {
		return nil
	}

	h.shutdownOnce.Do(func() {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
			defer cancel()
		}

		h.restore()

		var errs []error
		if err := h.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
		if err := h.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
		if err := h.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
		}

		release(h)
		h.shutdownErr = errors.Join(errs...)

		h.logger.InfoContext(ctx, "telemetry shut down",
			"service", h.cfg.ServiceName,
			"export_failures", h.ExportFailures(),
		)
	})

	return h.shutdownErr
}
