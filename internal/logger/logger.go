package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"

	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/demoapps/otelhello"

// New creates a new slog.Logger based on the environment.
// For "production", it returns a JSON handler.
// For other environments, it returns a text handler with debug level.
// When lp is non-nil, every record is also emitted to lp.
func New(env string, lp log.LoggerProvider) *slog.Logger {
	return NewWithWriter(os.Stdout, env, lp)
}

// NewWithWriter is New with an explicit destination for the local handler.
func NewWithWriter(w io.Writer, env string, lp log.LoggerProvider) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, nil)
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	if lp == nil {
		return slog.New(handler)
	}
	return slog.New(&otelHandler{handler: handler, logger: lp.Logger(scopeName)})
}

// WithTraceContext returns a slog.Attr containing trace_id and span_id if available in the context.
func WithTraceContext(ctx context.Context) slog.Attr {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return slog.Attr{}
	}
	sc := span.SpanContext()
	return slog.Group("trace",
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

type otelHandler struct {
	handler slog.Handler
	logger  log.Logger
	attrs   []log.KeyValue
	groups  []openGroup
}

// openGroup is a WithGroup scope and the attributes added inside it.
type openGroup struct {
	name  string
	attrs []log.KeyValue
}

func (h *otelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.handler.Enabled(ctx, l)
}

func (h *otelHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always log locally first
	if err := h.handler.Handle(ctx, r); err != nil {
		return err
	}

	var otelRecord log.Record
	otelRecord.SetTimestamp(r.Time)
	otelRecord.SetBody(log.StringValue(r.Message))
	otelRecord.SetSeverity(toSeverity(r.Level))
	otelRecord.SetSeverityText(r.Level.String())

	recordAttrs := make([]log.KeyValue, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		recordAttrs = append(recordAttrs, toKeyValue(a))
		return true
	})
	otelRecord.AddAttributes(h.nest(recordAttrs)...)

	// The span context in ctx links the record to the active trace.
	h.logger.Emit(ctx, otelRecord)
	return nil
}

// nest places kvs in the innermost open group and wraps each group in a map
// value. Groups left empty are dropped, as slog does.
func (h *otelHandler) nest(kvs []log.KeyValue) []log.KeyValue {
	for i := len(h.groups) - 1; i >= 0; i-- {
		g := h.groups[i]
		inner := append(slices.Clone(g.attrs), kvs...)
		kvs = nil
		if len(inner) > 0 {
			kvs = []log.KeyValue{{Key: g.name, Value: log.MapValue(inner...)}}
		}
	}
	return append(slices.Clone(h.attrs), kvs...)
}

func (h *otelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	kvs := make([]log.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		kvs = append(kvs, toKeyValue(a))
	}

	next := &otelHandler{
		handler: h.handler.WithAttrs(attrs),
		logger:  h.logger,
		attrs:   h.attrs,
		groups:  slices.Clone(h.groups),
	}
	if n := len(next.groups); n > 0 {
		last := next.groups[n-1]
		next.groups[n-1] = openGroup{name: last.name, attrs: append(slices.Clone(last.attrs), kvs...)}
	} else {
		next.attrs = append(slices.Clone(h.attrs), kvs...)
	}
	return next
}

func (h *otelHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &otelHandler{
		handler: h.handler.WithGroup(name),
		logger:  h.logger,
		attrs:   h.attrs,
		groups:  append(slices.Clone(h.groups), openGroup{name: name}),
	}
}

func toKeyValue(a slog.Attr) log.KeyValue {
	return log.KeyValue{Key: a.Key, Value: toOTelValue(a.Value)}
}

// Map slog level to OTel severity
func toSeverity(l slog.Level) log.Severity {
	switch {
	case l >= slog.LevelError:
		return log.SeverityError
	case l >= slog.LevelWarn:
		return log.SeverityWarn
	case l >= slog.LevelInfo:
		return log.SeverityInfo
	default:
		return log.SeverityDebug
	}
}

func toOTelValue(v slog.Value) log.Value {
	switch v.Kind() {
	case slog.KindString:
		return log.StringValue(v.String())
	case slog.KindInt64:
		return log.Int64Value(v.Int64())
	case slog.KindBool:
		return log.BoolValue(v.Bool())
	case slog.KindFloat64:
		return log.Float64Value(v.Float64())
	case slog.KindDuration:
		return log.Int64Value(int64(v.Duration()))
	case slog.KindGroup:
		group := v.Group()
		kvs := make([]log.KeyValue, 0, len(group))
		for _, a := range group {
			kvs = append(kvs, log.KeyValue{Key: a.Key, Value: toOTelValue(a.Value)})
		}
		return log.MapValue(kvs...)
	case slog.KindLogValuer:
		return toOTelValue(v.Resolve())
	default:
		return log.StringValue(v.String())
	}
}
