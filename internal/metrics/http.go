package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope for application metrics.
const ScopeName = "otelhello/http"

// Metrics holds the application instruments. Build it from the meter of the
// telemetry handle so recordings go to that handle's pipeline.
type Metrics struct {
	GreetingsTotal   metric.Int64Counter
	GreetingDuration metric.Float64Histogram
}

func New(meter metric.Meter) (*Metrics, error) {
	greetingsTotal, err := meter.Int64Counter(
		"http.greetings.total",
		metric.WithDescription("Total number of greetings served"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	greetingDuration, err := meter.Float64Histogram(
		"http.greeting.duration",
		metric.WithDescription("Duration of greeting handler"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		GreetingsTotal:   greetingsTotal,
		GreetingDuration: greetingDuration,
	}, nil
}

// RecordGreeting records one served greeting. Safe on a nil receiver.
func (m *Metrics) RecordGreeting(ctx context.Context, method string, seconds float64) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("http.method", method))
	m.GreetingsTotal.Add(ctx, 1, attrs)
	m.GreetingDuration.Record(ctx, seconds, attrs)
}
