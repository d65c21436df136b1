package telemetry

import (
	"maps"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/demoapps/otelhello/internal/errors"
)

const (
	tracesPath  = "/v1/traces"
	metricsPath = "/v1/metrics"
	logsPath    = "/v1/logs"
)

// Config is the resolved telemetry configuration. Bootstrap takes it by
// value and never mutates it.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// CollectorBaseURL is the OTLP/HTTP base, e.g. http://otel-collector:4318.
	CollectorBaseURL string

	// MetricExportInterval is the period of the metric reader.
	MetricExportInterval time.Duration

	// Headers are sent with every export request.
	Headers map[string]string
}

// Endpoints are the per-signal OTLP/HTTP URLs derived from the base URL.
type Endpoints struct {
	Traces  string
	Metrics string
	Logs    string
}

// DeriveEndpoints appends the OTLP signal paths to base. A single trailing
// slash on base is dropped so the join never yields "//v1".
func DeriveEndpoints(base string) Endpoints {
	base = strings.TrimSuffix(base, "/")
	return Endpoints{
		Traces:  base + tracesPath,
		Metrics: base + metricsPath,
		Logs:    base + logsPath,
	}
}

// Validate checks the constraints Bootstrap relies on.
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return apperrors.NewInvalidConfigError("service name is required", "SERVICE_NAME_REQUIRED")
	}
	if c.MetricExportInterval <= 0 {
		return apperrors.NewInvalidConfigError("metric export interval must be positive", "METRIC_INTERVAL_INVALID")
	}

	u, err := url.Parse(c.CollectorBaseURL)
	if err != nil {
		appErr := apperrors.NewInvalidConfigError("collector base URL is not parseable", "COLLECTOR_URL_INVALID")
		appErr.Err = err
		return appErr
	}
	if !u.IsAbs() || u.Host == "" {
		return apperrors.NewInvalidConfigError("collector base URL must be absolute: "+c.CollectorBaseURL, "COLLECTOR_URL_INVALID")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperrors.NewInvalidConfigError("collector base URL must use http or https: "+c.CollectorBaseURL, "COLLECTOR_URL_SCHEME")
	}

	return nil
}

// clone returns a copy that shares no mutable state with c.
func (c Config) clone() Config {
	c.Headers = maps.Clone(c.Headers)
	return c
}
