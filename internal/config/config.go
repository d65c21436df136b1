package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	apperrors "github.com/demoapps/otelhello/internal/errors"
	"github.com/demoapps/otelhello/internal/telemetry"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	DefaultCollectorURL         = "http://otel-collector.demo-apps.svc.cluster.local:4318"
	DefaultServiceName          = "go-service"
	DefaultMetricExportInterval = 60 * time.Second
	DefaultShutdownTimeout      = 5 * time.Second
)

type Config struct {
	Env            string
	ServiceName    string
	ServiceVersion string

	OtelExporterOTLPEndpoint string
	OtelExporterOTLPHeaders  map[string]string
	MetricExportInterval     time.Duration

	Port            string
	ShutdownTimeout time.Duration
}

type TelemetryFileConfig struct {
	ServiceName            string `yaml:"service_name"`
	CollectorURL           string `yaml:"collector_url"`
	MetricExportIntervalMs int    `yaml:"metric_export_interval_ms"`
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:                      os.Getenv("ENV"),
		ServiceName:              os.Getenv("OTEL_SERVICE_NAME"),
		ServiceVersion:           os.Getenv("SERVICE_VERSION"),
		OtelExporterOTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Port:                     os.Getenv("PORT"),
	}

	var err error
	if cfg.OtelExporterOTLPHeaders, err = ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); err != nil {
		return nil, err
	}
	if cfg.MetricExportInterval, err = millisEnv("OTEL_METRIC_EXPORT_INTERVAL"); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = millisEnv("SHUTDOWN_TIMEOUT_MS"); err != nil {
		return nil, err
	}

	// Values in config.yaml override the environment
	if err := cfg.LoadFromYAML("config.yaml"); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func (c *Config) LoadFromYAML(path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File not found is not an error
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlConfig struct {
		Telemetry TelemetryFileConfig `yaml:"telemetry"`
	}

	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlConfig.Telemetry.ServiceName != "" {
		c.ServiceName = yamlConfig.Telemetry.ServiceName
	}
	if yamlConfig.Telemetry.CollectorURL != "" {
		c.OtelExporterOTLPEndpoint = yamlConfig.Telemetry.CollectorURL
	}
	if yamlConfig.Telemetry.MetricExportIntervalMs != 0 {
		c.MetricExportInterval = time.Duration(yamlConfig.Telemetry.MetricExportIntervalMs) * time.Millisecond
	}

	return nil
}

func (c *Config) SetDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "1.0.0"
	}
	if c.OtelExporterOTLPEndpoint == "" {
		c.OtelExporterOTLPEndpoint = DefaultCollectorURL
	}
	if c.MetricExportInterval == 0 {
		c.MetricExportInterval = DefaultMetricExportInterval
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Telemetry returns the resolved telemetry configuration.
func (c *Config) Telemetry() telemetry.Config {
	return telemetry.Config{
		ServiceName:          c.ServiceName,
		ServiceVersion:       c.ServiceVersion,
		Environment:          c.Env,
		CollectorBaseURL:     c.OtelExporterOTLPEndpoint,
		MetricExportInterval: c.MetricExportInterval,
		Headers:              c.OtelExporterOTLPHeaders,
	}
}

func (c *Config) validate() error {
	if err := c.Telemetry().Validate(); err != nil {
		return err
	}
	if port, err := cast.ToIntE(c.Port); err != nil || port <= 0 || port > 65535 {
		return apperrors.NewInvalidConfigError("PORT must be a valid TCP port: "+c.Port, "PORT_INVALID")
	}
	if c.ShutdownTimeout < 0 {
		return apperrors.NewInvalidConfigError("SHUTDOWN_TIMEOUT_MS must not be negative", "SHUTDOWN_TIMEOUT_INVALID")
	}
	return nil
}

// ParseHeaders parses the OTLP header list format "k1=v1,k2=v2".
// Values are URL-decoded.
func ParseHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, apperrors.NewInvalidConfigError("malformed OTEL_EXPORTER_OTLP_HEADERS entry: "+pair, "HEADERS_INVALID")
		}

		decoded, err := url.QueryUnescape(strings.TrimSpace(value))
		if err != nil {
			appErr := apperrors.NewInvalidConfigError("malformed OTEL_EXPORTER_OTLP_HEADERS value for "+key, "HEADERS_INVALID")
			appErr.Err = err
			return nil, appErr
		}
		headers[key] = decoded
	}

	return headers, nil
}

// millisEnv reads an integer millisecond duration. Unset means zero.
func millisEnv(key string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}

	ms, err := cast.ToInt64E(raw)
	if err != nil {
		appErr := apperrors.NewInvalidConfigError(key+" must be an integer number of milliseconds", "DURATION_INVALID")
		appErr.Err = err
		return 0, appErr
	}
	if ms <= 0 {
		return 0, apperrors.NewInvalidConfigError(key+" must be positive", "DURATION_INVALID")
	}

	return time.Duration(ms) * time.Millisecond, nil
}
