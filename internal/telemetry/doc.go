// Package telemetry bootstraps OpenTelemetry for the process.
//
// Bootstrap builds three OTLP/HTTP pipelines (traces, metrics, logs) against
// a single collector base URL, attaches one resource to all of them, and
// installs the providers as the process-wide defaults. It returns a Handle
// that owns the exporters and the periodic metric reader. Only one Handle
// may be active per process; Shutdown releases it.
//
// Export failures after startup are logged and counted on the Handle. They
// never propagate to request handling.
package telemetry
