package errors

import (
	"fmt"
)

// ErrorType defines the category of the error
type ErrorType string

const (
	ErrorTypeInvalidConfig        ErrorType = "INVALID_CONFIG"
	ErrorTypeExporterConstruction ErrorType = "EXPORTER_CONSTRUCTION_FAILED"
	ErrorTypeAlreadyInitialized   ErrorType = "ALREADY_INITIALIZED"
	ErrorTypeExportDelivery       ErrorType = "EXPORT_DELIVERY_FAILED"
)

// Sentinels for errors.Is. Matching is by Type only.
var (
	ErrInvalidConfig        = &AppError{Type: ErrorTypeInvalidConfig, Message: "invalid telemetry config"}
	ErrExporterConstruction = &AppError{Type: ErrorTypeExporterConstruction, Message: "exporter construction failed"}
	ErrAlreadyInitialized   = &AppError{Type: ErrorTypeAlreadyInitialized, Message: "telemetry already initialized"}
	ErrExportDelivery       = &AppError{Type: ErrorTypeExportDelivery, Message: "export delivery failed"}
)

// AppError represents a structured error for the application
type AppError struct {
	Type      ErrorType
	Message   string
	ErrorCode string
	Recovery  string
	Err       error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *AppError of the same type.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// Code returns the application-specific error code
func (e *AppError) Code() string {
	return e.ErrorCode
}

// RecoverySuggestion returns the suggestion on how to recover from the error
func (e *AppError) RecoverySuggestion() string {
	return e.Recovery
}

// IsFatal reports whether the process should abort at startup.
// Delivery failures happen at steady state and are only logged.
func (e *AppError) IsFatal() bool {
	switch e.Type {
	case ErrorTypeInvalidConfig, ErrorTypeExporterConstruction, ErrorTypeAlreadyInitialized:
		return true
	default:
		return false
	}
}

// NewInvalidConfigError creates a new config validation error
func NewInvalidConfigError(message string, errorCode string) *AppError {
	return &AppError{
		Type:      ErrorTypeInvalidConfig,
		Message:   message,
		ErrorCode: errorCode,
		Recovery:  "Check the OTEL_* environment variables and config.yaml.",
	}
}

// NewExporterConstructionError wraps a failure to build an exporter or provider
func NewExporterConstructionError(message string, errorCode string, err error) *AppError {
	return &AppError{
		Type:      ErrorTypeExporterConstruction,
		Message:   message,
		ErrorCode: errorCode,
		Recovery:  "Verify the collector endpoint, headers, and TLS settings.",
		Err:       err,
	}
}

// NewAlreadyInitializedError is returned on a second bootstrap in one process
func NewAlreadyInitializedError(serviceName string) *AppError {
	return &AppError{
		Type:      ErrorTypeAlreadyInitialized,
		Message:   fmt.Sprintf("telemetry already initialized for service %q", serviceName),
		ErrorCode: "TELEMETRY_ALREADY_INITIALIZED",
		Recovery:  "Pass the existing handle instead of bootstrapping again.",
	}
}

// NewExportDeliveryError wraps a failed flush to the collector
func NewExportDeliveryError(signal string, err error) *AppError {
	return &AppError{
		Type:      ErrorTypeExportDelivery,
		Message:   fmt.Sprintf("failed to deliver %s to collector", signal),
		ErrorCode: "EXPORT_" + signalCode(signal) + "_FAILED",
		Err:       err,
	}
}

func signalCode(signal string) string {
	switch signal {
	case "traces":
		return "TRACES"
	case "metrics":
		return "METRICS"
	case "logs":
		return "LOGS"
	default:
		return "UNKNOWN"
	}
}
