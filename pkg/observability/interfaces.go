// Package observability provides the logging and metrics surface shared by
// every component of the canvas sync server. Components receive a Logger and
// a MetricsClient rather than reaching for package-level state, so tests can
// substitute no-op implementations.
package observability

import "time"

// LogLevel defines log message severity
type LogLevel string

// Log levels
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelFatal LogLevel = "FATAL"
)

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})

	// WithPrefix returns a derived logger whose messages carry the prefix
	WithPrefix(prefix string) Logger
}

// MetricsClient defines the interface for metrics collection
type MetricsClient interface {
	IncrementCounter(name string, value float64)
	RecordGauge(name string, value float64)
	RecordHistogram(name string, value float64)
	RecordLatency(operation string, duration time.Duration)

	// Counters returns a point-in-time copy of all counter values,
	// used by the health endpoint
	Counters() map[string]float64

	Close() error
}
