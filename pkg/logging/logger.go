// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithExecution returns a child of logger tagged with a node execution ID.
func WithExecution(logger zerolog.Logger, executionID string) zerolog.Logger {
	return logger.With().Str("execution_id", executionID).Logger()
}

// Log Level Guidelines:
//
// Debug: request flow
//   - Web service call built and sent (path, method, url, scheme)
//   - Page fetched (page, offset, rows, fetched, total)
//   - Named credential resolved
//
// Info: normal operation events
//   - Paged fetch finished
//   - Node execution finished
//   - Server startup/shutdown
//
// Warn: degraded but continuing
//   - Record count unavailable, total unknown
//   - Web service call rejected (401/403/5xx)
//   - Paged fetch canceled
//
// Error: execution failures
//   - Credential resolution failed
//   - Transport failures
//   - Node execution failed
//
// Context Fields:
//   - component: ws-client, pagination, node, wsnode
//   - execution_id: node execution
//   - fetch_id: paged fetch handle
//   - path: web service method path
//   - status: HTTP status code
//   - error_class: config, auth, service, network
