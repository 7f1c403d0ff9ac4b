// Package logging configures zerolog for the GitHub client and derives
// the per-component loggers used across the module.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelTrace adds the request and response headers of every exchange.
	LevelTrace LogLevel = "trace"

	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Component names attached to log lines as the "component" field.
const (
	ComponentClient     = "github-client"
	ComponentRateLimit  = "ratelimit"
	ComponentPagination = "pagination"
	ComponentConnector  = "connector"
	ComponentCache      = "cache"
	ComponentCLI        = "gh-walk"
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

// Setup configures the global zerolog logger. Component loggers created
// afterwards inherit its output.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

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

// ParseLevel validates a level name from flags or configuration.
func ParseLevel(s string) (LogLevel, error) {
	switch level := LogLevel(strings.ToLower(strings.TrimSpace(s))); level {
	case LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError:
		return level, nil
	case "warning":
		return LevelWarn, nil
	default:
		return "", fmt.Errorf("invalid log level %q (want trace, debug, info, warn or error)", s)
	}
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "trace":
		return zerolog.TraceLevel
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

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Log Level Guidelines:
//
// Trace: Wire-level detail
//   - Full request and response headers
//
// Debug: Request flow
//   - Request dispatch (method, url, bucket)
//   - Page fetches and next links
//   - Cache hits, misses and revalidations
//   - Rate limit header updates
//
// Info: Normal operation events
//   - 202 "still generating" responses
//   - Pre-request rate limit waits
//   - Server startup/shutdown
//
// Warn: Recoverable conditions
//   - Connection retries and stale-cache 404 retries
//   - Secondary rate limit waits
//   - Exhausted quota observed
//   - Cache errors (request continues uncached)
//
// Error: Failures surfaced to the user
//   - Failed walks in the CLI
//   - Configuration errors
//
// Context Fields:
//   - component: emitting component (see Component constants)
//   - url: request URL
//   - bucket: rate limit bucket (core, search, graphql, integration_manifest)
//   - status: HTTP status code
//   - error_class: not_found, rate_limit, abuse_limit, otp_required, network, ...
//   - remaining / limit / reset_at: quota state
//   - etag: validator used for conditional requests
