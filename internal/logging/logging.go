// Package logging provides structured logging for the GCR simulator using
// Go's standard library slog package.
//
// Features:
//   - Structured JSON logging for ensemble/batch runs
//   - Human-readable text logging for development
//   - Contextual logging with run IDs
//   - Sensitive data redaction
//
// Usage:
//
//	logger := logging.New(logging.Config{
//	    Level:  slog.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("run starting", slog.Int("years", 50))
//
//	ctx := logging.WithRunID(ctx, runID)
//	logging.FromContext(ctx).Info("tick complete")
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// =============================================================================
// Log Format Constants
// =============================================================================

// Format specifies the log output format.
type Format string

const (
	// FormatJSON outputs structured JSON logs, ideal for batch runs and
	// log aggregation.
	FormatJSON Format = "json"

	// FormatText outputs human-readable text logs, ideal for development.
	FormatText Format = "text"
)

// =============================================================================
// Context Keys
// =============================================================================

type contextKey string

const (
	// loggerKey is the context key for storing the logger.
	loggerKey contextKey = "gcrsim_logger"

	// runIDKey is the context key for simulation run correlation IDs.
	runIDKey contextKey = "gcrsim_run_id"
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	// Defaults to slog.LevelInfo if zero.
	Level slog.Level

	// Format specifies the output format (json or text).
	// Defaults to FormatJSON if empty.
	Format Format

	// Output is the destination for log output.
	// Defaults to os.Stdout if nil.
	Output io.Writer

	// AddSource includes source file and line number in log output.
	AddSource bool

	// TimeFormat specifies the time format for text output.
	// Defaults to time.RFC3339 if empty. Ignored for JSON format.
	TimeFormat string

	// AppName is included in every log entry.
	AppName string

	// Environment is included in every log entry (development, batch, test).
	Environment string
}

// applyDefaults fills in default values for unset fields.
func (c *Config) applyDefaults() {
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Output == nil {
		c.Output = os.Stdout
	}
	if c.TimeFormat == "" {
		c.TimeFormat = time.RFC3339
	}
	if c.AppName == "" {
		c.AppName = "gcrsim"
	}
}

// =============================================================================
// Logger Construction
// =============================================================================

// New creates a new structured logger with the given configuration.
func New(cfg Config) *slog.Logger {
	cfg.applyDefaults()

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Redact sensitive fields
			if isSensitiveKey(a.Key) {
				return slog.String(a.Key, "[REDACTED]")
			}

			// Format time consistently for text output
			if a.Key == slog.TimeKey && cfg.Format == FormatText {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format(cfg.TimeFormat))
				}
			}

			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(cfg.Output, opts)
	default:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	logger := slog.New(handler)
	if cfg.AppName != "" {
		logger = logger.With(slog.String("app", cfg.AppName))
	}
	if cfg.Environment != "" {
		logger = logger.With(slog.String("env", cfg.Environment))
	}
	return logger
}

// isSensitiveKey reports whether an attribute should be redacted. The
// simulator carries no user data, but connection strings and credentials
// for the results store and event bus flow through configuration.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range []string{"password", "secret", "token", "apikey", "api_key", "dsn", "credential"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// =============================================================================
// Context Helpers
// =============================================================================

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in the context, enriched with the
// run ID when present. Falls back to slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerKey).(*slog.Logger)
	if !ok {
		logger = slog.Default()
	}
	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		logger = logger.With(slog.String("runId", runID))
	}
	return logger
}

// WithRunID stores a simulation run ID in the context for correlation.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext returns the run ID stored in the context, if any.
func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)
	return runID
}
