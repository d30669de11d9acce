// Package logger provides structured logging with automatic redaction of
// sensitive values.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Pipeline stage enter/exit logging with durations
//   - Gate evaluation and hot-reload logging
//   - Automatic secret redaction
//   - Contextual logging with request tracing
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"
)

// DefaultLogger is the global structured logger instance.
// It is safe for concurrent use and initialized with slog.LevelInfo by default.
var DefaultLogger *slog.Logger

func init() {
	// Check LOG_LEVEL environment variable
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(NewContextHandler(handler))
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(NewContextHandler(handler))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
// This is a convenience wrapper around SetLevel for command-line verbose flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// StageEnter logs entry into a pipeline stage.
func StageEnter(commandID, stage string, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs, "command_id", commandID, "stage", stage)
	allAttrs = append(allAttrs, attrs...)
	Debug("stage enter", allAttrs...)
}

// StageExit logs completion of a pipeline stage with its duration.
// If err is non-nil the stage is logged at error level.
func StageExit(commandID, stage string, duration time.Duration, err error, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"command_id", commandID,
		"stage", stage,
		"duration", duration,
	)
	allAttrs = append(allAttrs, attrs...)
	if err != nil {
		allAttrs = append(allAttrs, "error", err)
		Error("stage failed", allAttrs...)
		return
	}
	Debug("stage exit", allAttrs...)
}

// GateResult logs the outcome of a gate evaluation.
func GateResult(gateID string, passed bool, score float64, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"gate_id", gateID,
		"passed", passed,
		"score", score,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("gate evaluated", allAttrs...)
}

// ResourceReload logs a hot-reload event for a registry entry.
func ResourceReload(kind, id, change string, attrs ...any) {
	allAttrs := make([]any, 0, 8+len(attrs))
	allAttrs = append(allAttrs,
		"kind", kind,
		"id", id,
		"change", change,
	)
	allAttrs = append(allAttrs, attrs...)
	Info("resource reloaded", allAttrs...)
}

// secretPatterns contains compiled regular expressions for detecting
// sensitive data in log output.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),     // OpenAI-style API keys
	regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),   // Google API keys
	regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`), // Bearer tokens
	regexp.MustCompile(`ghp_[a-zA-Z0-9]{36}`),     // GitHub tokens
}

// RedactSensitiveData removes API keys and other sensitive information from
// strings. It replaces matched patterns with a redacted form that preserves
// the first few characters for debugging while hiding the sensitive portion.
//
// This function is safe for concurrent use as it only reads from the compiled
// patterns.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			// Show first 4 characters for debugging context
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}
