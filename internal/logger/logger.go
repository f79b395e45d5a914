package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// Type alias for slog.Level for easier usage
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug // -4
	LevelInfo    = slog.LevelInfo  // 0
	LevelWarning = slog.LevelWarn  // 4
	LevelError   = slog.LevelError // 8
	LevelFatal   = slog.Level(12)  // 12
)

var (
	Logger          *slog.Logger
	errorSampleRate int32 = 1 // Log every warning/error by default (configurable via ERROR_SAMPLE_RATE)
	programLevel          = new(slog.LevelVar)
)

// Error counters for metrics endpoint (incremented regardless of sampling)
var (
	TotalErrors    atomic.Int64
	TotalWarnings  atomic.Int64
	Total5xxErrors atomic.Int64
	Total4xxErrors atomic.Int64
	Total400Errors atomic.Int64
	Total404Errors atomic.Int64
	Total413Errors atomic.Int64
)

// Split counters for metrics endpoint
var (
	RunsCompleted atomic.Int64
	RunsPartial   atomic.Int64
	RulesFailed   atomic.Int64
	RulesSkipped  atomic.Int64
	FilesWritten  atomic.Int64
	RowsWritten   atomic.Int64
)

func init() {
	programLevel.Set(slog.LevelInfo)

	// Get log level from environment variable (default: INFO)
	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "INFO"
	}

	level, err := ParseLevel(levelStr)
	if err != nil {
		level = slog.LevelInfo
	}
	programLevel.Set(level)

	// Set ERROR_SAMPLE_RATE=100 to log 1% of warnings and errors
	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			atomic.StoreInt32(&errorSampleRate, int32(rate))
		}
	}

	setupJSONLogging()
}

// setupJSONLogging configures standard JSON logging to stdout
func setupJSONLogging() {
	opts := &slog.HandlerOptions{
		Level: programLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// SetLevel sets the minimum log level for the logger
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// SetSampleRate logs 1 out of every rate warnings and errors. Values below 1 are ignored.
func SetSampleRate(rate int) {
	if rate > 0 {
		atomic.StoreInt32(&errorSampleRate, int32(rate))
	}
}

// ParseLevel converts a string level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// shouldSample returns true if we should log this message
func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// ============================================================================
// Logging Functions
// ============================================================================

// Trace logs a trace-level message (never sampled)
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs a debug-level message (never sampled)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message (never sampled)
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning-level message WITH SAMPLING
// Metrics counter is always incremented, but log output is sampled
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs an error-level message WITH SAMPLING
// Metrics counter is always incremented, but log output is sampled
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs a fatal-level message and exits (never sampled)
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// ============================================================================
// HTTP-Specific Helpers
// ============================================================================

// ErrorHttp5xx increments the 5xx counters
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx increments the 4xx counters
func WarnHttp4xx(status int) {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)

	// Track specific common 4xx codes
	switch status {
	case 400:
		Total400Errors.Add(1)
	case 404:
		Total404Errors.Add(1)
	case 413:
		Total413Errors.Add(1)
	}
}

// ============================================================================
// Metrics
// ============================================================================

// Metrics is a point-in-time copy of the counters
type Metrics struct {
	TotalErrors    int64  `json:"total_errors"`
	TotalWarnings  int64  `json:"total_warnings"`
	Total5xxErrors int64  `json:"total_5xx_errors"`
	Total4xxErrors int64  `json:"total_4xx_errors"`
	Total400Errors int64  `json:"total_400_errors"`
	Total404Errors int64  `json:"total_404_errors"`
	Total413Errors int64  `json:"total_413_errors"`
	RunsCompleted  int64  `json:"runs_completed"`
	RunsPartial    int64  `json:"runs_partial"`
	RulesFailed    int64  `json:"rules_failed"`
	RulesSkipped   int64  `json:"rules_skipped"`
	FilesWritten   int64  `json:"files_written"`
	RowsWritten    int64  `json:"rows_written"`
	LogLevel       string `json:"log_level"`
	SampleRate     int32  `json:"error_sample_rate"`
}

// Snapshot reads every counter
func Snapshot() Metrics {
	return Metrics{
		TotalErrors:    TotalErrors.Load(),
		TotalWarnings:  TotalWarnings.Load(),
		Total5xxErrors: Total5xxErrors.Load(),
		Total4xxErrors: Total4xxErrors.Load(),
		Total400Errors: Total400Errors.Load(),
		Total404Errors: Total404Errors.Load(),
		Total413Errors: Total413Errors.Load(),
		RunsCompleted:  RunsCompleted.Load(),
		RunsPartial:    RunsPartial.Load(),
		RulesFailed:    RulesFailed.Load(),
		RulesSkipped:   RulesSkipped.Load(),
		FilesWritten:   FilesWritten.Load(),
		RowsWritten:    RowsWritten.Load(),
		LogLevel:       GetLevel().String(),
		SampleRate:     atomic.LoadInt32(&errorSampleRate),
	}
}
