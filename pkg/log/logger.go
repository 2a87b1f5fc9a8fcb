// Package log provides structured logging utilities for the purepool services.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger with the specified configuration
func New(service, version, level, format string) *Logger {
	var handler slog.Handler

	// Parse log level
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// Create handler based on format
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	// Create base logger with service context
	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// WithContext returns a logger with additional context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	// Extract common context values if they exist
	logger := l.Logger

	// Add request ID if available
	if reqID := ctx.Value("request_id"); reqID != nil {
		logger = logger.With("request_id", reqID)
	}

	// Add trace ID if available
	if traceID := ctx.Value("trace_id"); traceID != nil {
		logger = logger.With("trace_id", traceID)
	}

	return &Logger{
		Logger:  logger,
		service: l.service,
		version: l.version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithNetwork returns a logger with a network field
func (l *Logger) WithNetwork(network string) *Logger {
	return l.WithFields("network", network)
}

// WithMiner returns a logger with miner-specific fields
func (l *Logger) WithMiner(address, worker string) *Logger {
	return l.WithFields("miner_address", address, "worker_name", worker)
}

// WithBlock returns a logger with block-specific fields
func (l *Logger) WithBlock(network string, height int64) *Logger {
	return l.WithFields("network", network, "block_height", height)
}

// WithSolution returns a logger with solution-specific fields
func (l *Logger) WithSolution(bibleHash string) *Logger {
	return l.WithFields("bible_hash", bibleHash)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// Performance logging helpers

// LogDuration logs the duration of an operation
func (l *Logger) LogDuration(operation string, duration int64) {
	l.Info("operation completed",
		"operation", operation,
		"duration_ns", duration,
		"duration_ms", float64(duration)/1e6,
	)
}

// LogThroughput logs throughput metrics
func (l *Logger) LogThroughput(operation string, count int64, duration int64) {
	throughput := float64(count) / (float64(duration) / 1e9) // ops per second
	l.Info("throughput metrics",
		"operation", operation,
		"count", count,
		"duration_ns", duration,
		"throughput_ops_sec", throughput,
	)
}

// Pool-specific logging helpers

// LogSolutionAccepted logs accepted solution submissions
func (l *Logger) LogSolutionAccepted(network, minerAddr, workerName, bibleHash string, copies int) {
	l.Info("solution accepted",
		"network", network,
		"miner_address", minerAddr,
		"worker_name", workerName,
		"bible_hash", bibleHash,
		"copies", copies,
	)
}

// LogSolutionRejected logs rejected solution submissions
func (l *Logger) LogSolutionRejected(network, minerAddr, workerName, reason string) {
	l.Info("solution rejected",
		"network", network,
		"miner_address", minerAddr,
		"worker_name", workerName,
		"reason", reason,
	)
}

// LogBlockFound logs when a new pool block is discovered on chain
func (l *Logger) LogBlockFound(network, blockHash string, blockHeight int64, subsidy float64) {
	l.Info("pool block found",
		"network", network,
		"block_hash", blockHash,
		"block_height", blockHeight,
		"subsidy", subsidy,
	)
}

// LogShareout logs the settlement of a matured block
func (l *Logger) LogShareout(network string, blockHeight int64, shares int64, miners int) {
	l.Info("block shared out",
		"network", network,
		"block_height", blockHeight,
		"shares", shares,
		"miners", miners,
	)
}

// LogPayout logs a completed miner payout
func (l *Logger) LogPayout(network, minerAddr, txID string, amount float64) {
	l.Info("payout sent",
		"network", network,
		"miner_address", minerAddr,
		"tx_id", txID,
		"amount", amount,
	)
}
