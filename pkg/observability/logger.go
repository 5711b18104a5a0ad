// Package observability provides structured logging and Prometheus
// metrics for summarization runs.
package observability

import (
	"io"
	"log/slog"
	"os"
)

// LogConfig controls logger construction.
type LogConfig struct {
	Level slog.Level
	JSON  bool
}

// NewLogger builds a logger writing to stderr.
func NewLogger(cfg LogConfig) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	return slog.New(handler)
}

// NopLogger returns a logger that discards everything. Used as the
// default when a caller supplies no logger.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
