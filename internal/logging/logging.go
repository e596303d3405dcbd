// Package logging provides the structured logging conventions shared by
// every component.
//
// Loggers are dependency-injected, never global. Each component scopes its
// logger once at construction with slog.With, and falls back to a discard
// logger when none is provided. Global configuration (output format, level,
// destination) belongs only in main(); components must never call
// slog.SetDefault or touch the default logger.
//
// Logging is intentionally sparse. Per-item work (matcher evaluation, the
// d.multicall2 result stream, metafile walks) must not log; the intended log
// points are lifecycle boundaries such as dialing a connection, a scheduler
// tick, or a load.raw submission.
package logging

import (
	"context"
	"log/slog"
)

// discardHandler is a handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
// Use this as a default when no logger is provided.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns the provided logger if non-nil, otherwise returns a discard logger.
// This is the standard pattern for optional logger parameters:
//
//	func NewComponent(logger *slog.Logger) *Component {
//	    logger = logging.Default(logger)
//	    return &Component{logger: logger.With("component", "name")}
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
