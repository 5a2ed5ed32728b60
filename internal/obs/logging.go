// Package obs contains observability utilities: the structured logger, the
// in-memory log ring served to the operator UI, and Prometheus metrics.
package obs

import (
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps a config level name to a slog level. Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the agent logger. Records are written to w in the given
// format ("json" or "text") and, when buf is non-nil, mirrored into buf.
func NewLogger(w io.Writer, level, format string, buf *LogBuffer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	if buf != nil {
		h = buf.Handler(h)
	}
	return slog.New(h)
}

// Discard returns a logger that drops everything. Used by tests and as the
// fallback when a component is constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
