package obs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogBuffer is a thread-safe ring buffer for log entries
type LogBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	cap     int
}

// NewLogBuffer creates a new log buffer with the given capacity
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &LogBuffer{
		entries: make([]LogEntry, 0, capacity),
		cap:     capacity,
	}
}

// Add adds a log entry to the buffer
func (lb *LogBuffer) Add(level, message string) {
	lb.add(LogEntry{Timestamp: time.Now(), Level: level, Message: message})
}

func (lb *LogBuffer) add(entry LogEntry) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	if len(lb.entries) >= lb.cap {
		// Shift everything left by 1, drop oldest
		copy(lb.entries, lb.entries[1:])
		lb.entries[len(lb.entries)-1] = entry
	} else {
		lb.entries = append(lb.entries, entry)
	}
}

// Entries returns all entries, optionally filtered by level
func (lb *LogBuffer) Entries(levels []string) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if len(levels) == 0 {
		result := make([]LogEntry, len(lb.entries))
		copy(result, lb.entries)
		return result
	}

	levelSet := make(map[string]bool)
	for _, l := range levels {
		levelSet[strings.ToLower(l)] = true
	}

	result := make([]LogEntry, 0)
	for _, e := range lb.entries {
		if levelSet[e.Level] {
			result = append(result, e)
		}
	}
	return result
}

// Clear removes all entries
func (lb *LogBuffer) Clear() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries = lb.entries[:0]
}

// Handler wraps next so every record it accepts is also captured in the
// buffer, flattened to "message key=value ..." text.
func (lb *LogBuffer) Handler(next slog.Handler) slog.Handler {
	return &teeHandler{next: next, buf: lb}
}

type teeHandler struct {
	next   slog.Handler
	buf    *LogBuffer
	attrs  []slog.Attr
	groups []string
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	prefix := strings.Join(h.groups, ".")
	write := func(a slog.Attr) {
		key := a.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		fmt.Fprintf(&sb, " %s=%v", key, a.Value.Resolve())
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.buf.add(LogEntry{Timestamp: ts, Level: strings.ToLower(r.Level.String()), Message: sb.String()})
	return h.next.Handle(ctx, r)
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &teeHandler{next: h.next.WithAttrs(attrs), buf: h.buf, attrs: merged, groups: h.groups}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	groups := append(append([]string{}, h.groups...), name)
	return &teeHandler{next: h.next.WithGroup(name), buf: h.buf, attrs: h.attrs, groups: groups}
}
