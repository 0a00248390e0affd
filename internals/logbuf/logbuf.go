// Package logbuf buffers per-request log entries so a whole request can be
// emitted as a single structured record when it finishes.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

type Entry struct {
	Level   string
	Message string
	At      time.Time
	Attrs   []slog.Attr
}

type Logger struct {
	mu      sync.Mutex
	attrs   []slog.Attr
	entries []Entry
}

func New(attrs ...slog.Attr) *Logger {
	return &Logger{attrs: attrs}
}

// With returns a logger sharing this one's buffer with extra base attrs.
func (l *Logger) With(attrs ...slog.Attr) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &Logger{entries: nil}
	child.attrs = append(append([]slog.Attr{}, l.attrs...), attrs...)
	return child
}

// Add attaches attrs to the eventual flushed record.
func (l *Logger) Add(attrs ...slog.Attr) {
	l.mu.Lock()
	l.attrs = append(l.attrs, attrs...)
	l.mu.Unlock()
}

func (l *Logger) Debug(message string, attrs ...slog.Attr) { l.append("debug", message, attrs) }
func (l *Logger) Info(message string, attrs ...slog.Attr)  { l.append("info", message, attrs) }
func (l *Logger) Warn(message string, attrs ...slog.Attr)  { l.append("warn", message, attrs) }
func (l *Logger) Error(message string, attrs ...slog.Attr) { l.append("error", message, attrs) }

func (l *Logger) append(level, message string, attrs []slog.Attr) {
	l.mu.Lock()
	l.entries = append(l.entries, Entry{
		Level:   level,
		Message: message,
		At:      time.Now(),
		Attrs:   attrs,
	})
	l.mu.Unlock()
}

// Flush drains the buffer and returns everything as one slog group.
func (l *Logger) Flush() slog.Attr {
	l.mu.Lock()
	entries := l.entries
	l.entries = nil
	attrs := make([]slog.Attr, len(l.attrs))
	copy(attrs, l.attrs)
	l.mu.Unlock()

	payload := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		record := map[string]any{
			"message": entry.Message,
			"level":   entry.Level,
			"at":      entry.At,
		}
		for _, attr := range entry.Attrs {
			if _, exists := record[attr.Key]; !exists {
				record[attr.Key] = attr.Value.Any()
			}
		}
		payload = append(payload, record)
	}

	args := make([]any, 0, len(attrs)+1)
	for _, attr := range attrs {
		args = append(args, attr)
	}
	args = append(args, slog.Any("entries", payload))
	return slog.Group("", args...)
}
