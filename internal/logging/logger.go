package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a process logger with JSON output on stdout.
func New(level slog.Level) *slog.Logger {
	return NewTo(os.Stdout, level)
}

// NewTo creates a JSON logger writing to w. The watch command logs to stderr
// so stdout only carries events.
func NewTo(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).With("service", "deploysync")
}
