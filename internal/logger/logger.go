package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a new slog.Logger instance that writes to os.Stdout.
// If debug is true, the log level is set to Debug. Otherwise, it's set to Info.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewWithWriter creates a new slog.Logger instance with a specific writer.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	var level slog.Level
	if debug {
		level = slog.LevelDebug
	} else {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})).With("service", "marunose")
}

// Discard returns a logger that drops everything. Used as the default for optional loggers.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// KeyPrefix returns at most the first ten characters of an API key so it can be logged.
func KeyPrefix(key string) string {
	r := []rune(key)
	if len(r) <= 10 {
		return key
	}
	return string(r[:10])
}

// KeyAttr is the structured form of KeyPrefix.
func KeyAttr(key string) slog.Attr {
	return slog.String("key_prefix", KeyPrefix(key))
}
