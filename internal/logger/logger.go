package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// New builds the process logger. Unknown levels fall back to info.
func New(w io.Writer, format string, level string) *slog.Logger {
	lvl, err := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if strings.EqualFold(format, FormatJSON) {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = NewPrettyHandler(w, opts)
	}

	l := slog.New(h)
	if err != nil {
		l.Warn("invalid LOG_LEVEL, using info", "value", level)
	}
	return l
}
