package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charm "github.com/charmbracelet/log"
)

// New builds the process logger. format "text" selects a human readable
// handler for terminals; anything else emits JSON.
func New(w io.Writer, format, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := ParseLevel(level)

	if strings.EqualFold(format, "text") {
		handler := charm.NewWithOptions(w, charm.Options{ReportTimestamp: true})
		handler.SetLevel(charmLevel(lvl))
		return slog.New(handler)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// ParseLevel maps a level name onto slog; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func charmLevel(l slog.Level) charm.Level {
	switch {
	case l <= slog.LevelDebug:
		return charm.DebugLevel
	case l >= slog.LevelError:
		return charm.ErrorLevel
	case l >= slog.LevelWarn:
		return charm.WarnLevel
	default:
		return charm.InfoLevel
	}
}
