package main

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger returns a JSON logger writing to w at the named level.
// Unknown levels select info.
func newLogger(level string, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
