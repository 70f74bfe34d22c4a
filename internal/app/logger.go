package app

import (
	"io"
	"log/slog"
)

// logLevels maps the accepted level names to slog levels. Anything else
// falls back to info.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// newLogger builds the logger for one compilation run without touching the
// slog default, so App instances stay isolated. The text handler is the
// default: the compiled document owns stdout, so logs land on a stream a
// human reads unless "json" is asked for explicitly.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level, ok := logLevels[levelStr]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
