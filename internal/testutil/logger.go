package testutil

import (
	"io"
	"log/slog"
)

// DiscardLogger returns a logger that drops everything, keeping test output
// clean unless a test captures logs explicitly.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
