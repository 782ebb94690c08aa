package server

import (
	"io"
	"log/slog"
	"testing"
)

// testLogger returns a logger that discards output. Failures are reported
// through testing.T, not the log.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
