package sim

import (
	"io"
	"log/slog"
)

// testLogger silences engine logging in tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
