// Package testutil holds helpers shared by the engine's tests: log capture
// and a small swap/curve/portfolio fixture.
package testutil

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/vk/viewgrid/internal/ctxlog"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// NewContext returns a background context carrying a debug logger that
// writes into the returned buffer. With VIEWGRID_TEST_LOGS=true the log is
// also written to the test log when the test fails.
func NewContext(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	var w io.Writer = buf
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))

	if os.Getenv("VIEWGRID_TEST_LOGS") == "true" {
		t.Cleanup(func() {
			if t.Failed() {
				t.Logf("--- captured logs ---\n%s", buf.String())
			}
		})
	}
	return ctxlog.WithLogger(context.Background(), logger), buf
}
