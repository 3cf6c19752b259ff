package testsupport

import (
	"os"
	"testing"
	"time"

	"fbuild/internal/config"
	"fbuild/internal/protocol"
)

// NewRequest builds a valid request of the given kind rooted at a fresh
// project directory.
func NewRequest(t testing.TB, kind protocol.Kind) *protocol.Request {
	t.Helper()

	return &protocol.Request{
		RequestID:   protocol.NewRequestID(kind),
		Kind:        kind,
		ProjectDir:  t.TempDir(),
		Environment: "uno",
		CallerPID:   os.Getpid(),
		CreatedAt:   time.Now().UTC(),
	}
}

// SubmitRequest writes the request file into the daemon directory the way a
// client would.
func SubmitRequest(t testing.TB, cfg *config.Config, req *protocol.Request) string {
	t.Helper()

	path, err := protocol.WriteRequest(cfg.Paths.DaemonDir, req)
	if err != nil {
		t.Fatalf("write request %s: %v", req.RequestID, err)
	}
	return path
}
