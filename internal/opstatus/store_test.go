package opstatus_test

import (
	"errors"
	"testing"
	"time"

	"fbuild/internal/opstatus"
	"fbuild/internal/protocol"
)

func TestReadOrPendingForMissingFile(t *testing.T) {
	store := opstatus.NewStore(t.TempDir())
	status, err := store.ReadOrPending("deploy_1")
	if err != nil {
		t.Fatalf("ReadOrPending failed: %v", err)
	}
	if status.Status != protocol.StatusPending {
		t.Fatalf("expected pending, got %s", status.Status)
	}
}

func TestRecordLifecycle(t *testing.T) {
	store := opstatus.NewStore(t.TempDir())
	record := store.NewRecord("deploy_1")

	if err := record.MarkRunning("Deploying esp32dev"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := record.AppendOutput("uploading...", "done"); err != nil {
		t.Fatalf("AppendOutput failed: %v", err)
	}
	if err := record.Succeed("Deploy successful", map[string]string{protocol.ResultDataKeyDetectedPort: "COM3"}); err != nil {
		t.Fatalf("Succeed failed: %v", err)
	}

	stored, err := store.Read("deploy_1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if stored.Status != protocol.StatusSuccess {
		t.Fatalf("expected success, got %s", stored.Status)
	}
	if stored.StartedAt == nil || stored.CompletedAt == nil {
		t.Fatal("expected both timestamps set")
	}
	if stored.CompletedAt.Before(*stored.StartedAt) {
		t.Fatal("completed_at precedes started_at")
	}
	if len(stored.Output) != 2 || stored.Output[0] != "uploading..." {
		t.Fatalf("unexpected output: %#v", stored.Output)
	}
	if stored.ResultData[protocol.ResultDataKeyDetectedPort] != "COM3" {
		t.Fatalf("result data missing: %#v", stored.ResultData)
	}
}

func TestTerminalStatusIsImmutable(t *testing.T) {
	store := opstatus.NewStore(t.TempDir())
	record := store.NewRecord("build_1")

	if err := record.MarkRunning("Building"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := record.Fail("Build failed", "compile error: missing semicolon"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	if err := record.MarkRunning("again"); !errors.Is(err, opstatus.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := record.AppendOutput("late line"); !errors.Is(err, opstatus.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := record.Succeed("flip", nil); !errors.Is(err, opstatus.ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}

	stored, err := store.Read("build_1")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if stored.Status != protocol.StatusFailed {
		t.Fatalf("terminal status changed: %s", stored.Status)
	}
	if stored.Error == "" {
		t.Fatal("expected diagnostic error text")
	}
}

func TestStartedAtSetExactlyOnce(t *testing.T) {
	store := opstatus.NewStore(t.TempDir())
	record := store.NewRecord("monitor_1")

	if err := record.MarkRunning("first"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	first := record.Status().StartedAt
	time.Sleep(5 * time.Millisecond)
	if err := record.SetMessage("second"); err != nil {
		t.Fatalf("SetMessage failed: %v", err)
	}
	if !record.Status().StartedAt.Equal(*first) {
		t.Fatal("started_at changed after initial transition")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := opstatus.NewStore(t.TempDir())
	record := store.NewRecord("build_2")
	if err := record.MarkRunning("Building"); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := store.Delete("build_2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete("build_2"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}
