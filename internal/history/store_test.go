package history_test

import (
	"context"
	"testing"
	"time"

	"fbuild/internal/protocol"
	"fbuild/internal/testsupport"
)

func terminalStatus(req *protocol.Request, status protocol.Status) *protocol.OperationStatus {
	started := time.Now().UTC().Add(-2 * time.Second)
	completed := started.Add(1500 * time.Millisecond)
	return &protocol.OperationStatus{
		RequestID:   req.RequestID,
		Status:      status,
		Message:     "done",
		StartedAt:   &started,
		CompletedAt: &completed,
		ResultData: map[string]string{
			protocol.ResultDataKeyDetectedPort: "/dev/ttyUSB0",
		},
	}
}

func TestRecordAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	req := testsupport.NewRequest(t, protocol.KindDeploy)
	if err := store.Record(context.Background(), req, terminalStatus(req, protocol.StatusSuccess)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := store.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.RequestID != req.RequestID || entry.Kind != string(protocol.KindDeploy) {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Status != string(protocol.StatusSuccess) {
		t.Fatalf("unexpected status: %s", entry.Status)
	}
	if entry.DetectedPort != "/dev/ttyUSB0" {
		t.Fatalf("unexpected detected port: %s", entry.DetectedPort)
	}
	if entry.Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected duration: %s", entry.Duration)
	}
	if entry.StartedAt == nil || entry.CompletedAt == nil {
		t.Fatal("expected timestamps to round trip")
	}
}

func TestRecordTwiceKeepsLatest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	req := testsupport.NewRequest(t, protocol.KindBuild)
	if err := store.Record(context.Background(), req, terminalStatus(req, protocol.StatusFailed)); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := store.Record(context.Background(), req, terminalStatus(req, protocol.StatusSuccess)); err != nil {
		t.Fatalf("second Record: %v", err)
	}

	entries, err := store.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected upsert to keep one entry, got %d", len(entries))
	}
	if entries[0].Status != string(protocol.StatusSuccess) {
		t.Fatalf("expected latest status, got %s", entries[0].Status)
	}
}

func TestListFiltersByProject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	first := testsupport.NewRequest(t, protocol.KindBuild)
	second := testsupport.NewRequest(t, protocol.KindBuild)
	for _, req := range []*protocol.Request{first, second} {
		if err := store.Record(context.Background(), req, terminalStatus(req, protocol.StatusSuccess)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := store.List(context.Background(), first.ProjectDir, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].ProjectDir != first.ProjectDir {
		t.Fatalf("expected only %s, got %+v", first.ProjectDir, entries)
	}
}

func TestListNewestFirstAndLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	var last *protocol.Request
	for i := 0; i < 5; i++ {
		req := testsupport.NewRequest(t, protocol.KindMonitor)
		if err := store.Record(context.Background(), req, terminalStatus(req, protocol.StatusSuccess)); err != nil {
			t.Fatalf("Record: %v", err)
		}
		last = req
	}

	entries, err := store.List(context.Background(), "", 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(entries))
	}
	if entries[0].RequestID != last.RequestID {
		t.Fatalf("expected newest first, got %s", entries[0].RequestID)
	}
}

func TestPruneRemovesOldEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenHistory(t, cfg)

	req := testsupport.NewRequest(t, protocol.KindBuild)
	if err := store.Record(context.Background(), req, terminalStatus(req, protocol.StatusSuccess)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	removed, err := store.Prune(context.Background(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one pruned entry, got %d", removed)
	}

	entries, err := store.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(entries))
	}
}
