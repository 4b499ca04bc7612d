package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/loom/pkg/models"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestRecordAndList(t *testing.T) {
	store := setupStore(t)

	rec := models.ToolCallRecord{
		SessionID:  "sess-1",
		WorkerID:   "w-1",
		ToolName:   "Write",
		Input:      `{"file_path":"config.yaml"}`,
		Decision:   models.DecisionAllow,
		Result:     "wrote 120 bytes",
		DurationMs: 12,
	}
	if err := store.Record(rec); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	records, err := store.List(Filter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("List returned %d records, want 1", len(records))
	}

	got := records[0]
	if got.ID == "" {
		t.Error("Record should assign an ID")
	}
	if got.Timestamp.IsZero() {
		t.Error("Record should assign a timestamp")
	}
	if got.ToolName != "Write" || got.Decision != models.DecisionAllow {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Input != rec.Input || got.Result != rec.Result {
		t.Errorf("input/result mismatch: %+v", got)
	}
}

func TestListFilters(t *testing.T) {
	store := setupStore(t)

	calls := []models.ToolCallRecord{
		{SessionID: "sess-1", WorkerID: "w-1", ToolName: "Read", Decision: models.DecisionAllow},
		{SessionID: "sess-1", WorkerID: "w-2", ToolName: "Write", Decision: models.DecisionDeny, Reason: "blocked by rule"},
		{SessionID: "sess-2", WorkerID: "w-1", ToolName: "Bash", Decision: models.DecisionAllow},
	}
	for i, rec := range calls {
		rec.Timestamp = time.Now().Add(time.Duration(i) * time.Millisecond)
		if err := store.Record(rec); err != nil {
			t.Fatalf("Record %d failed: %v", i, err)
		}
	}

	bySession, err := store.List(Filter{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(bySession) != 2 {
		t.Errorf("session filter returned %d, want 2", len(bySession))
	}

	byWorker, err := store.List(Filter{SessionID: "sess-1", WorkerID: "w-2"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byWorker) != 1 {
		t.Fatalf("worker filter returned %d, want 1", len(byWorker))
	}
	if byWorker[0].Decision != models.DecisionDeny || byWorker[0].Reason != "blocked by rule" {
		t.Errorf("denied call not preserved: %+v", byWorker[0])
	}

	limited, err := store.List(Filter{Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit returned %d, want 1", len(limited))
	}

	n, err := store.CountBySession("sess-1")
	if err != nil {
		t.Fatalf("CountBySession failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountBySession = %d, want 2", n)
	}
}
