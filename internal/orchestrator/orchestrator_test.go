package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ShayCichocki/loom/internal/decompose"
	"github.com/ShayCichocki/loom/internal/gateway"
	"github.com/ShayCichocki/loom/internal/orchestrator/policy"
	"github.com/ShayCichocki/loom/internal/session"
	"github.com/ShayCichocki/loom/internal/state"
	"github.com/ShayCichocki/loom/pkg/models"
)

func newTestSession(t *testing.T) *session.Context {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "loom.db"))
	if err != nil {
		t.Fatalf("open state db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate state db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sess, err := session.New(db, models.Task{Goal: "test run"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

const twoSubtaskPlan = `[
	{"id": "st-1", "description": "write module a", "resource_claims": ["a.go"]},
	{"id": "st-2", "description": "write module b", "resource_claims": ["b.go"]}
]`

func TestOrchestratorRunEndToEnd(t *testing.T) {
	sess := newTestSession(t)
	planner := decompose.PlannerFunc(func(context.Context, models.Task, string, []string) (string, error) {
		return twoSubtaskPlan, nil
	})
	runner := RunnerFunc(func(_ context.Context, st models.Subtask, _ *gateway.WorkerHandle, _ string) (map[string]string, error) {
		return map[string]string{"summary": "done " + st.ID}, nil
	})
	gw := gateway.New(gateway.Options{
		Mode:      models.ModeBypass,
		Policy:    policy.Default().Gateway,
		SessionID: sess.ID(),
	})

	orch := New(decompose.New(planner), gw, runner, sess, policy.Default())
	report, err := orch.Run(context.Background(), models.Task{Goal: "build a and b"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Status != models.RunCompleted {
		t.Fatalf("status = %s, want completed", report.Status)
	}
	if report.SessionID != sess.ID() {
		t.Errorf("SessionID = %s, want %s", report.SessionID, sess.ID())
	}

	// Artifacts land in session memory under artifact:<subtask>:<name>.
	if got, ok := sess.Get("artifact:st-1:summary"); !ok || got != "done st-1" {
		t.Errorf("artifact:st-1:summary = %q, %v; want published artifact", got, ok)
	}

	var sawStart, sawDone bool
	for {
		select {
		case ev := <-orch.Events():
			switch ev.Type {
			case EventRunStarted:
				sawStart = true
			case EventRunCompleted:
				sawDone = true
			}
			if sawDone {
				if !sawStart {
					t.Error("run_completed without run_started")
				}
				return
			}
		default:
			t.Fatal("event stream ended without run_completed")
		}
	}
}

func TestOrchestratorRunDecompositionFailure(t *testing.T) {
	sess := newTestSession(t)
	dispatched := false
	runner := RunnerFunc(func(context.Context, models.Subtask, *gateway.WorkerHandle, string) (map[string]string, error) {
		dispatched = true
		return nil, nil
	})
	conflicting := `[
		{"id": "st-1", "description": "a", "resource_claims": ["x"]},
		{"id": "st-2", "description": "b", "resource_claims": ["x"]}
	]`
	planner := decompose.PlannerFunc(func(context.Context, models.Task, string, []string) (string, error) {
		return conflicting, nil
	})
	gw := gateway.New(gateway.Options{Mode: models.ModeBypass, Policy: policy.Default().Gateway})

	orch := New(decompose.New(planner), gw, runner, sess, policy.Default())
	report, err := orch.Run(context.Background(), models.Task{Goal: "conflicted"})

	if _, ok := models.IsDecompositionError(err); !ok {
		t.Fatalf("err = %v, want DecompositionError", err)
	}
	if report.Status != models.RunFailed {
		t.Errorf("status = %s, want failed", report.Status)
	}
	if dispatched {
		t.Error("scheduler dispatched work despite failed decomposition")
	}
}

func TestOrchestratorTearsDownSession(t *testing.T) {
	db, err := state.Open(filepath.Join(t.TempDir(), "loom.db"))
	if err != nil {
		t.Fatalf("open state db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate state db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sess, err := session.New(db, models.Task{Goal: "teardown check"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	planner := decompose.PlannerFunc(func(context.Context, models.Task, string, []string) (string, error) {
		return twoSubtaskPlan, nil
	})
	runner := RunnerFunc(func(context.Context, models.Subtask, *gateway.WorkerHandle, string) (map[string]string, error) {
		return nil, nil
	})
	gw := gateway.New(gateway.Options{Mode: models.ModeBypass, Policy: policy.Default().Gateway})

	orch := New(decompose.New(planner), gw, runner, sess, policy.Default())
	if _, err := orch.Run(context.Background(), models.Task{Goal: "teardown check"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	row, err := db.GetSession(sess.ID())
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if row.Status != models.SessionCompleted {
		t.Errorf("session status = %s, want completed after successful run", row.Status)
	}
}
