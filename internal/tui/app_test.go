package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/loom/internal/gateway"
	"github.com/ShayCichocki/loom/internal/orchestrator"
	"github.com/ShayCichocki/loom/pkg/models"
)

func sendEvent(a *App, ev orchestrator.Event) {
	a.Update(RunEventMsg{Event: ev})
}

func TestAppTracksSubtaskLifecycle(t *testing.T) {
	app := New(nil)

	sendEvent(app, orchestrator.Event{Type: orchestrator.EventSubtaskStarted, SubtaskID: "st-1", WorkerID: "worker-st-1", Wave: 1})
	sendEvent(app, orchestrator.Event{Type: orchestrator.EventSubtaskStarted, SubtaskID: "st-2", WorkerID: "worker-st-2", Wave: 1})
	sendEvent(app, orchestrator.Event{Type: orchestrator.EventSubtaskCompleted, SubtaskID: "st-1"})
	sendEvent(app, orchestrator.Event{Type: orchestrator.EventSubtaskFailed, SubtaskID: "st-2", Message: "boom"})

	if len(app.rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(app.rows))
	}
	if app.row("st-1").status != models.SubtaskCompleted {
		t.Errorf("st-1 status = %s, want completed", app.row("st-1").status)
	}
	if app.row("st-2").status != models.SubtaskFailed || app.row("st-2").detail != "boom" {
		t.Errorf("st-2 = %+v, want failed with detail", app.row("st-2"))
	}

	view := app.View()
	if !strings.Contains(view, "st-1") || !strings.Contains(view, "st-2") {
		t.Error("view should list both subtasks")
	}
}

func TestAppRunDoneFooter(t *testing.T) {
	app := New(nil)
	app.Update(RunDoneMsg{Report: models.RunReport{Status: models.RunCompleted}})

	if !app.done {
		t.Fatal("done flag not set")
	}
	if !strings.Contains(app.View(), "completed") {
		t.Error("footer should show the run status")
	}
}

func TestAppQuitKey(t *testing.T) {
	app := New(nil)
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
}

func TestAppAnswersAskViaBroker(t *testing.T) {
	broker := gateway.NewApprovalBroker()

	type result struct {
		resp gateway.AskResponse
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		resp, err := broker.Resolve(context.Background(), gateway.AskRequest{
			CallID:   "call-1",
			WorkerID: "worker-st-1",
			ToolName: "Bash",
			Prompt:   "Allow worker-st-1 to call Bash?",
		})
		resultCh <- result{resp, err}
	}()

	app := New(nil)
	app.broker = broker

	// Wait for the broker to park the ask and forward the request.
	var req gateway.AskRequest
	select {
	case req = <-broker.RequestCh():
	case <-time.After(2 * time.Second):
		t.Fatal("no ask request forwarded")
	}

	app.Update(AskMsg{Request: req})
	if len(app.pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(app.pending))
	}
	if !strings.Contains(app.View(), "[y/n]") {
		t.Error("footer should prompt for approval")
	}

	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'y'}})

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Resolve: %v", res.err)
		}
		if !res.resp.Approved {
			t.Error("expected approval")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("approval never reached the broker")
	}
	if len(app.pending) != 0 {
		t.Errorf("pending = %d after answer, want 0", len(app.pending))
	}
}
