// Package tui provides the terminal dashboard for a run: subtask progress by
// wave, a live activity log, and inline approval prompts for ask decisions.
// Quit with 'q' or Ctrl+C; everything else is read-only except approvals.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/loom/internal/gateway"
	"github.com/ShayCichocki/loom/internal/orchestrator"
	"github.com/ShayCichocki/loom/pkg/models"
)

// RunEventMsg wraps an orchestrator event for the dashboard.
type RunEventMsg struct {
	Event orchestrator.Event
}

// AskMsg surfaces a pending permission ask for inline approval.
type AskMsg struct {
	Request gateway.AskRequest
}

// RunDoneMsg signals that the run finished and carries the report.
type RunDoneMsg struct {
	Report models.RunReport
	Err    error
}

// LogEntry is one line in the activity log.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// subtaskRow is the dashboard's view of one subtask.
type subtaskRow struct {
	id       string
	workerID string
	wave     int
	status   models.SubtaskStatus
	detail   string
}

// App is the bubbletea model for the run dashboard.
type App struct {
	broker *gateway.ApprovalBroker
	spin   spinner.Model

	rows    []*subtaskRow
	logs    []LogEntry
	pending []gateway.AskRequest

	width    int
	height   int
	quitting bool

	done       bool
	doneStatus models.RunStatus
	doneDetail string
}

// New creates a dashboard. broker may be nil when the gateway never asks.
func New(broker *gateway.ApprovalBroker) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle
	return &App{broker: broker, spin: sp}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spin.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "y", "n":
			a.answerAsk(msg.String() == "y")
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case RunEventMsg:
		a.handleEvent(msg.Event)

	case AskMsg:
		a.pending = append(a.pending, msg.Request)
		a.log("ASK", fmt.Sprintf("%s wants %s", msg.Request.WorkerID, msg.Request.ToolName))

	case RunDoneMsg:
		a.done = true
		a.doneStatus = msg.Report.Status
		if msg.Err != nil {
			a.doneDetail = msg.Err.Error()
		} else {
			a.doneDetail = msg.Report.FailureReason
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	return fmt.Sprintf("%s\n%s\n%s\n%s", a.viewHeader(), a.viewSubtasks(), a.viewLogs(), a.viewFooter())
}

func (a *App) handleEvent(ev orchestrator.Event) {
	level := "INFO"
	if ev.Err != nil {
		level = "ERROR"
	}
	if ev.Message != "" || ev.Err != nil {
		detail := ev.Message
		if ev.Err != nil {
			detail = ev.Err.Error()
		}
		a.log(level, fmt.Sprintf("%s %s %s", ev.Type, ev.SubtaskID, detail))
	} else {
		a.log(level, fmt.Sprintf("%s %s", ev.Type, ev.SubtaskID))
	}

	switch ev.Type {
	case orchestrator.EventSubtaskStarted:
		row := a.row(ev.SubtaskID)
		row.workerID = ev.WorkerID
		row.wave = ev.Wave
		row.status = models.SubtaskRunning
	case orchestrator.EventSubtaskCompleted:
		a.row(ev.SubtaskID).status = models.SubtaskCompleted
	case orchestrator.EventSubtaskFailed:
		row := a.row(ev.SubtaskID)
		row.status = models.SubtaskFailed
		row.detail = ev.Message
	case orchestrator.EventSubtaskBlocked:
		row := a.row(ev.SubtaskID)
		row.status = models.SubtaskBlocked
		row.detail = ev.Message
	}
}

// row finds or creates the display row for a subtask.
func (a *App) row(id string) *subtaskRow {
	for _, r := range a.rows {
		if r.id == id {
			return r
		}
	}
	r := &subtaskRow{id: id, status: models.SubtaskPending}
	a.rows = append(a.rows, r)
	return r
}

func (a *App) log(level, message string) {
	a.logs = append(a.logs, LogEntry{Timestamp: time.Now(), Level: level, Message: message})
}

// answerAsk resolves the oldest pending ask.
func (a *App) answerAsk(approved bool) {
	if len(a.pending) == 0 || a.broker == nil {
		return
	}
	req := a.pending[0]
	a.pending = a.pending[1:]

	resp := gateway.AskResponse{CallID: req.CallID, Approved: approved}
	if !approved {
		resp.Reason = "denied at dashboard"
	}
	a.broker.Submit(resp)

	verdict := "approved"
	if !approved {
		verdict = "denied"
	}
	a.log("ASK", fmt.Sprintf("%s %s for %s", req.ToolName, verdict, req.WorkerID))
}

// NewProgram creates a bubbletea program for the dashboard. Feed it with
// Send(RunEventMsg{...}) etc. from the run goroutine.
func NewProgram(broker *gateway.ApprovalBroker) (*tea.Program, *App) {
	app := New(broker)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Forward pumps orchestrator events and broker ask requests into the program
// until both sources close or stop signals. Call it in its own goroutine.
func Forward(p *tea.Program, events <-chan orchestrator.Event, broker *gateway.ApprovalBroker, stop <-chan struct{}) {
	var asks <-chan gateway.AskRequest
	if broker != nil {
		asks = broker.RequestCh()
	}
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Send(RunEventMsg{Event: ev})
		case req := <-asks:
			p.Send(AskMsg{Request: req})
		case <-stop:
			return
		}
	}
}
