package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/loom/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC857"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#96E6A1"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	blockedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	askStyle       = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF8E53")).
			Bold(true)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

func (a *App) viewHeader() string {
	title := titleStyle.Render("loom")
	sub := subtitleStyle.Render("task orchestration runtime")
	return fmt.Sprintf("%s  %s", title, sub)
}

func (a *App) viewSubtasks() string {
	if len(a.rows) == 0 {
		return subtitleStyle.Render("  waiting for dispatch...")
	}

	var b strings.Builder
	for _, row := range a.rows {
		glyph, style := statusGlyph(row.status)
		if row.status == models.SubtaskRunning {
			glyph = a.spin.View()
		}
		line := fmt.Sprintf("  %s %-8s wave %d  %s", glyph, row.id, row.wave, row.workerID)
		if row.detail != "" {
			line += "  " + row.detail
		}
		b.WriteString(style.Render(line))
		b.WriteByte('\n')
	}
	return b.String()
}

func (a *App) viewLogs() string {
	if len(a.logs) == 0 {
		return ""
	}
	start := 0
	if max := a.logLines(); len(a.logs) > max {
		start = len(a.logs) - max
	}

	var b strings.Builder
	for _, entry := range a.logs[start:] {
		line := fmt.Sprintf("  %s [%s] %s", entry.Timestamp.Format("15:04:05"), entry.Level, entry.Message)
		if entry.Level == "ERROR" {
			line = failedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// logLines bounds the visible log tail to the remaining terminal height.
func (a *App) logLines() int {
	lines := a.height - len(a.rows) - 6
	if lines < 5 {
		lines = 5
	}
	return lines
}

func (a *App) viewFooter() string {
	if len(a.pending) > 0 {
		req := a.pending[0]
		return askStyle.Render(fmt.Sprintf("  %s — approve? [y/n] (%d pending)", req.Prompt, len(a.pending)))
	}
	if a.done {
		mark := completedStyle.Render("✓")
		if a.doneStatus == models.RunFailed || a.doneStatus == models.RunCancelled {
			mark = failedStyle.Render("✗")
		}
		detail := string(a.doneStatus)
		if a.doneDetail != "" {
			detail += ": " + a.doneDetail
		}
		return fmt.Sprintf("  %s %s %s", mark, detail, footerStyle.Render("| press q to exit"))
	}
	return footerStyle.Render("  q to quit")
}

func statusGlyph(status models.SubtaskStatus) (string, lipgloss.Style) {
	switch status {
	case models.SubtaskRunning:
		return "▶", runningStyle
	case models.SubtaskCompleted:
		return "✓", completedStyle
	case models.SubtaskFailed:
		return "✗", failedStyle
	case models.SubtaskBlocked:
		return "⊘", blockedStyle
	default:
		return "·", blockedStyle
	}
}
