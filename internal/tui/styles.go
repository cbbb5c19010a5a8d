package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/crewboard/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	pendingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	runnableStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	assignedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	inProgressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Bold(true)
	completedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	cancelledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("133"))
)

// stateStyle returns the display style for a task state.
func stateStyle(s models.TaskState) lipgloss.Style {
	switch s {
	case models.TaskRunnable:
		return runnableStyle
	case models.TaskAssigned:
		return assignedStyle
	case models.TaskInProgress:
		return inProgressStyle
	case models.TaskCompleted:
		return completedStyle
	case models.TaskFailed:
		return failedStyle
	case models.TaskCancelled:
		return cancelledStyle
	default:
		return pendingStyle
	}
}

// stateMarker returns the one-character marker for a task state.
func stateMarker(s models.TaskState) string {
	switch s {
	case models.TaskCompleted:
		return completedStyle.Render("✓")
	case models.TaskFailed:
		return failedStyle.Render("✗")
	case models.TaskCancelled:
		return cancelledStyle.Render("⊘")
	case models.TaskRunnable, models.TaskAssigned:
		return runnableStyle.Render("•")
	default:
		return dimStyle.Render("·")
	}
}
