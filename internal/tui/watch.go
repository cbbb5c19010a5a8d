// Package tui provides the terminal watch view for a running plan.
//
// The view polls the board snapshot on a timer. It never consumes board
// events; the notification engine is the event stream's only consumer, and
// the snapshot is the read surface meant for observers.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// SnapshotFunc returns the current board snapshot. ok is false while no plan
// is published yet.
type SnapshotFunc func() (board.Snapshot, bool)

// tickMsg drives the snapshot polling.
type tickMsg time.Time

// PlanDoneMsg tells the watch view that plan execution finished. The runner
// sends it; the view renders the final snapshot once more and quits.
type PlanDoneMsg struct {
	Outcome models.Outcome
	Err     error
}

// Watch is the bubbletea model for the plan watch view.
type Watch struct {
	snapshot SnapshotFunc
	refresh  time.Duration

	spin     spinner.Model
	snap     board.Snapshot
	haveSnap bool
	width    int

	done    bool
	outcome models.Outcome
	runErr  error

	quitting bool
}

// NewWatch creates a watch view polling the given snapshot function.
func NewWatch(fn SnapshotFunc, refresh time.Duration) *Watch {
	if refresh <= 0 {
		refresh = 100 * time.Millisecond
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	return &Watch{
		snapshot: fn,
		refresh:  refresh,
		spin:     sp,
		width:    80,
	}
}

// Init implements tea.Model.
func (w *Watch) Init() tea.Cmd {
	return tea.Batch(w.spin.Tick, w.tick())
}

func (w *Watch) tick() tea.Cmd {
	return tea.Tick(w.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (w *Watch) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			w.quitting = true
			return w, tea.Quit
		}

	case tea.WindowSizeMsg:
		w.width = msg.Width

	case tickMsg:
		if snap, ok := w.snapshot(); ok {
			w.snap = snap
			w.haveSnap = true
		}
		return w, w.tick()

	case PlanDoneMsg:
		w.done = true
		w.outcome = msg.Outcome
		w.runErr = msg.Err
		if snap, ok := w.snapshot(); ok {
			w.snap = snap
			w.haveSnap = true
		}
		return w, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		w.spin, cmd = w.spin.Update(msg)
		return w, cmd
	}

	return w, nil
}

// View implements tea.Model.
func (w *Watch) View() string {
	if w.quitting && !w.done {
		return "watch stopped\n"
	}
	if !w.haveSnap {
		return fmt.Sprintf("\n  %s waiting for plan...\n", w.spin.View())
	}

	var lines []string

	title := fmt.Sprintf("plan %q — team %s (version %d)", w.snap.PlanName, w.snap.TeamID, w.snap.Version)
	lines = append(lines, titleStyle.Render(title), "")

	for _, t := range w.snap.Tasks {
		lines = append(lines, w.taskLine(t))
	}

	lines = append(lines, "", w.footer())
	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

func (w *Watch) taskLine(t *models.Task) string {
	marker := stateMarker(t.State)
	if t.State == models.TaskInProgress {
		marker = w.spin.View()
	}

	line := fmt.Sprintf("  %s %s  %s", marker, stateStyle(t.State).Render(fmt.Sprintf("%-11s", t.State)), t.ID)
	if t.AssignedTo != "" {
		line += dimStyle.Render(" → " + t.AssignedTo)
	}
	if t.State == models.TaskFailed && t.FailureReason != "" {
		line += "  " + failedStyle.Render(truncate(t.FailureReason, w.width/2))
	}
	return line
}

func (w *Watch) footer() string {
	counts := w.snap.Counts()
	summary := fmt.Sprintf("  %d completed · %d failed · %d cancelled · %d active",
		counts[models.TaskCompleted],
		counts[models.TaskFailed],
		counts[models.TaskCancelled],
		counts[models.TaskRunnable]+counts[models.TaskAssigned]+counts[models.TaskInProgress])

	if w.done {
		status := completedStyle.Render("plan completed")
		if w.runErr != nil {
			status = failedStyle.Render("plan aborted: " + w.runErr.Error())
		} else if w.outcome.Status == models.OutcomeFailed {
			status = failedStyle.Render("plan failed")
		}
		return summary + "\n  " + status
	}
	return summary + dimStyle.Render("   (q to quit)")
}

func truncate(s string, max int) string {
	if max < 8 {
		max = 8
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
