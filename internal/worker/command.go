package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/crewboard/internal/exec"
	"github.com/ShayCichocki/crewboard/internal/notify"
	"github.com/ShayCichocki/crewboard/internal/team"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// CommandWorker runs a shell command per assignment. The assignment is piped
// to the command's stdin as JSON; combined output becomes the task result. A
// non-zero exit fails the task.
type CommandWorker struct {
	name     string
	command  string
	workDir  string
	runner   exec.CommandRunner
	reporter team.Reporter
	debugLog func(format string, args ...interface{})
}

// NewCommandWorker creates a command worker.
func NewCommandWorker(name, command, workDir string, runner exec.CommandRunner, r team.Reporter) *CommandWorker {
	return &CommandWorker{
		name:     name,
		command:  command,
		workDir:  workDir,
		runner:   runner,
		reporter: r,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// ID returns the worker's party name.
func (w *CommandWorker) ID() string { return w.name }

// Accept takes delivery of an assignment and runs the command asynchronously.
// Winning the started transition makes a re-delivered assignment a no-op.
func (w *CommandWorker) Accept(ctx context.Context, a notify.Assignment) error {
	go func() {
		if err := w.reporter.Start(a.TaskID); err != nil {
			w.debugLog("[worker %s] duplicate or late delivery of %s: %v", w.name, a.TaskID, err)
			return
		}
		w.reporter.Report(a.TaskID, w.run(ctx, a))
	}()
	return nil
}

func (w *CommandWorker) run(ctx context.Context, a notify.Assignment) models.Outcome {
	payload, err := json.Marshal(assignmentPayload(a))
	if err != nil {
		return models.Failed(fmt.Sprintf("encode assignment: %v", err))
	}

	w.debugLog("[worker %s] running %q for task %s", w.name, w.command, a.TaskID)
	out, err := w.runner.RunShellInput(ctx, w.workDir, w.command, payload)
	if err != nil {
		reason := fmt.Sprintf("command failed: %v", err)
		if trimmed := strings.TrimSpace(string(out)); trimmed != "" {
			reason = fmt.Sprintf("%s: %s", reason, trimmed)
		}
		return models.Failed(reason)
	}
	return models.Completed(strings.TrimSpace(string(out)))
}

// payload is the JSON shape handed to commands and inbox files.
type payload struct {
	DeliveryID  string `json:"delivery_id"`
	TaskID      string `json:"task_id"`
	TeamID      string `json:"team_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func assignmentPayload(a notify.Assignment) payload {
	return payload{
		DeliveryID:  a.DeliveryID,
		TaskID:      a.TaskID,
		TeamID:      a.TeamID,
		Title:       a.Title,
		Description: a.Description,
	}
}
