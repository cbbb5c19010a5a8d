package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/crewboard/internal/api"
	"github.com/ShayCichocki/crewboard/internal/notify"
	"github.com/ShayCichocki/crewboard/internal/team"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

const claudeSystemPrompt = "You are a worker on a task coordination board. " +
	"Complete the task you are given and reply with the result only."

// ClaudeWorker completes assignments with a single-turn Anthropic API call.
// The response text becomes the task result.
type ClaudeWorker struct {
	name     string
	model    string
	client   *api.Client
	reporter team.Reporter
	debugLog func(format string, args ...interface{})
}

// NewClaudeWorker creates a claude worker sharing the given client. An empty
// model uses the client's default.
func NewClaudeWorker(name, model string, client *api.Client, r team.Reporter) *ClaudeWorker {
	return &ClaudeWorker{
		name:     name,
		model:    model,
		client:   client,
		reporter: r,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// ID returns the worker's party name.
func (w *ClaudeWorker) ID() string { return w.name }

// Accept takes delivery of an assignment and runs the API call
// asynchronously. Winning the started transition makes a re-delivered
// assignment a no-op.
func (w *ClaudeWorker) Accept(ctx context.Context, a notify.Assignment) error {
	go func() {
		if err := w.reporter.Start(a.TaskID); err != nil {
			w.debugLog("[worker %s] duplicate or late delivery of %s: %v", w.name, a.TaskID, err)
			return
		}

		w.debugLog("[worker %s] completing task %s via API", w.name, a.TaskID)
		text, err := w.client.Complete(ctx, anthropic.Model(w.model), claudeSystemPrompt, taskPrompt(a))
		if err != nil {
			w.reporter.Report(a.TaskID, models.Failed(fmt.Sprintf("API call failed: %v", err)))
			return
		}
		w.reporter.Report(a.TaskID, models.Completed(strings.TrimSpace(text)))
	}()
	return nil
}

func taskPrompt(a notify.Assignment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", a.Title)
	if a.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", a.Description)
	}
	return b.String()
}
