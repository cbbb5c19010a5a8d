package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/crewboard/internal/notify"
	"github.com/ShayCichocki/crewboard/internal/team"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// InboxWorker hands assignments to a human through the filesystem. Each
// accepted assignment is written to <dir>/tasks/<task>.json; the worker
// watches <dir>/results and reports when a matching result file appears.
//
// Result files carry {"status": "completed"|"failed", "result": ..., or
// "reason": ...}. The task stays assigned until the result lands, which is
// the honest state for work sitting in somebody's inbox.
type InboxWorker struct {
	name     string
	tasksDir string
	reporter team.Reporter
	watcher  *fsnotify.Watcher
	debugLog func(format string, args ...interface{})

	closeOnce sync.Once
	done      chan struct{}
}

// inboxResult is the result file format.
type inboxResult struct {
	Status models.OutcomeStatus `json:"status"`
	Result string               `json:"result,omitempty"`
	Reason string               `json:"reason,omitempty"`
}

// NewInboxWorker creates an inbox worker rooted at dir, creating the tasks
// and results directories and starting the results watcher.
func NewInboxWorker(name, dir string, r team.Reporter) (*InboxWorker, error) {
	tasksDir := filepath.Join(dir, "tasks")
	resultsDir := filepath.Join(dir, "results")
	for _, d := range []string{tasksDir, resultsDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create inbox directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(resultsDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch results directory: %w", err)
	}

	w := &InboxWorker{
		name:     name,
		tasksDir: tasksDir,
		reporter: r,
		watcher:  watcher,
		debugLog: func(format string, args ...interface{}) {},
		done:     make(chan struct{}),
	}
	go w.watch()
	return w, nil
}

// ID returns the worker's party name.
func (w *InboxWorker) ID() string { return w.name }

// Accept writes the assignment file. Re-delivery overwrites the same file, so
// duplicates are naturally idempotent.
func (w *InboxWorker) Accept(ctx context.Context, a notify.Assignment) error {
	data, err := json.MarshalIndent(assignmentPayload(a), "", "  ")
	if err != nil {
		return fmt.Errorf("encode assignment: %w", err)
	}

	path := filepath.Join(w.tasksDir, a.TaskID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write assignment file: %w", err)
	}
	w.debugLog("[worker %s] assignment %s written to inbox", w.name, a.TaskID)
	return nil
}

// Close stops the results watcher.
func (w *InboxWorker) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *InboxWorker) watch() {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if strings.ToLower(filepath.Ext(ev.Name)) != ".json" {
				continue
			}
			w.handleResult(ev.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.debugLog("[worker %s] watch error: %v", w.name, err)
		}
	}
}

// handleResult reads a result file and reports it. A file that does not parse
// yet is ignored; the write event for its remaining content retries. The
// started transition is won here, so a second event for the same file cannot
// double-report.
func (w *InboxWorker) handleResult(path string) {
	taskID := strings.TrimSuffix(filepath.Base(path), ".json")

	data, err := os.ReadFile(path)
	if err != nil {
		w.debugLog("[worker %s] read result %s: %v", w.name, path, err)
		return
	}

	var res inboxResult
	if err := json.Unmarshal(data, &res); err != nil {
		w.debugLog("[worker %s] result %s not parseable yet: %v", w.name, path, err)
		return
	}
	if !res.Status.Valid() {
		w.debugLog("[worker %s] result %s has invalid status %q", w.name, path, res.Status)
		return
	}

	if err := w.reporter.Start(taskID); err != nil {
		w.debugLog("[worker %s] result for %s already handled: %v", w.name, taskID, err)
		return
	}

	outcome := models.Outcome{Status: res.Status, Result: res.Result, Reason: res.Reason}
	if err := w.reporter.Report(taskID, outcome); err != nil {
		w.debugLog("[worker %s] report %s: %v", w.name, taskID, err)
	}
}
