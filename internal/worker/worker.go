// Package worker implements the worker adapters behind the party boundary:
// shell commands, Anthropic API calls, and filesystem inboxes. Each adapter
// accepts assignments, performs the work its own way, and reports the outcome
// through the team's report path. Nothing upstream knows which kind it is.
package worker

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ShayCichocki/crewboard/internal/api"
	"github.com/ShayCichocki/crewboard/internal/exec"
	"github.com/ShayCichocki/crewboard/internal/notify"
	"github.com/ShayCichocki/crewboard/internal/team"
)

// Worker adapter types accepted in team definitions.
const (
	TypeCommand = "command"
	TypeClaude  = "claude"
	TypeInbox   = "inbox"
)

// Factory builds worker parties from team definitions. Zero-value fields fall
// back to sensible defaults; Client is only required when a team declares a
// claude worker.
type Factory struct {
	// Runner executes commands for command workers. Defaults to the real
	// runner when nil.
	Runner exec.CommandRunner
	// Client is the shared Anthropic client for claude workers.
	Client *api.Client
	// WorkDir is the working directory for command workers.
	WorkDir string
	// DefaultCommand is used by command workers that declare no command.
	DefaultCommand string
	// DefaultModel is used by claude workers that declare no model.
	DefaultModel string
	// InboxRoot is the parent directory for inbox workers that declare no
	// inbox_dir; each gets InboxRoot/<name>.
	InboxRoot string
	// DebugLog is the optional debug logging function shared by all built
	// workers.
	DebugLog func(format string, args ...interface{})

	mu      sync.Mutex
	inboxes []*InboxWorker
}

// Party builds the adapter for one worker spec. It satisfies
// team.PartyFactory.
func (f *Factory) Party(ws team.WorkerSpec, r team.Reporter) (notify.Party, error) {
	switch ws.Type {
	case TypeCommand, "":
		command := ws.Command
		if command == "" {
			command = f.DefaultCommand
		}
		if command == "" {
			return nil, fmt.Errorf("command worker %s: no command configured", ws.Name)
		}
		runner := f.Runner
		if runner == nil {
			runner = exec.NewRunner()
		}
		w := NewCommandWorker(ws.Name, command, f.WorkDir, runner, r)
		w.debugLog = f.log()
		return w, nil

	case TypeClaude:
		if f.Client == nil {
			return nil, fmt.Errorf("claude worker %s: no API client configured", ws.Name)
		}
		model := ws.Model
		if model == "" {
			model = f.DefaultModel
		}
		w := NewClaudeWorker(ws.Name, model, f.Client, r)
		w.debugLog = f.log()
		return w, nil

	case TypeInbox:
		dir := ws.InboxDir
		if dir == "" {
			if f.InboxRoot == "" {
				return nil, fmt.Errorf("inbox worker %s: no inbox directory configured", ws.Name)
			}
			dir = filepath.Join(f.InboxRoot, ws.Name)
		}
		w, err := NewInboxWorker(ws.Name, dir, r)
		if err != nil {
			return nil, fmt.Errorf("inbox worker %s: %w", ws.Name, err)
		}
		w.debugLog = f.log()
		f.mu.Lock()
		f.inboxes = append(f.inboxes, w)
		f.mu.Unlock()
		return w, nil

	default:
		return nil, fmt.Errorf("worker %s: unknown type %q", ws.Name, ws.Type)
	}
}

// Close stops the filesystem watchers of every inbox worker this factory
// built.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var firstErr error
	for _, w := range f.inboxes {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Factory) log() func(format string, args ...interface{}) {
	if f.DebugLog != nil {
		return f.DebugLog
	}
	return func(format string, args ...interface{}) {}
}
