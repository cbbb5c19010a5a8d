// Package coordinator implements the two driving protocols that move a
// published plan to settlement: an event-driven driver built on the
// notification engine, and a manual driver that polls the board snapshot and
// hands out work itself.
//
// Failure handling lives here, not on the board. The board records a failure
// and stops; the coordinator decides whether to retry the task, let the rest
// of the plan finish, cancel the failed task's dependents, or halt the whole
// plan.
package coordinator

import (
	"fmt"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/internal/team"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// FailureAction selects what happens to the rest of the plan once a task has
// exhausted its retries.
type FailureAction string

const (
	// FailContinue leaves the failure in place. Independent tasks keep
	// running; tasks downstream of the failure stay pending until the plan
	// settles around them.
	FailContinue FailureAction = "continue"
	// FailCancelDependents cancels every task downstream of the failure and
	// lets the rest of the plan finish.
	FailCancelDependents FailureAction = "cancel-dependents"
	// FailHalt cancels the whole plan.
	FailHalt FailureAction = "halt"
)

// Valid reports whether the action is one of the defined values.
func (a FailureAction) Valid() bool {
	switch a {
	case FailContinue, FailCancelDependents, FailHalt:
		return true
	}
	return false
}

// Policy is the coordinator's failure policy for one plan lifecycle.
type Policy struct {
	// MaxRetries is how many times a failed task is requeued before the
	// failure becomes final.
	MaxRetries int
	// OnFailure is applied once a task's failure is final.
	OnFailure FailureAction
}

// DefaultPolicy retries each task once and cancels the dependents of a final
// failure so independent work still completes.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 1, OnFailure: FailCancelDependents}
}

// Validate checks the policy's fields.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", p.MaxRetries)
	}
	if !p.OnFailure.Valid() {
		return fmt.Errorf("invalid failure action %q", p.OnFailure)
	}
	return nil
}

// Drivers returns a driver factory that builds the driver matching each
// team's mode, all sharing one policy. debugLog may be nil.
func Drivers(policy Policy, debugLog func(format string, args ...interface{})) team.DriverFactory {
	return func(t *team.Team) team.Driver {
		if t.Mode() == models.ModeManual {
			d := NewManualDriver(policy)
			d.SetDebugLog(debugLog)
			return d
		}
		d := NewEventDriver(policy)
		d.SetDebugLog(debugLog)
		return d
	}
}

// applyPolicy reacts to one final-state failure observed in snap. A stale
// observation (the task has already been requeued or cancelled) is a no-op.
func applyPolicy(b *board.Board, policy Policy, snap board.Snapshot, t *models.Task,
	debugLog func(format string, args ...interface{})) {

	if t == nil || t.State != models.TaskFailed {
		return
	}

	if t.RetryCount < policy.MaxRetries {
		debugLog("[coordinator] requeueing %s (attempt %d of %d)", t.ID, t.RetryCount+1, policy.MaxRetries)
		if err := b.Requeue(t.ID); err != nil {
			debugLog("[coordinator] requeue %s: %v", t.ID, err)
		}
		return
	}

	switch policy.OnFailure {
	case FailContinue:
		debugLog("[coordinator] %s failed permanently, continuing with the rest of the plan", t.ID)
	case FailHalt:
		debugLog("[coordinator] %s failed permanently, halting plan", t.ID)
		if err := b.Cancel(); err != nil {
			debugLog("[coordinator] cancel plan: %v", err)
		}
	case FailCancelDependents:
		deps := dependentsOf(snap, t.ID)
		if len(deps) == 0 {
			return
		}
		debugLog("[coordinator] %s failed permanently, cancelling dependents %v", t.ID, deps)
		if err := b.CancelTasks(deps...); err != nil {
			debugLog("[coordinator] cancel dependents of %s: %v", t.ID, err)
		}
	}
}

// dependentsOf returns the IDs of every task downstream of taskID, directly
// or transitively, in plan order.
func dependentsOf(snap board.Snapshot, taskID string) []string {
	blocked := map[string]bool{taskID: true}
	for changed := true; changed; {
		changed = false
		for _, t := range snap.Tasks {
			if blocked[t.ID] {
				continue
			}
			for _, dep := range t.DependsOn {
				if blocked[dep] {
					blocked[t.ID] = true
					changed = true
					break
				}
			}
		}
	}

	var out []string
	for _, t := range snap.Tasks {
		if t.ID != taskID && blocked[t.ID] {
			out = append(out, t.ID)
		}
	}
	return out
}

func nopLog(format string, args ...interface{}) {}
