package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/internal/notify"
	"github.com/ShayCichocki/crewboard/internal/team"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// DefaultPollInterval is how often the manual driver re-reads the board.
const DefaultPollInterval = 50 * time.Millisecond

// ManualDriver drives a plan in manual mode. No notification engine runs;
// the driver polls the board snapshot, hands runnable tasks to parties
// itself, and applies the failure policy to failures it observes. Tasks
// without an assignee are rotated across the team's workers.
type ManualDriver struct {
	policy   Policy
	interval time.Duration
	next     int
	debugLog func(format string, args ...interface{})
}

// NewManualDriver creates a manual driver with the given failure policy.
func NewManualDriver(policy Policy) *ManualDriver {
	return &ManualDriver{policy: policy, interval: DefaultPollInterval, debugLog: nopLog}
}

// SetPollInterval overrides the snapshot polling interval.
func (d *ManualDriver) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		d.interval = interval
	}
}

// SetDebugLog sets the debug logging function. A nil fn is ignored.
func (d *ManualDriver) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		d.debugLog = fn
	}
}

// DriveExecution blocks until the plan settles or the context ends. Context
// cancellation cancels the plan before returning.
func (d *ManualDriver) DriveExecution(ctx context.Context, t *team.Team) error {
	b := t.Board()
	if b == nil {
		return board.ErrNoPlan
	}

	// Retry count of the last failure handled per task, so a failure is acted
	// on exactly once per attempt across polls.
	handled := make(map[string]int)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.step(ctx, t, b, handled)
		if b.Settled() {
			return nil
		}

		select {
		case <-ctx.Done():
			d.debugLog("[coordinator] context cancelled, cancelling plan for team %s", t.Name())
			if err := b.Cancel(); err != nil {
				d.debugLog("[coordinator] cancel plan: %v", err)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// step handles one snapshot: failure policy first, so a requeued task is
// picked up as runnable in the same pass, then assignment of runnable tasks
// in plan order.
func (d *ManualDriver) step(ctx context.Context, t *team.Team, b *board.Board, handled map[string]int) {
	snap := b.Snapshot()

	for _, task := range snap.InState(models.TaskFailed) {
		if last, ok := handled[task.ID]; ok && last == task.RetryCount {
			continue
		}
		handled[task.ID] = task.RetryCount
		applyPolicy(b, d.policy, snap, task, d.debugLog)
	}

	// Re-read: the policy may have requeued or cancelled tasks.
	snap = b.Snapshot()
	for _, task := range snap.InState(models.TaskRunnable) {
		d.assign(ctx, t, b, snap, task)
	}
}

func (d *ManualDriver) assign(ctx context.Context, t *team.Team, b *board.Board, snap board.Snapshot, task *models.Task) {
	var party notify.Party
	if task.Assignee != "" {
		p, err := t.Resolve(task.Assignee)
		if err != nil {
			if ferr := b.FailUnassigned(task.ID, fmt.Sprintf("%v: %v", board.ErrUnresolvedParty, err)); ferr != nil {
				d.debugLog("[coordinator] fail unassigned %s: %v", task.ID, ferr)
			}
			return
		}
		party = p
	} else {
		workers := t.Workers()
		if len(workers) == 0 {
			if ferr := b.FailUnassigned(task.ID, "team has no workers for unaddressed task"); ferr != nil {
				d.debugLog("[coordinator] fail unassigned %s: %v", task.ID, ferr)
			}
			return
		}
		party = workers[d.next%len(workers)]
		d.next++
	}

	if err := b.MarkAssigned(task.ID, party.ID()); err != nil {
		d.debugLog("[coordinator] skipping assignment of %s: %v", task.ID, err)
		return
	}

	a := notify.Assignment{
		DeliveryID:  uuid.New().String(),
		TaskID:      task.ID,
		TeamID:      snap.TeamID,
		Title:       task.Title,
		Description: task.Description,
	}
	if err := party.Accept(ctx, a); err != nil {
		d.debugLog("[coordinator] party %s rejected %s: %v", party.ID(), task.ID, err)
		if serr := b.MarkStarted(task.ID); serr != nil {
			d.debugLog("[coordinator] mark started %s: %v", task.ID, serr)
			return
		}
		if ferr := b.MarkFailed(task.ID, fmt.Sprintf("assignment rejected by %s: %v", party.ID(), err)); ferr != nil {
			d.debugLog("[coordinator] mark failed %s: %v", task.ID, ferr)
		}
	}
}
