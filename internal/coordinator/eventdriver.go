package coordinator

import (
	"context"
	"time"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/internal/notify"
	"github.com/ShayCichocki/crewboard/internal/team"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// sweepInterval is how often the driver re-derives failures and settlement
// from a board snapshot. Forwarded terminal events only shorten the wait;
// they are lossy under load and never trusted as the sole signal.
const sweepInterval = 50 * time.Millisecond

// EventDriver drives a plan in events mode. It runs the notification engine
// against the team's board and applies the failure policy as tasks reach
// terminal states; dispatch of runnable tasks is entirely the engine's.
type EventDriver struct {
	policy   Policy
	debugLog func(format string, args ...interface{})
}

// NewEventDriver creates an event driver with the given failure policy.
func NewEventDriver(policy Policy) *EventDriver {
	return &EventDriver{policy: policy, debugLog: nopLog}
}

// SetDebugLog sets the debug logging function. A nil fn is ignored.
func (d *EventDriver) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		d.debugLog = fn
	}
}

// DriveExecution blocks until the plan settles, the plan is cancelled, or the
// context ends. Context cancellation cancels the plan before returning.
func (d *EventDriver) DriveExecution(ctx context.Context, t *team.Team) error {
	b := t.Board()
	if b == nil {
		return board.ErrNoPlan
	}

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()

	engine := notify.NewEngine(b, t)
	engine.SetDebugLog(d.debugLog)
	go engine.Run(engineCtx)

	// handled records the retry count each failure was last acted on, so a
	// failure is processed once per attempt whether it is seen through a
	// forwarded event or a sweep.
	handled := make(map[string]int)
	sweep := func() bool {
		snap := b.Snapshot()
		for _, task := range snap.Tasks {
			if task.State != models.TaskFailed {
				continue
			}
			if n, ok := handled[task.ID]; ok && n == task.RetryCount {
				continue
			}
			handled[task.ID] = task.RetryCount
			applyPolicy(b, d.policy, snap, task, d.debugLog)
		}
		return b.Settled()
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	terminal := engine.Terminal()
	for {
		select {
		case <-ctx.Done():
			d.debugLog("[coordinator] context cancelled, cancelling plan for team %s", t.Name())
			if err := b.Cancel(); err != nil {
				d.debugLog("[coordinator] cancel plan: %v", err)
			}
			stopEngine()
			drain(terminal)
			return ctx.Err()

		case ev, ok := <-terminal:
			if !ok {
				return nil
			}
			if ev.Type == board.EventPlanCancelled {
				// The engine stops itself on this event; keep reading until
				// its terminal channel closes.
				continue
			}
			if sweep() {
				stopEngine()
				drain(terminal)
				return nil
			}

		case <-ticker.C:
			if sweep() {
				stopEngine()
				drain(terminal)
				return nil
			}
		}
	}
}

// drain discards terminal events until the engine closes the channel, which
// also means every in-flight delivery has been waited for.
func drain(terminal <-chan board.Event) {
	for range terminal {
	}
}
