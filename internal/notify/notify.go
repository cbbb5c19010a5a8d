// Package notify implements the notification engine: the bridge from board
// state changes to party notifications for teams running in events mode.
//
// The engine owns no state beyond the board it watches and the last plan
// version it has seen. Dispatch is asynchronous; a slow or unavailable party
// delays only its own task, never the board's recomputation.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// Assignment is the one-way "task runnable" notification pushed to a party.
type Assignment struct {
	// DeliveryID is unique per delivery attempt. Receivers key idempotence
	// on TaskID: a re-delivered assignment carries a fresh DeliveryID but
	// must not be treated as a second distinct task.
	DeliveryID string
	// TaskID identifies the task on the owning board.
	TaskID string
	// TeamID identifies the team whose board owns the task.
	TeamID string
	// Title is the task's short description.
	Title string
	// Description is the work payload.
	Description string
	// DeadlineHint is advisory; zero means no hint.
	DeadlineHint time.Time
}

// Party is anything that can accept an assignment: a leaf worker or a
// sub-team coordinator. The engine never branches on which one it holds.
type Party interface {
	// ID returns the party's stable identifier.
	ID() string
	// Accept takes delivery of an assignment. Accept should return quickly;
	// long-running work belongs in the party's own goroutine, with the
	// result reported through the board's ReportResult path.
	Accept(ctx context.Context, a Assignment) error
}

// Resolver resolves a task's declared assignee name to a party.
type Resolver interface {
	Resolve(assignee string) (Party, error)
}

// Engine watches exactly one board and dispatches assignments as tasks
// become runnable.
type Engine struct {
	board    *board.Board
	resolver Resolver

	// lastVersion is the last plan version seen, used to drop events from a
	// stale plan lifecycle.
	lastVersion int

	// terminal forwards terminal-state events to the driving coordinator,
	// which only reacts to those in events mode.
	terminal chan board.Event

	wg       sync.WaitGroup
	debugLog func(format string, args ...interface{})
}

// NewEngine creates an engine for the given board and resolver.
func NewEngine(b *board.Board, r Resolver) *Engine {
	return &Engine{
		board:    b,
		resolver: r,
		terminal: make(chan board.Event, board.DefaultEventBuffer),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// Terminal returns the stream of terminal-state events (task completed,
// task failed, task cancelled, plan settled, plan cancelled) for the
// coordinator. The channel closes when the engine stops.
func (e *Engine) Terminal() <-chan board.Event {
	return e.terminal
}

// SetDebugLog sets the debug logging function.
func (e *Engine) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		e.debugLog = fn
	}
}

// ReconcileInterval is how often the engine re-derives the runnable
// frontier from a board snapshot. Events only shorten the wait.
const ReconcileInterval = 50 * time.Millisecond

// Run dispatches assignments until the context is cancelled, the plan is
// cancelled, or the board's event stream closes. It blocks; run it in a
// goroutine. In-flight dispatches are waited for before Run returns.
//
// Events are treated as wakeups, not as the dispatch queue: the runnable
// frontier is recomputed from the board itself, so tasks that became
// runnable before the engine attached, and tasks whose runnable event was
// dropped under load, are still dispatched on the next reconcile.
func (e *Engine) Run(ctx context.Context) {
	defer func() {
		e.wg.Wait()
		close(e.terminal)
	}()

	events := e.board.Events()
	e.reconcile(ctx)

	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.debugLog("[notify] context cancelled, stopping dispatch")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.forwardTerminal(ev)
			if ev.Type == board.EventPlanCancelled {
				e.debugLog("[notify] plan cancelled, stopping dispatch")
				return
			}
			if ev.Version < e.lastVersion {
				e.debugLog("[notify] dropping stale event %s/%s (version %d < %d)",
					ev.Type, ev.TaskID, ev.Version, e.lastVersion)
				continue
			}
			e.lastVersion = ev.Version

			if ev.Type == board.EventTaskRunnable {
				e.dispatch(ctx, ev)
			}
		case <-ticker.C:
			// The plan_cancelled event itself can be missed; the board is
			// authoritative.
			if e.board.Cancelled() {
				e.debugLog("[notify] plan cancelled, stopping dispatch")
				return
			}
			e.reconcile(ctx)
		}
	}
}

// reconcile dispatches every runnable task the board currently holds, in
// plan order. MarkAssigned makes double dispatch impossible: only the first
// caller wins the runnable to assigned transition.
func (e *Engine) reconcile(ctx context.Context) {
	snap := e.board.Snapshot()
	for _, t := range snap.InState(models.TaskRunnable) {
		e.dispatch(ctx, board.Event{
			Type:        board.EventTaskRunnable,
			TeamID:      snap.TeamID,
			TaskID:      t.ID,
			Title:       t.Title,
			Description: t.Description,
			Assignee:    t.Assignee,
			Version:     snap.Version,
		})
	}
}

// forwardTerminal passes terminal-state events through to the coordinator.
// Never blocks: if the coordinator lags the event is dropped, and the
// coordinator re-derives state from a snapshot on the next event it does see.
func (e *Engine) forwardTerminal(ev board.Event) {
	switch ev.Type {
	case board.EventTaskCompleted, board.EventTaskFailed, board.EventTaskCancelled,
		board.EventPlanSettled, board.EventPlanCancelled:
		select {
		case e.terminal <- ev:
		default:
			e.debugLog("[notify] terminal channel full, dropped %s/%s", ev.Type, ev.TaskID)
		}
	}
}

// dispatch resolves the party for a newly runnable task, wins the assigned
// transition, and delivers the assignment asynchronously.
func (e *Engine) dispatch(ctx context.Context, ev board.Event) {
	party, err := e.resolver.Resolve(ev.Assignee)
	if err != nil {
		// Plans are validated against the team before publish, so this is
		// a team mutation race. Surface it as a task failure.
		e.debugLog("[notify] cannot resolve assignee %q for task %s: %v", ev.Assignee, ev.TaskID, err)
		if ferr := e.board.FailUnassigned(ev.TaskID, fmt.Sprintf("%v: %v", board.ErrUnresolvedParty, err)); ferr != nil {
			e.debugLog("[notify] fail unassigned %s: %v", ev.TaskID, ferr)
		}
		return
	}

	if err := e.board.MarkAssigned(ev.TaskID, party.ID()); err != nil {
		// A manual coordinator or a racing caller already moved the task.
		e.debugLog("[notify] skipping dispatch of %s: %v", ev.TaskID, err)
		return
	}

	a := Assignment{
		DeliveryID:  uuid.New().String(),
		TaskID:      ev.TaskID,
		TeamID:      ev.TeamID,
		Title:       ev.Title,
		Description: ev.Description,
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliver(ctx, party, a)
	}()
}

// deliver hands the assignment to the party, retrying once on a transient
// failure. Re-delivery is safe: the receiver keys on TaskID. If delivery
// fails outright the task is failed so the coordinator can decide.
func (e *Engine) deliver(ctx context.Context, party Party, a Assignment) {
	err := party.Accept(ctx, a)
	if err != nil {
		e.debugLog("[notify] delivery of %s to %s failed, retrying: %v", a.TaskID, party.ID(), err)
		// Fresh delivery ID so the receiver can tell the attempts apart.
		a.DeliveryID = uuid.New().String()
		err = party.Accept(ctx, a)
	}
	if err == nil {
		return
	}

	e.debugLog("[notify] delivery of %s to %s failed permanently: %v", a.TaskID, party.ID(), err)
	// The task is stuck in assigned; walk it to failed so the plan settles.
	if serr := e.board.MarkStarted(a.TaskID); serr != nil {
		e.debugLog("[notify] mark started %s: %v", a.TaskID, serr)
		return
	}
	if ferr := e.board.MarkFailed(a.TaskID, fmt.Sprintf("notification delivery failed: %v", err)); ferr != nil {
		e.debugLog("[notify] mark failed %s: %v", a.TaskID, ferr)
	}
}
