// Package board implements the task board: the per-team dependency graph
// and state store for a published plan's tasks.
//
// The board is the single shared mutable resource of a team. Every state
// transition is serialized under one mutex, and the dependent recomputation
// triggered by a completion happens inside the same critical section as the
// completion itself, so no reader can observe a task still pending after its
// last dependency completed.
package board

import (
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/crewboard/internal/graph"
	"github.com/ShayCichocki/crewboard/internal/plan"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// DefaultEventBuffer is the emitter buffer size used by New.
const DefaultEventBuffer = 64

// Board owns the task set of one team for one plan lifecycle.
type Board struct {
	mu sync.Mutex
	// teamID identifies the owning team.
	teamID string
	// planName is the name of the published plan, empty before publish.
	planName string
	// tasks maps task ID to task state.
	tasks map[string]*models.Task
	// graph tracks dependencies and completion of the published plan.
	graph *graph.DependencyGraph
	// version is bumped on every publish. Monotonically increasing.
	version int
	// published is true once a plan is installed and not yet closed.
	published bool
	// cancelled is true after Cancel.
	cancelled bool
	// emitter publishes board events to subscribers.
	emitter *Emitter
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates an empty board for the given team.
func New(teamID string) *Board {
	return NewWithBuffer(teamID, DefaultEventBuffer)
}

// NewWithBuffer creates an empty board with a specific event buffer size.
func NewWithBuffer(teamID string, bufferSize int) *Board {
	return &Board{
		teamID:   teamID,
		tasks:    make(map[string]*models.Task),
		graph:    graph.New(),
		emitter:  NewEmitter(bufferSize),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function for the board and its graph.
func (b *Board) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		b.debugLog = fn
		b.graph.SetDebugLog(fn)
	}
}

// TeamID returns the ID of the team owning this board.
func (b *Board) TeamID() string {
	return b.teamID
}

// Events returns the board's event stream.
func (b *Board) Events() <-chan Event {
	return b.emitter.Events()
}

// Version returns the current plan version.
func (b *Board) Version() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// Publish validates and atomically installs a plan on the board.
//
// Tasks with an empty dependency set start runnable, the rest pending. The
// plan version is bumped and a plan_published event plus one task_runnable
// event per initially runnable task are emitted in plan order.
//
// Fails with ErrCycleDetected or ErrDuplicateTask on invalid plans and with
// ErrPlanAlreadyPublished if the board already holds a live plan. A failed
// publish leaves the board untouched.
func (b *Board) Publish(p *plan.Plan) error {
	if p == nil || len(p.Tasks) == 0 {
		return fmt.Errorf("plan has no tasks")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.published {
		return fmt.Errorf("%w: board %s has a live plan", ErrPlanAlreadyPublished, b.teamID)
	}

	// Install fresh task copies so the caller's plan stays immutable.
	installed := make([]*models.Task, 0, len(p.Tasks))
	now := time.Now()
	for _, t := range p.Tasks {
		c := t.Clone()
		c.TeamID = b.teamID
		c.CreatedAt = now
		if len(c.DependsOn) == 0 {
			c.State = models.TaskRunnable
		} else {
			c.State = models.TaskPending
		}
		installed = append(installed, c)
	}

	if err := b.graph.Build(installed); err != nil {
		return err
	}

	b.tasks = make(map[string]*models.Task, len(installed))
	for _, t := range installed {
		b.tasks[t.ID] = t
	}
	b.planName = p.Name
	b.published = true
	b.cancelled = false
	b.version++

	b.debugLog("[board %s] published plan %q version %d with %d tasks",
		b.teamID, p.Name, b.version, len(installed))

	b.emitLocked(Event{Type: EventPlanPublished})
	for _, t := range installed {
		if t.State == models.TaskRunnable {
			b.emitTaskLocked(EventTaskRunnable, t)
		}
	}
	return nil
}

// MarkAssigned transitions a task from runnable to assigned and records the
// winning party. Exactly one caller can win this transition from a given
// runnable state; concurrent callers get ErrIllegalTransition.
func (b *Board) MarkAssigned(taskID, partyID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.taskLocked(taskID)
	if err != nil {
		return err
	}
	if t.State != models.TaskRunnable {
		return transitionError(t, models.TaskAssigned)
	}

	t.State = models.TaskAssigned
	t.AssignedTo = partyID
	b.emitTaskLocked(EventTaskAssigned, t)
	return nil
}

// MarkStarted transitions a task from assigned to in_progress.
func (b *Board) MarkStarted(taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.taskLocked(taskID)
	if err != nil {
		return err
	}
	if t.State != models.TaskAssigned {
		return transitionError(t, models.TaskInProgress)
	}

	t.State = models.TaskInProgress
	b.emitTaskLocked(EventTaskStarted, t)
	return nil
}

// MarkCompleted transitions a task from in_progress to completed and, in the
// same critical section, flips every direct dependent whose last outstanding
// dependency this was from pending to runnable. One task_runnable event is
// emitted per flip, in plan order.
func (b *Board) MarkCompleted(taskID, result string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.markCompletedLocked(taskID, result)
}

func (b *Board) markCompletedLocked(taskID, result string) error {
	t, err := b.taskLocked(taskID)
	if err != nil {
		return err
	}
	if t.State != models.TaskInProgress {
		return transitionError(t, models.TaskCompleted)
	}

	now := time.Now()
	t.State = models.TaskCompleted
	t.Result = result
	t.CompletedAt = &now
	b.emitTaskLocked(EventTaskCompleted, t)

	for _, depID := range b.graph.MarkComplete(taskID) {
		dep := b.tasks[depID]
		if dep == nil || dep.State != models.TaskPending {
			continue
		}
		dep.State = models.TaskRunnable
		b.emitTaskLocked(EventTaskRunnable, dep)
	}

	b.emitSettledLocked()
	return nil
}

// MarkFailed transitions a task from in_progress to failed. Failure is not
// propagated to dependents; that is a coordinator policy decision.
func (b *Board) MarkFailed(taskID, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.markFailedLocked(taskID, reason)
}

func (b *Board) markFailedLocked(taskID, reason string) error {
	t, err := b.taskLocked(taskID)
	if err != nil {
		return err
	}
	if t.State != models.TaskInProgress {
		return transitionError(t, models.TaskFailed)
	}

	now := time.Now()
	t.State = models.TaskFailed
	t.FailureReason = reason
	t.CompletedAt = &now
	b.emitTaskLocked(EventTaskFailed, t)
	b.emitSettledLocked()
	return nil
}

// FailUnassigned transitions a runnable task directly to failed. The
// notification engine uses this when the task's assignee cannot be resolved
// to any party in the team.
func (b *Board) FailUnassigned(taskID, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.taskLocked(taskID)
	if err != nil {
		return err
	}
	if t.State != models.TaskRunnable {
		return transitionError(t, models.TaskFailed)
	}

	now := time.Now()
	t.State = models.TaskFailed
	t.FailureReason = reason
	t.CompletedAt = &now
	b.emitTaskLocked(EventTaskFailed, t)
	b.emitSettledLocked()
	return nil
}

// Requeue transitions a failed task back to runnable and bumps its retry
// count. The retry budget is the coordinator's to enforce, not the board's.
// The emitted task_runnable event makes the notification engine redispatch.
func (b *Board) Requeue(taskID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.taskLocked(taskID)
	if err != nil {
		return err
	}
	if t.State != models.TaskFailed {
		return transitionError(t, models.TaskRunnable)
	}

	t.State = models.TaskRunnable
	t.AssignedTo = ""
	t.RetryCount++
	t.CompletedAt = nil
	b.emitTaskLocked(EventTaskRunnable, t)
	return nil
}

// ReportResult is the worker report callback: the sole write path for
// execution outcomes. Reports for cancelled tasks are accepted without error
// and produce no dependent transitions, so a worker finishing after a plan
// cancellation never sees a spurious failure.
func (b *Board) ReportResult(taskID string, outcome models.Outcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, err := b.taskLocked(taskID)
	if err != nil {
		return err
	}
	if t.State == models.TaskCancelled {
		b.debugLog("[board %s] dropping report for cancelled task %s", b.teamID, taskID)
		return nil
	}

	switch outcome.Status {
	case models.OutcomeCompleted:
		return b.markCompletedLocked(taskID, outcome.Result)
	case models.OutcomeFailed:
		return b.markFailedLocked(taskID, outcome.Reason)
	default:
		return fmt.Errorf("invalid outcome status %q for task %s", outcome.Status, taskID)
	}
}

// Cancel transitions every non-terminal task to cancelled and emits a
// plan_cancelled event. Completed tasks keep their results; failed tasks
// stay failed. In-flight notifications are not retracted: receivers must
// check current state before acting, and late reports are tolerated by
// ReportResult.
func (b *Board) Cancel() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.published {
		return ErrNoPlan
	}
	if b.cancelled {
		return nil
	}
	b.cancelled = true

	now := time.Now()
	for _, id := range b.graph.Order() {
		t := b.tasks[id]
		switch t.State {
		case models.TaskCompleted, models.TaskFailed, models.TaskCancelled:
			continue
		}
		t.State = models.TaskCancelled
		t.CompletedAt = &now
		b.emitTaskLocked(EventTaskCancelled, t)
	}

	b.emitLocked(Event{Type: EventPlanCancelled})
	return nil
}

// CancelTasks cancels individual tasks that have not been handed to a party
// yet (pending or runnable). Coordinators use this to cancel the dependents
// of a failed task; assigned and in-progress tasks are left alone so their
// reports can still land.
func (b *Board) CancelTasks(taskIDs ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.published {
		return ErrNoPlan
	}

	now := time.Now()
	for _, id := range taskIDs {
		t, ok := b.tasks[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTask, id)
		}
		switch t.State {
		case models.TaskPending, models.TaskRunnable:
			t.State = models.TaskCancelled
			t.CompletedAt = &now
			b.emitTaskLocked(EventTaskCancelled, t)
		}
	}

	b.emitSettledLocked()
	return nil
}

// Cancelled reports whether the plan has been cancelled.
func (b *Board) Cancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

// Settled reports whether no task is active anymore: nothing runnable,
// assigned, or in progress. Pending tasks may remain if an upstream task
// failed; only coordinator intervention (requeue or cancel) can move them.
func (b *Board) Settled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published && b.settledLocked()
}

// Done reports whether every task completed successfully.
func (b *Board) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.published {
		return false
	}
	for _, t := range b.tasks {
		if t.State != models.TaskCompleted {
			return false
		}
	}
	return true
}

// Close marks the plan lifecycle finished and closes the event stream.
// Call only after the plan settled and the coordinator is done with it.
func (b *Board) Close() {
	b.mu.Lock()
	b.published = false
	b.mu.Unlock()
	b.emitter.Close()
}

func (b *Board) settledLocked() bool {
	for _, t := range b.tasks {
		switch t.State {
		case models.TaskRunnable, models.TaskAssigned, models.TaskInProgress:
			return false
		}
	}
	return true
}

// emitSettledLocked emits plan_settled when a terminal transition leaves the
// board with no active tasks.
func (b *Board) emitSettledLocked() {
	if b.settledLocked() {
		b.emitLocked(Event{Type: EventPlanSettled})
	}
}

func (b *Board) taskLocked(taskID string) (*models.Task, error) {
	if !b.published {
		return nil, ErrNoPlan
	}
	t, ok := b.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	return t, nil
}

func (b *Board) emitTaskLocked(typ EventType, t *models.Task) {
	b.emitLocked(Event{
		Type:        typ,
		TaskID:      t.ID,
		Title:       t.Title,
		Description: t.Description,
		Assignee:    t.Assignee,
		PartyID:     t.AssignedTo,
		Reason:      t.FailureReason,
	})
}

func (b *Board) emitLocked(e Event) {
	e.TeamID = b.teamID
	e.Version = b.version
	e.Timestamp = time.Now()
	b.emitter.Emit(e)
}

func transitionError(t *models.Task, to models.TaskState) error {
	return fmt.Errorf("%w: task %s cannot go %s -> %s", ErrIllegalTransition, t.ID, t.State, to)
}
