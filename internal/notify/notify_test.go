package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/internal/plan"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// fakeWorker accepts assignments and immediately works them to completion.
type fakeWorker struct {
	id    string
	board *board.Board

	mu         sync.Mutex
	accepts    map[string]int
	deliveries []string
	fail       bool // report failure instead of success
	rejections int  // number of Accept calls to reject first
}

func newFakeWorker(id string, b *board.Board) *fakeWorker {
	return &fakeWorker{id: id, board: b, accepts: make(map[string]int)}
}

func (w *fakeWorker) ID() string { return w.id }

func (w *fakeWorker) Accept(ctx context.Context, a Assignment) error {
	w.mu.Lock()
	if w.rejections > 0 {
		w.rejections--
		w.mu.Unlock()
		return fmt.Errorf("inbox unavailable")
	}
	w.accepts[a.TaskID]++
	w.deliveries = append(w.deliveries, a.DeliveryID)
	fail := w.fail
	w.mu.Unlock()

	go func() {
		if err := w.board.MarkStarted(a.TaskID); err != nil {
			return
		}
		if fail {
			w.board.ReportResult(a.TaskID, models.Failed("worker error"))
			return
		}
		w.board.ReportResult(a.TaskID, models.Completed("done "+a.TaskID))
	}()
	return nil
}

func (w *fakeWorker) acceptCount(taskID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.accepts[taskID]
}

// mapResolver resolves assignees from a static map.
type mapResolver map[string]Party

func (r mapResolver) Resolve(assignee string) (Party, error) {
	p, ok := r[assignee]
	if !ok {
		return nil, errors.New("no such party: " + assignee)
	}
	return p, nil
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func publish(t *testing.T, b *board.Board, tasks ...*models.Task) {
	t.Helper()
	if err := b.Publish(&plan.Plan{Name: "p", Tasks: tasks}); err != nil {
		t.Fatal(err)
	}
}

func TestEngineDrivesPlanToCompletion(t *testing.T) {
	b := board.New("team-1")
	w := newFakeWorker("w1", b)
	e := NewEngine(b, mapResolver{"worker": w})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publish(t, b,
		&models.Task{ID: "A", Assignee: "worker"},
		&models.Task{ID: "B", Assignee: "worker", DependsOn: []string{"A"}},
		&models.Task{ID: "C", Assignee: "worker", DependsOn: []string{"A"}},
	)

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	waitFor(t, b.Done, "plan did not complete")

	// Exactly one notification per task per transition.
	for _, id := range []string{"A", "B", "C"} {
		if got := w.acceptCount(id); got != 1 {
			t.Errorf("task %s accepted %d times, want 1", id, got)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop on context cancellation")
	}
}

func TestEngineDispatchesRunnableBacklog(t *testing.T) {
	b := board.New("team-1")
	w := newFakeWorker("w1", b)
	e := NewEngine(b, mapResolver{"worker": w})

	// Published long before the engine attaches, with more runnable tasks
	// than the event buffer holds: nothing is replayed, the engine must find
	// the whole frontier on the board itself.
	var tasks []*models.Task
	for i := 0; i < 3*board.DefaultEventBuffer; i++ {
		tasks = append(tasks, &models.Task{ID: fmt.Sprintf("t%03d", i), Assignee: "worker"})
	}
	publish(t, b, tasks...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	waitFor(t, b.Done, "plan did not complete")
	for _, task := range tasks {
		if got := w.acceptCount(task.ID); got != 1 {
			t.Errorf("task %s accepted %d times, want 1", task.ID, got)
		}
	}
}

func TestEngineStopsOnCancelledBoard(t *testing.T) {
	b := board.New("team-1")
	e := NewEngine(b, mapResolver{})

	// Cancelled before the engine ever subscribes, so no plan_cancelled
	// event reaches it; it must notice from the board.
	publish(t, b, &models.Task{ID: "A", Assignee: "worker"})
	if err := b.Cancel(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		e.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop on a cancelled board")
	}
}

func TestEngineUnresolvedAssigneeFailsTask(t *testing.T) {
	b := board.New("team-1")
	e := NewEngine(b, mapResolver{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	publish(t, b, &models.Task{ID: "A", Assignee: "ghost"})

	waitFor(t, func() bool {
		return b.Snapshot().Get("A").State == models.TaskFailed
	}, "unresolved task was not failed")

	got := b.Snapshot().Get("A")
	if got.FailureReason == "" {
		t.Error("expected unresolved party failure reason")
	}
}

func TestEngineRetriesDeliveryOnce(t *testing.T) {
	b := board.New("team-1")
	w := newFakeWorker("w1", b)
	w.rejections = 1 // first Accept fails, retry succeeds
	e := NewEngine(b, mapResolver{"worker": w})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	publish(t, b, &models.Task{ID: "A", Assignee: "worker"})

	waitFor(t, b.Done, "plan did not complete after delivery retry")
	if got := w.acceptCount("A"); got != 1 {
		t.Errorf("task A accepted %d times, want 1", got)
	}
}

func TestEngineFailsTaskOnPermanentDeliveryFailure(t *testing.T) {
	b := board.New("team-1")
	w := newFakeWorker("w1", b)
	w.rejections = 2 // both attempts fail
	e := NewEngine(b, mapResolver{"worker": w})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	publish(t, b, &models.Task{ID: "A", Assignee: "worker"})

	waitFor(t, func() bool {
		return b.Snapshot().Get("A").State == models.TaskFailed
	}, "undeliverable task was not failed")
}

func TestEngineStopsOnPlanCancelled(t *testing.T) {
	b := board.New("team-1")
	w := newFakeWorker("w1", b)
	e := NewEngine(b, mapResolver{"worker": w})

	// Hold the worker so nothing completes before the cancel.
	w.fail = false
	publish(t, b,
		&models.Task{ID: "A", Assignee: "worker"},
		&models.Task{ID: "B", Assignee: "worker", DependsOn: []string{"A"}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	if err := b.Cancel(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after plan cancellation")
	}
}

func TestEngineSkipsAlreadyAssignedTask(t *testing.T) {
	b := board.New("team-1")
	w := newFakeWorker("w1", b)
	e := NewEngine(b, mapResolver{"worker": w})

	publish(t, b, &models.Task{ID: "A", Assignee: "worker"})

	// A manual coordinator wins the assignment before the engine runs.
	if err := b.MarkAssigned("A", "manual"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	e.Run(ctx)

	if got := w.acceptCount("A"); got != 0 {
		t.Errorf("engine dispatched an already assigned task %d times", got)
	}
	if got := b.Snapshot().Get("A").AssignedTo; got != "manual" {
		t.Errorf("AssignedTo = %q, want manual", got)
	}
}
