package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/internal/notify"
	"github.com/ShayCichocki/crewboard/internal/plan"
	"github.com/ShayCichocki/crewboard/internal/team"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// scriptedWorker completes tasks, failing each one as many times as the
// shared failures script says before succeeding.
type scriptedWorker struct {
	name     string
	reporter team.Reporter

	mu       *sync.Mutex
	failures map[string]int
}

func (w *scriptedWorker) ID() string { return w.name }

func (w *scriptedWorker) Accept(ctx context.Context, a notify.Assignment) error {
	go func() {
		if err := w.reporter.Start(a.TaskID); err != nil {
			return
		}
		w.mu.Lock()
		n := w.failures[a.TaskID]
		if n > 0 {
			w.failures[a.TaskID] = n - 1
		}
		w.mu.Unlock()

		if n > 0 {
			w.reporter.Report(a.TaskID, models.Failed("scripted failure"))
			return
		}
		w.reporter.Report(a.TaskID, models.Completed("ok"))
	}()
	return nil
}

// newTeam builds a one-level team whose workers share a failure script and
// whose drivers come from this package with a short manual poll interval.
func newTeam(t *testing.T, mode models.Mode, policy Policy, failures map[string]int, workers ...string) *team.Team {
	t.Helper()

	var mu sync.Mutex
	if failures == nil {
		failures = map[string]int{}
	}
	factory := func(ws team.WorkerSpec, r team.Reporter) (notify.Party, error) {
		return &scriptedWorker{name: ws.Name, reporter: r, mu: &mu, failures: failures}, nil
	}
	drivers := func(tm *team.Team) team.Driver {
		if tm.Mode() == models.ModeManual {
			d := NewManualDriver(policy)
			d.SetPollInterval(2 * time.Millisecond)
			return d
		}
		return NewEventDriver(policy)
	}

	spec := &team.Spec{Name: "crew", Coordinator: "lead", Mode: mode}
	for _, w := range workers {
		spec.Workers = append(spec.Workers, team.WorkerSpec{Name: w, Type: "command", Command: "true"})
	}
	tm, err := team.New(spec, factory, drivers)
	if err != nil {
		t.Fatalf("team.New() = %v", err)
	}
	return tm
}

func testPlan(tasks ...*models.Task) *plan.Plan {
	return &plan.Plan{Name: "test", Tasks: tasks, SubPlans: map[string]*plan.Plan{}}
}

func task(id, assignee string, deps ...string) *models.Task {
	return &models.Task{ID: id, Title: id, Assignee: assignee, DependsOn: deps}
}

func TestEventDriverCompletesPlan(t *testing.T) {
	tm := newTeam(t, models.ModeEvents, DefaultPolicy(), nil, "w1", "w2")

	outcome, err := tm.Execute(context.Background(), testPlan(
		task("a", "w1"),
		task("b", "w2", "a"),
		task("c", "w1", "a"),
		task("d", "w2", "b", "c"),
	))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeCompleted {
		t.Fatalf("outcome = %+v, want completed", outcome)
	}
}

func TestEventDriverCompletesWidePlan(t *testing.T) {
	// Far more initially runnable tasks than the event buffer holds. The
	// engine dispatches from the board's runnable frontier, so the plan must
	// settle even though most runnable events never reach it.
	tm := newTeam(t, models.ModeEvents, DefaultPolicy(), nil, "w1")

	var tasks []*models.Task
	for i := 0; i < 4*board.DefaultEventBuffer; i++ {
		tasks = append(tasks, task(fmt.Sprintf("t%03d", i), "w1"))
	}
	outcome, err := tm.Execute(context.Background(), testPlan(tasks...))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeCompleted {
		t.Fatalf("outcome = %+v, want completed", outcome)
	}
}

func TestEventDriverCompletesWideFanOut(t *testing.T) {
	// One completion makes more tasks runnable than the event buffer holds,
	// bursting mid-run while the engine is attached.
	tm := newTeam(t, models.ModeEvents, DefaultPolicy(), nil, "w1")

	tasks := []*models.Task{task("root", "w1")}
	for i := 0; i < 4*board.DefaultEventBuffer; i++ {
		tasks = append(tasks, task(fmt.Sprintf("t%03d", i), "w1", "root"))
	}
	outcome, err := tm.Execute(context.Background(), testPlan(tasks...))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeCompleted {
		t.Fatalf("outcome = %+v, want completed", outcome)
	}
}

func TestEventDriverRetriesFailure(t *testing.T) {
	failures := map[string]int{"a": 1}
	tm := newTeam(t, models.ModeEvents, Policy{MaxRetries: 1, OnFailure: FailHalt}, failures, "w1")

	outcome, err := tm.Execute(context.Background(), testPlan(
		task("a", "w1"),
		task("b", "w1", "a"),
	))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeCompleted {
		t.Fatalf("outcome = %+v, want completed after retry", outcome)
	}
}

func TestEventDriverExhaustsRetries(t *testing.T) {
	failures := map[string]int{"a": 5}
	tm := newTeam(t, models.ModeEvents, Policy{MaxRetries: 2, OnFailure: FailContinue}, failures, "w1")

	outcome, err := tm.Execute(context.Background(), testPlan(task("a", "w1")))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeFailed {
		t.Fatalf("outcome = %+v, want failed", outcome)
	}
	if !strings.Contains(outcome.Reason, "a failed: scripted failure") {
		t.Errorf("reason = %q", outcome.Reason)
	}
}

func TestEventDriverContinuePolicyRunsIndependentWork(t *testing.T) {
	failures := map[string]int{"a": 1}
	tm := newTeam(t, models.ModeEvents, Policy{MaxRetries: 0, OnFailure: FailContinue}, failures, "w1")

	outcome, err := tm.Execute(context.Background(), testPlan(
		task("a", "w1"),
		task("b", "w1", "a"),
		task("c", "w1"),
	))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeFailed {
		t.Fatalf("outcome = %+v, want failed", outcome)
	}
	// Independent task completed, downstream task stranded pending.
	if !strings.Contains(outcome.Reason, "a failed") {
		t.Errorf("reason missing failure: %q", outcome.Reason)
	}
	if !strings.Contains(outcome.Reason, "b stalled in pending") {
		t.Errorf("reason missing stranded dependent: %q", outcome.Reason)
	}
	// Substring checks on the aggregated reason false-positive too easily;
	// the final board state is authoritative.
	snap := tm.Board().Snapshot()
	if got := snap.Get("c").State; got != models.TaskCompleted {
		t.Errorf("independent task c = %s, want completed", got)
	}
}

func TestEventDriverCancelDependentsPolicy(t *testing.T) {
	failures := map[string]int{"a": 1}
	tm := newTeam(t, models.ModeEvents, Policy{MaxRetries: 0, OnFailure: FailCancelDependents}, failures, "w1")

	outcome, err := tm.Execute(context.Background(), testPlan(
		task("a", "w1"),
		task("b", "w1", "a"),
		task("c", "w1", "b"),
		task("d", "w1"),
	))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeFailed {
		t.Fatalf("outcome = %+v, want failed", outcome)
	}
	snap := tm.Board().Snapshot()
	for _, id := range []string{"b", "c"} {
		if got := snap.Get(id).State; got != models.TaskCancelled {
			t.Errorf("dependent %s = %s, want cancelled", id, got)
		}
	}
	if got := snap.Get("d").State; got != models.TaskCompleted {
		t.Errorf("independent task d = %s, want completed", got)
	}
}

func TestEventDriverHaltPolicy(t *testing.T) {
	failures := map[string]int{"a": 1}
	tm := newTeam(t, models.ModeEvents, Policy{MaxRetries: 0, OnFailure: FailHalt}, failures, "w1")

	outcome, err := tm.Execute(context.Background(), testPlan(
		task("a", "w1"),
		task("b", "w1", "a"),
		task("c", "w1", "b"),
	))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeFailed {
		t.Fatalf("outcome = %+v, want failed", outcome)
	}
	if !strings.Contains(outcome.Reason, "a failed") {
		t.Errorf("reason = %q", outcome.Reason)
	}
}

func TestEventDriverContextCancellation(t *testing.T) {
	var mu sync.Mutex
	block := make(chan struct{})
	factory := func(ws team.WorkerSpec, r team.Reporter) (notify.Party, error) {
		w := &blockingWorker{name: ws.Name, reporter: r, mu: &mu, block: block}
		return w, nil
	}
	drivers := Drivers(DefaultPolicy(), nil)
	spec := &team.Spec{Name: "crew", Coordinator: "lead", Mode: models.ModeEvents,
		Workers: []team.WorkerSpec{{Name: "w1", Type: "command"}}}
	tm, err := team.New(spec, factory, drivers)
	if err != nil {
		t.Fatalf("team.New() = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = tm.Execute(ctx, testPlan(task("a", "w1")))
	close(block)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() = %v, want context.Canceled", err)
	}
}

type blockingWorker struct {
	name     string
	reporter team.Reporter
	mu       *sync.Mutex
	block    chan struct{}
}

func (w *blockingWorker) ID() string { return w.name }

func (w *blockingWorker) Accept(ctx context.Context, a notify.Assignment) error {
	go func() {
		if err := w.reporter.Start(a.TaskID); err != nil {
			return
		}
		<-w.block
		// The plan was cancelled; this late report must be tolerated.
		w.reporter.Report(a.TaskID, models.Completed("late"))
	}()
	return nil
}

func TestManualDriverCompletesPlan(t *testing.T) {
	tm := newTeam(t, models.ModeManual, DefaultPolicy(), nil, "w1", "w2")

	outcome, err := tm.Execute(context.Background(), testPlan(
		task("a", "w1"),
		task("b", "w2", "a"),
	))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeCompleted {
		t.Fatalf("outcome = %+v, want completed", outcome)
	}
}

func TestManualDriverRotatesUnaddressedTasks(t *testing.T) {
	tm := newTeam(t, models.ModeManual, DefaultPolicy(), nil, "w1", "w2")

	// Manual mode permits tasks without an assignee; the driver rotates them
	// across the workers.
	outcome, err := tm.Execute(context.Background(), testPlan(
		task("a", ""),
		task("b", "", "a"),
		task("c", "", "a"),
	))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeCompleted {
		t.Fatalf("outcome = %+v, want completed", outcome)
	}
}

func TestManualDriverAppliesFailurePolicy(t *testing.T) {
	failures := map[string]int{"a": 1}
	tm := newTeam(t, models.ModeManual, Policy{MaxRetries: 0, OnFailure: FailCancelDependents}, failures, "w1")

	outcome, err := tm.Execute(context.Background(), testPlan(
		task("a", "w1"),
		task("b", "w1", "a"),
	))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeFailed {
		t.Fatalf("outcome = %+v, want failed", outcome)
	}
	if !strings.Contains(outcome.Reason, "b cancelled") {
		t.Errorf("dependent not cancelled: %q", outcome.Reason)
	}
}

func TestManualDriverRetries(t *testing.T) {
	failures := map[string]int{"a": 2}
	tm := newTeam(t, models.ModeManual, Policy{MaxRetries: 2, OnFailure: FailHalt}, failures, "w1")

	outcome, err := tm.Execute(context.Background(), testPlan(task("a", "w1")))
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if outcome.Status != models.OutcomeCompleted {
		t.Fatalf("outcome = %+v, want completed after retries", outcome)
	}
}

func TestDriversFactoryMatchesMode(t *testing.T) {
	factory := Drivers(DefaultPolicy(), nil)

	eventsTeam := newTeam(t, models.ModeEvents, DefaultPolicy(), nil, "w1")
	manualTeam := newTeam(t, models.ModeManual, DefaultPolicy(), nil, "w1")

	if _, ok := factory(eventsTeam).(*EventDriver); !ok {
		t.Error("events mode did not get an EventDriver")
	}
	if _, ok := factory(manualTeam).(*ManualDriver); !ok {
		t.Error("manual mode did not get a ManualDriver")
	}
}

func TestDependentsOf(t *testing.T) {
	snap := board.Snapshot{Tasks: []*models.Task{
		task("a", ""),
		task("b", "", "a"),
		task("c", "", "b"),
		task("d", ""),
		task("e", "", "a", "d"),
	}}

	got := dependentsOf(snap, "a")
	want := []string{"b", "c", "e"}
	if len(got) != len(want) {
		t.Fatalf("dependentsOf(a) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dependentsOf(a) = %v, want %v", got, want)
		}
	}

	if got := dependentsOf(snap, "d"); len(got) != 1 || got[0] != "e" {
		t.Errorf("dependentsOf(d) = %v, want [e]", got)
	}
	if got := dependentsOf(snap, "c"); len(got) != 0 {
		t.Errorf("dependentsOf(c) = %v, want none", got)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("DefaultPolicy().Validate() = %v", err)
	}
	if err := (Policy{MaxRetries: -1, OnFailure: FailHalt}).Validate(); err == nil {
		t.Error("negative retries accepted")
	}
	if err := (Policy{MaxRetries: 0, OnFailure: "explode"}).Validate(); err == nil {
		t.Error("invalid failure action accepted")
	}
}
