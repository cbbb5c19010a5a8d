// Package team models the team hierarchy: a coordinator, ordered workers,
// and nested sub-teams, each team owning its own board and notification
// engine. Leaf workers and sub-teams are both parties; the board and the
// notification engine never branch on which variant they hold.
package team

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/internal/notify"
	"github.com/ShayCichocki/crewboard/internal/plan"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// Reporter is the write path a worker uses for execution outcomes on its
// team's current board.
type Reporter interface {
	// Start marks the worker's task in progress.
	Start(taskID string) error
	// Report delivers the task's outcome. This is the sole write path for
	// execution results.
	Report(taskID string, outcome models.Outcome) error
}

// PartyFactory builds the worker adapter for a worker spec. It lives outside
// this package so the team layer stays free of transport concerns.
type PartyFactory func(ws WorkerSpec, r Reporter) (notify.Party, error)

// Driver moves a team's published plan to settlement. Implementations live
// in the coordinator package; both modes satisfy the same contract.
type Driver interface {
	DriveExecution(ctx context.Context, t *Team) error
}

// DriverFactory builds the driver matching a team's mode.
type DriverFactory func(t *Team) Driver

// Team is one node of the hierarchy. Teams persist across plan lifecycles;
// each Execute call installs a fresh board.
type Team struct {
	id          string
	name        string
	coordinator string
	mode        models.Mode

	workers    []notify.Party
	byName     map[string]notify.Party
	children   []*Team
	subParties map[string]*subteamParty

	parties PartyFactory
	drivers DriverFactory

	mu     sync.Mutex
	board  *board.Board
	plan   *plan.Plan
	active bool

	debugLog func(format string, args ...interface{})
}

// New builds a team hierarchy from a validated spec. The same factories are
// used for every nested team.
func New(spec *Spec, parties PartyFactory, drivers DriverFactory) (*Team, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return build(spec, parties, drivers)
}

func build(spec *Spec, parties PartyFactory, drivers DriverFactory) (*Team, error) {
	t := &Team{
		id:          fmt.Sprintf("%s-%s", spec.Name, uuid.New().String()[:8]),
		name:        spec.Name,
		coordinator: spec.Coordinator,
		mode:        spec.Mode,
		byName:      make(map[string]notify.Party),
		subParties:  make(map[string]*subteamParty),
		parties:     parties,
		drivers:     drivers,
		debugLog:    func(format string, args ...interface{}) {},
	}

	for _, ws := range spec.Workers {
		p, err := parties(ws, t)
		if err != nil {
			return nil, fmt.Errorf("team %s: worker %s: %w", spec.Name, ws.Name, err)
		}
		t.workers = append(t.workers, p)
		t.byName[ws.Name] = p
	}

	for i := range spec.Teams {
		child, err := build(&spec.Teams[i], parties, drivers)
		if err != nil {
			return nil, err
		}
		t.children = append(t.children, child)
		t.subParties[child.name] = &subteamParty{parent: t, child: child}
	}

	return t, nil
}

// SetDebugLog sets the debug logging function for this team and its
// descendants.
func (t *Team) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn == nil {
		return
	}
	t.debugLog = fn
	for _, child := range t.children {
		child.SetDebugLog(fn)
	}
}

// ID returns the team's unique identifier.
func (t *Team) ID() string { return t.id }

// Name returns the team's declared name.
func (t *Team) Name() string { return t.name }

// Coordinator returns the coordinator's name.
func (t *Team) Coordinator() string { return t.coordinator }

// Mode returns the team's driving protocol.
func (t *Team) Mode() models.Mode { return t.mode }

// Children returns the team's sub-teams in declaration order.
func (t *Team) Children() []*Team { return t.children }

// Workers returns the team's worker parties in declaration order. A manual
// coordinator hands unaddressed tasks to these in rotation.
func (t *Team) Workers() []notify.Party { return t.workers }

// Board returns the board of the current plan lifecycle, nil before the
// first Execute.
func (t *Team) Board() *board.Board {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.board
}

// Plan returns the currently executing plan, nil outside a lifecycle.
func (t *Team) Plan() *plan.Plan {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.plan
}

// Resolve returns the party for an assignee name: a worker, or the sub-team
// party wrapping a child team. Implements notify.Resolver.
func (t *Team) Resolve(assignee string) (notify.Party, error) {
	if p, ok := t.byName[assignee]; ok {
		return p, nil
	}
	if p, ok := t.subParties[assignee]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("team %s has no party %q", t.name, assignee)
}

// Start implements Reporter against the current board.
func (t *Team) Start(taskID string) error {
	b := t.Board()
	if b == nil {
		return board.ErrNoPlan
	}
	return b.MarkStarted(taskID)
}

// Report implements Reporter against the current board.
func (t *Team) Report(taskID string, outcome models.Outcome) error {
	b := t.Board()
	if b == nil {
		return board.ErrNoPlan
	}
	return b.ReportResult(taskID, outcome)
}

// Execute runs one full plan lifecycle: validate the plan against the team,
// publish it on a fresh board, drive it to settlement with the mode's
// driver, and aggregate the final snapshot into a single outcome. A team
// runs at most one plan at a time.
func (t *Team) Execute(ctx context.Context, p *plan.Plan) (models.Outcome, error) {
	b, err := t.beginPlan(p)
	if err != nil {
		return models.Outcome{}, err
	}
	defer t.endPlan()

	if err := b.Publish(p); err != nil {
		return models.Outcome{}, err
	}
	t.debugLog("[team %s] published plan %q (%d tasks, mode %s)", t.name, p.Name, len(p.Tasks), t.mode)

	driver := t.drivers(t)
	driveErr := driver.DriveExecution(ctx, t)

	snap := b.Snapshot()
	b.Close()

	if driveErr != nil {
		return models.Outcome{}, driveErr
	}
	return aggregate(snap), nil
}

// beginPlan validates assignees and installs a fresh board for the
// lifecycle.
func (t *Team) beginPlan(p *plan.Plan) (*board.Board, error) {
	if p == nil {
		return nil, fmt.Errorf("nil plan")
	}
	if err := t.checkAssignees(p); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return nil, fmt.Errorf("%w: team %s is executing a plan", board.ErrPlanAlreadyPublished, t.name)
	}
	b := board.New(t.id)
	b.SetDebugLog(t.debugLog)
	t.board = b
	t.plan = p
	t.active = true
	return b, nil
}

func (t *Team) endPlan() {
	t.mu.Lock()
	t.active = false
	t.mu.Unlock()
}

// checkAssignees resolves every declared assignee before publish, so an
// unresolved party is reported synchronously to the plan submitter instead
// of surfacing mid-execution. Sub-team targets must carry a sub-plan and
// vice versa.
func (t *Team) checkAssignees(p *plan.Plan) error {
	for _, task := range p.Tasks {
		if task.Assignee == "" {
			if t.mode == models.ModeEvents {
				return fmt.Errorf("%w: task %s has no assignee", board.ErrUnresolvedParty, task.ID)
			}
			continue
		}
		if _, err := t.Resolve(task.Assignee); err != nil {
			return fmt.Errorf("%w: task %s: %v", board.ErrUnresolvedParty, task.ID, err)
		}

		_, isSubteam := t.subParties[task.Assignee]
		hasSubPlan := p.SubPlan(task.ID) != nil
		if isSubteam && !hasSubPlan {
			return fmt.Errorf("task %s targets sub-team %s but carries no sub-plan", task.ID, task.Assignee)
		}
		if !isSubteam && hasSubPlan {
			return fmt.Errorf("task %s carries a sub-plan but %s is not a sub-team", task.ID, task.Assignee)
		}
	}

	for taskID := range p.SubPlans {
		found := false
		for _, task := range p.Tasks {
			if task.ID == taskID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("sub-plan attached to unknown task %s", taskID)
		}
	}
	return nil
}

// aggregate folds a settled board snapshot into the single outcome reported
// upward: completed with joined results when every task completed, failed
// with joined reasons otherwise.
func aggregate(snap board.Snapshot) models.Outcome {
	var results, problems []string
	for _, task := range snap.Tasks {
		switch task.State {
		case models.TaskCompleted:
			if task.Result != "" {
				results = append(results, fmt.Sprintf("%s: %s", task.ID, task.Result))
			}
		case models.TaskFailed:
			problems = append(problems, fmt.Sprintf("%s failed: %s", task.ID, task.FailureReason))
		case models.TaskCancelled:
			problems = append(problems, fmt.Sprintf("%s cancelled", task.ID))
		default:
			problems = append(problems, fmt.Sprintf("%s stalled in %s", task.ID, task.State))
		}
	}

	if len(problems) > 0 {
		return models.Failed(strings.Join(problems, "; "))
	}
	return models.Completed(strings.Join(results, "\n"))
}
