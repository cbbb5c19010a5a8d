package team

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/crewboard/internal/notify"
	"github.com/ShayCichocki/crewboard/internal/plan"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// subteamParty presents a child team as a party on the parent's board.
// Accepting an assignment forwards the task's sub-plan into the child
// team's own board; the parent task stays in progress until the child's
// plan settles and the aggregate outcome is reported back up.
type subteamParty struct {
	parent *Team
	child  *Team
}

// ID returns the child team's identifier.
func (p *subteamParty) ID() string { return p.child.ID() }

// Accept takes delivery of a delegated task. It returns quickly; the child
// team's whole plan lifecycle runs in its own goroutine.
func (p *subteamParty) Accept(ctx context.Context, a notify.Assignment) error {
	sub := p.parent.Plan().SubPlan(a.TaskID)
	if sub == nil {
		return fmt.Errorf("task %s has no sub-plan for team %s", a.TaskID, p.child.Name())
	}

	// Winning the started transition makes a re-delivered assignment a
	// no-op: only the first delivery launches the child plan.
	if err := p.parent.Start(a.TaskID); err != nil {
		p.parent.debugLog("[team %s] duplicate or late delivery of %s: %v", p.parent.Name(), a.TaskID, err)
		return nil
	}

	go p.run(ctx, a.TaskID, sub)
	return nil
}

func (p *subteamParty) run(ctx context.Context, taskID string, sub *plan.Plan) {
	outcome, err := p.child.Execute(ctx, sub)
	if err != nil {
		outcome = models.Failed(fmt.Sprintf("sub-team %s: %v", p.child.Name(), err))
	}
	if rerr := p.parent.Report(taskID, outcome); rerr != nil {
		p.parent.debugLog("[team %s] report for delegated task %s: %v", p.parent.Name(), taskID, rerr)
	}
}
