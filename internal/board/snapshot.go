package board

import "github.com/ShayCichocki/crewboard/pkg/models"

// Snapshot is a consistent point-in-time view of a board. Tasks are deep
// copies in plan order; mutating a snapshot never touches board state, and
// no partially applied transition is ever visible because the copy is taken
// under the board mutex.
type Snapshot struct {
	// TeamID is the ID of the team owning the board.
	TeamID string
	// PlanName is the name of the published plan.
	PlanName string
	// Version is the plan version the snapshot was taken at.
	Version int
	// Cancelled reports whether the plan was cancelled.
	Cancelled bool
	// Tasks holds task copies in plan order.
	Tasks []*models.Task
}

// Snapshot returns an immutable view of all task states.
// Manual-mode coordinators and the watch view poll this.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		TeamID:    b.teamID,
		PlanName:  b.planName,
		Version:   b.version,
		Cancelled: b.cancelled,
	}
	for _, id := range b.graph.Order() {
		snap.Tasks = append(snap.Tasks, b.tasks[id].Clone())
	}
	return snap
}

// Get returns the snapshot's copy of a task, or nil if absent.
func (s Snapshot) Get(taskID string) *models.Task {
	for _, t := range s.Tasks {
		if t.ID == taskID {
			return t
		}
	}
	return nil
}

// InState returns the snapshot's tasks in the given state, in plan order.
func (s Snapshot) InState(state models.TaskState) []*models.Task {
	var out []*models.Task
	for _, t := range s.Tasks {
		if t.State == state {
			out = append(out, t)
		}
	}
	return out
}

// Counts returns the number of tasks per state.
func (s Snapshot) Counts() map[models.TaskState]int {
	counts := make(map[models.TaskState]int)
	for _, t := range s.Tasks {
		counts[t.State]++
	}
	return counts
}
