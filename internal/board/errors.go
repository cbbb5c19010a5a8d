package board

import (
	"errors"

	"github.com/ShayCichocki/crewboard/internal/graph"
)

// ErrCycleDetected indicates the submitted plan contains a dependency cycle.
// Re-exported from the graph package so callers only import board.
var ErrCycleDetected = graph.ErrCycleDetected

// ErrDuplicateTask indicates the submitted plan reuses a task identifier.
var ErrDuplicateTask = graph.ErrDuplicateTask

// ErrPlanAlreadyPublished indicates the board already holds a live plan.
var ErrPlanAlreadyPublished = errors.New("plan already published")

// ErrNoPlan indicates an operation that needs a published plan ran before one.
var ErrNoPlan = errors.New("no plan published")

// ErrIllegalTransition indicates a state transition that is not valid from
// the task's current state.
var ErrIllegalTransition = errors.New("illegal task transition")

// ErrUnknownTask indicates a task identifier not present on the board.
var ErrUnknownTask = errors.New("unknown task")

// ErrUnresolvedParty indicates a task assigned to a party that does not
// exist in the team.
var ErrUnresolvedParty = errors.New("unresolved party")
