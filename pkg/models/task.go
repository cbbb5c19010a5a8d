// Package models defines the shared data model for crewboard: tasks,
// their lifecycle states, execution outcomes, and coordination modes.
package models

import "time"

// TaskState represents the current state of a task on a board.
type TaskState string

const (
	// TaskPending indicates not all dependencies are satisfied yet.
	TaskPending TaskState = "pending"
	// TaskRunnable indicates all dependencies completed but the task is unassigned.
	TaskRunnable TaskState = "runnable"
	// TaskAssigned indicates the task was handed to a party, awaiting start.
	TaskAssigned TaskState = "assigned"
	// TaskInProgress indicates a party is actively working the task.
	TaskInProgress TaskState = "in_progress"
	// TaskCompleted indicates the task finished successfully.
	TaskCompleted TaskState = "completed"
	// TaskFailed indicates the task failed. A coordinator may requeue it.
	TaskFailed TaskState = "failed"
	// TaskCancelled indicates the plan was cancelled before the task finished.
	TaskCancelled TaskState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskPending, TaskRunnable, TaskAssigned, TaskInProgress,
		TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are possible from this
// state. Failed is not terminal by itself: a coordinator may requeue a
// failed task until its retry budget runs out.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskCancelled:
		return true
	default:
		return false
	}
}

// Task represents a unit of work on a board.
type Task struct {
	// ID is the unique identifier for this task within its board.
	ID string `json:"id"`
	// TeamID is the ID of the team whose board owns this task.
	TeamID string `json:"team_id,omitempty"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description is the work payload, opaque to the core. It is passed
	// through to the party that accepts the task.
	Description string `json:"description,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// Assignee is the declared target party name from the plan
	// (a worker name or a sub-team name).
	Assignee string `json:"assignee,omitempty"`
	// AssignedTo is the ID of the party the task was handed to.
	// Empty until the task reaches the assigned state.
	AssignedTo string `json:"assigned_to,omitempty"`
	// State is the current lifecycle state of the task.
	State TaskState `json:"state"`
	// Result contains the completion payload, empty until completed.
	Result string `json:"result,omitempty"`
	// FailureReason contains the error message if the task failed.
	FailureReason string `json:"failure_reason,omitempty"`
	// RetryCount is the number of times this task has been requeued.
	RetryCount int `json:"retry_count,omitempty"`
	// CreatedAt is when the task was installed on its board.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task. Snapshots hand out clones so
// callers can never mutate board state through a snapshot.
func (t *Task) Clone() *Task {
	c := *t
	if t.DependsOn != nil {
		c.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}
