package board

import "time"

// EventType represents the type of board event.
type EventType string

const (
	// EventPlanPublished indicates a plan was installed on the board.
	EventPlanPublished EventType = "plan_published"
	// EventTaskRunnable indicates a task's dependencies all completed.
	EventTaskRunnable EventType = "task_runnable"
	// EventTaskAssigned indicates a task was handed to a party.
	EventTaskAssigned EventType = "task_assigned"
	// EventTaskStarted indicates a party began working a task.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventTaskCancelled indicates a task was cancelled.
	EventTaskCancelled EventType = "task_cancelled"
	// EventPlanCancelled indicates the whole plan was cancelled.
	EventPlanCancelled EventType = "plan_cancelled"
	// EventPlanSettled indicates no task is active anymore: every task is
	// completed, failed, or cancelled. The coordinator decides whether to
	// requeue failures or close the plan.
	EventPlanSettled EventType = "plan_settled"
)

// Event represents a state change on a board.
// The notification engine, drivers, and the watch view consume these.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TeamID is the ID of the team owning the board.
	TeamID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// Title is the title of the related task, if applicable.
	Title string
	// Description is the task's work payload, carried so the notification
	// engine can build assignments without re-reading the board.
	Description string
	// Assignee is the declared target party name for the task.
	Assignee string
	// PartyID is the resolved party for assignment events.
	PartyID string
	// Version is the board's plan version when the event was emitted.
	Version int
	// Reason carries the failure or cancellation reason, if applicable.
	Reason string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
