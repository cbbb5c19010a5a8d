package models

// OutcomeStatus represents the final status a party reports for a task.
type OutcomeStatus string

const (
	// OutcomeCompleted indicates the party finished the task successfully.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomeFailed indicates the party could not finish the task.
	OutcomeFailed OutcomeStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s OutcomeStatus) Valid() bool {
	return s == OutcomeCompleted || s == OutcomeFailed
}

// Outcome is the report a party delivers when it is done with a task.
// It is the sole write path for execution results into a board.
type Outcome struct {
	// Status indicates whether the task completed or failed.
	Status OutcomeStatus `json:"status"`
	// Result contains the completion payload for completed tasks.
	Result string `json:"result,omitempty"`
	// Reason contains the failure description for failed tasks.
	Reason string `json:"reason,omitempty"`
}

// Completed builds a successful outcome carrying a result payload.
func Completed(result string) Outcome {
	return Outcome{Status: OutcomeCompleted, Result: result}
}

// Failed builds a failed outcome carrying a reason.
func Failed(reason string) Outcome {
	return Outcome{Status: OutcomeFailed, Reason: reason}
}
