package models

// Mode selects which driver moves a team's tasks from runnable to assigned.
type Mode string

const (
	// ModeManual means the coordinator polls the board and assigns tasks itself.
	ModeManual Mode = "manual"
	// ModeEvents means the notification engine drives assignment as
	// dependencies clear; the coordinator only publishes the plan.
	ModeEvents Mode = "events"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	return m == ModeManual || m == ModeEvents
}
