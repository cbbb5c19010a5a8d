package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// Run is one archived plan lifecycle: the plan a team executed, the protocol
// it ran under, and the aggregate outcome.
type Run struct {
	ID         string
	Team       string
	PlanName   string
	Mode       models.Mode
	Status     models.OutcomeStatus
	Result     string
	Reason     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// ArchiveRun stores a finished run and the final state of every task from
// the board snapshot, atomically.
func (db *DB) ArchiveRun(run *Run, snap board.Snapshot) error {
	if run.ID == "" {
		return fmt.Errorf("run without id")
	}

	return db.Transaction(func(tx *sql.Tx) error {
		var finished any
		if run.FinishedAt != nil {
			finished = formatTime(*run.FinishedAt)
		}
		_, err := tx.Exec(`
			INSERT INTO runs (id, team, plan_name, mode, status, result, reason, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, run.Team, run.PlanName, string(run.Mode), string(run.Status),
			run.Result, run.Reason, formatTime(run.StartedAt), finished)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, t := range snap.Tasks {
			deps, err := json.Marshal(t.DependsOn)
			if err != nil {
				return fmt.Errorf("encode dependencies of %s: %w", t.ID, err)
			}
			var completed any
			if t.CompletedAt != nil {
				completed = formatTime(*t.CompletedAt)
			}
			_, err = tx.Exec(`
				INSERT INTO run_tasks (run_id, task_id, title, assignee, assigned_to,
					state, result, failure_reason, retry_count, depends_on, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, run.ID, t.ID, t.Title, t.Assignee, t.AssignedTo,
				string(t.State), t.Result, t.FailureReason, t.RetryCount, string(deps), completed)
			if err != nil {
				return fmt.Errorf("insert task %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

// GetRun retrieves one archived run by ID.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`
		SELECT id, team, plan_name, mode, status, result, reason, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return run, err
}

// ListRuns returns archived runs, most recent first. A non-positive limit
// returns all of them.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, team, plan_name, mode, status, result, reason, started_at, finished_at
		FROM runs ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListRunTasks returns the archived final task states of a run in archive
// order.
func (db *DB) ListRunTasks(runID string) ([]*models.Task, error) {
	rows, err := db.Query(`
		SELECT task_id, title, assignee, assigned_to, state, result,
			failure_reason, retry_count, depends_on, completed_at
		FROM run_tasks WHERE run_id = ? ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var (
			t         models.Task
			state     string
			deps      sql.NullString
			completed sql.NullString
		)
		err := rows.Scan(&t.ID, &t.Title, &t.Assignee, &t.AssignedTo, &state,
			&t.Result, &t.FailureReason, &t.RetryCount, &deps, &completed)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.State = models.TaskState(state)
		if deps.Valid && deps.String != "" {
			if err := json.Unmarshal([]byte(deps.String), &t.DependsOn); err != nil {
				return nil, fmt.Errorf("decode dependencies of %s: %w", t.ID, err)
			}
		}
		t.CompletedAt = parseNullableTime(completed)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		mode     string
		status   string
		started  string
		finished sql.NullString
	)
	err := row.Scan(&run.ID, &run.Team, &run.PlanName, &mode, &status,
		&run.Result, &run.Reason, &started, &finished)
	if err != nil {
		return nil, err
	}

	run.Mode = models.Mode(mode)
	run.Status = models.OutcomeStatus(status)
	run.StartedAt, err = parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.FinishedAt = parseNullableTime(finished)
	return &run, nil
}
