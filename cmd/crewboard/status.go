package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/crewboard/internal/state"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

var (
	statusRunID string
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archived plan runs",
	Long: `Display archived plan runs from the state database.

Without flags, lists the most recent runs. With --run, shows the final
state of every task in one run.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRunID, "run", "", "Show the tasks of one run by ID (prefixes work)")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "How many runs to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	// Try project database first, then global
	dbPath := state.ProjectDBPath(cwd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		dbPath = state.GlobalDBPath()
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No archived runs. Run 'crewboard run <plan.yaml>' to execute a plan.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if statusRunID != "" {
		return showRun(db, statusRunID)
	}
	return listRuns(db)
}

func listRuns(db *state.DB) error {
	runs, err := db.ListRuns(statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs. Run 'crewboard run <plan.yaml>' to execute a plan.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  plan %q  team %s  %s mode  %s\n",
			run.ID[:8],
			statusMarker(run.Status),
			run.PlanName,
			run.Team,
			run.Mode,
			run.StartedAt.Local().Format(time.DateTime))
	}
	return nil
}

func showRun(db *state.DB, id string) error {
	run, err := findRun(db, id)
	if err != nil {
		return err
	}

	fmt.Printf("run %s  plan %q  team %s  %s mode\n", run.ID, run.PlanName, run.Team, run.Mode)
	fmt.Printf("started %s", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Printf("  took %s", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Printf("\noutcome: %s\n", statusMarker(run.Status))
	if run.Reason != "" {
		fmt.Printf("reason: %s\n", run.Reason)
	}

	tasks, err := db.ListRunTasks(run.ID)
	if err != nil {
		return err
	}
	fmt.Println()
	for _, t := range tasks {
		line := fmt.Sprintf("  %s %-11s %s", taskMarker(t.State), t.State, t.ID)
		if t.AssignedTo != "" {
			line += "  → " + t.AssignedTo
		}
		if t.RetryCount > 0 {
			line += fmt.Sprintf("  (%d retries)", t.RetryCount)
		}
		if t.FailureReason != "" {
			line += "  " + t.FailureReason
		}
		fmt.Println(line)
	}
	return nil
}

// findRun resolves a run by full ID or unique prefix.
func findRun(db *state.DB, id string) (*state.Run, error) {
	if run, err := db.GetRun(id); err == nil {
		return run, nil
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		return nil, err
	}
	var match *state.Run
	for i := range runs {
		if len(id) > 0 && len(runs[i].ID) >= len(id) && runs[i].ID[:len(id)] == id {
			if match != nil {
				return nil, fmt.Errorf("run prefix %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return match, nil
}

func statusMarker(s models.OutcomeStatus) string {
	if s == models.OutcomeCompleted {
		return color.GreenString("completed")
	}
	return color.RedString("failed")
}

func taskMarker(s models.TaskState) string {
	switch s {
	case models.TaskCompleted:
		return color.GreenString("✓")
	case models.TaskFailed:
		return color.RedString("✗")
	case models.TaskCancelled:
		return color.MagentaString("⊘")
	default:
		return "·"
	}
}
