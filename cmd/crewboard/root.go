package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crewboard",
	Short: "Team task coordination on shared boards",
	Long: `Crewboard coordinates teams of workers over shared task boards.

A coordinator publishes a plan (a set of tasks with dependencies) onto the
team's board. As dependencies complete, tasks become runnable and are handed
to workers: shell commands, Claude API calls, filesystem inboxes, or whole
sub-teams running their own nested plans.

Core capabilities:
- Dependency-ordered execution with cycle detection at publish time
- Event-driven or manual (polling) coordination per team
- Nested sub-teams, each with its own board and coordinator
- Retry and failure policies (continue, cancel dependents, halt)
- Archived run history in a local SQLite database`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
