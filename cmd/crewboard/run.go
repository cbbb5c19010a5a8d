package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/crewboard/internal/api"
	"github.com/ShayCichocki/crewboard/internal/board"
	"github.com/ShayCichocki/crewboard/internal/config"
	"github.com/ShayCichocki/crewboard/internal/coordinator"
	"github.com/ShayCichocki/crewboard/internal/logging"
	"github.com/ShayCichocki/crewboard/internal/plan"
	"github.com/ShayCichocki/crewboard/internal/state"
	"github.com/ShayCichocki/crewboard/internal/team"
	"github.com/ShayCichocki/crewboard/internal/tui"
	"github.com/ShayCichocki/crewboard/internal/worker"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

var (
	runTeamFile   string
	runMode       string
	runMaxRetries int
	runOnFailure  string
	runWatch      bool
	runDebug      bool
	runNoArchive  bool
)

var runCmd = &cobra.Command{
	Use:   "run <plan.yaml>",
	Short: "Execute a plan with a team",
	Long: `Execute a plan file against a team definition.

The plan is validated and published onto the team's board; the team's
coordinator drives it to settlement. Tasks become runnable as their
dependencies complete and are handed to the declared assignees. Tasks
assigned to sub-teams forward their nested sub-plan into the sub-team's
own board.

Failure handling is a coordinator policy, not a board rule:
  --max-retries  how often a failed task is requeued
  --on-failure   what happens when retries are exhausted:
                   continue          let independent work finish
                   cancel-dependents cancel everything downstream (default)
                   halt              cancel the whole plan

Finished runs are archived to .crewboard/state.db; inspect them with
'crewboard status'.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	runCmd.Flags().StringVarP(&runTeamFile, "team", "t", "team.yaml", "Team definition file")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Override the team's coordination mode: events or manual")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "Override how often a failed task is requeued")
	runCmd.Flags().StringVar(&runOnFailure, "on-failure", "", "Override the exhausted-retries action: continue, cancel-dependents, or halt")
	runCmd.Flags().BoolVarP(&runWatch, "watch", "w", false, "Watch execution in a live terminal view")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Write a debug log to .crewboard/logs")
	runCmd.Flags().BoolVar(&runNoArchive, "no-archive", false, "Skip archiving the run to the state database")
}

type runResult struct {
	outcome models.Outcome
	err     error
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	spec, err := team.LoadSpec(runTeamFile)
	if err != nil {
		return err
	}
	if runMode != "" {
		spec.Mode = models.Mode(runMode)
	} else if spec.Mode == "" {
		spec.Mode = models.Mode(cfg.Defaults.Mode)
	}

	planSpec, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	p, err := planSpec.Compile()
	if err != nil {
		return err
	}

	policy := coordinator.Policy{
		MaxRetries: cfg.Defaults.MaxRetries,
		OnFailure:  coordinator.FailureAction(cfg.Defaults.OnFailure),
	}
	if cmd.Flags().Changed("max-retries") {
		policy.MaxRetries = runMaxRetries
	}
	if runOnFailure != "" {
		policy.OnFailure = coordinator.FailureAction(runOnFailure)
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	logger := logging.NopLogger()
	if cfg.Logging.Debug || runDebug {
		logger = logging.NewDebugLoggerForDir(cfg.Logging.Dir)
	}
	defer logger.Close()

	factory := &worker.Factory{
		WorkDir:        cfg.Worker.WorkDir,
		DefaultCommand: cfg.Worker.Command,
		DefaultModel:   cfg.Anthropic.Model,
		InboxRoot:      cfg.Worker.InboxRoot,
		DebugLog:       logger.Log,
	}
	defer factory.Close()

	if specNeedsClaude(spec) {
		client, err := buildClient(cfg)
		if err != nil {
			return err
		}
		factory.Client = client
	}

	tm, err := team.New(spec, factory.Party, coordinator.Drivers(policy, logger.Log))
	if err != nil {
		return err
	}
	tm.SetDebugLog(logger.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := uuid.New().String()
	started := time.Now()
	fmt.Printf("Executing plan %q with team %s (%s mode, run %s)\n",
		p.Name, tm.Name(), tm.Mode(), runID[:8])

	var res runResult
	if runWatch {
		res = executeWatched(ctx, cancel, tm, p, cfg.TUI.RefreshRate)
	} else {
		res.outcome, res.err = tm.Execute(ctx, p)
	}

	if !runNoArchive && tm.Board() != nil {
		if err := archiveRun(tm, p, runID, started, res); err != nil {
			fmt.Fprintf(os.Stderr, "warning: archive run: %v\n", err)
		}
	}

	if res.err != nil {
		return res.err
	}
	printOutcome(res.outcome)
	if res.outcome.Status == models.OutcomeFailed {
		return fmt.Errorf("plan %q failed", p.Name)
	}
	return nil
}

// executeWatched runs the plan behind the live watch view. Quitting the view
// early cancels the plan.
func executeWatched(ctx context.Context, cancel context.CancelFunc, tm *team.Team, p *plan.Plan, refresh time.Duration) runResult {
	watch := tui.NewWatch(func() (board.Snapshot, bool) {
		b := tm.Board()
		if b == nil {
			return board.Snapshot{}, false
		}
		return b.Snapshot(), true
	}, refresh)

	prog := tea.NewProgram(watch)

	resCh := make(chan runResult, 1)
	go func() {
		outcome, err := tm.Execute(ctx, p)
		resCh <- runResult{outcome: outcome, err: err}
		prog.Send(tui.PlanDoneMsg{Outcome: outcome, Err: err})
	}()

	if _, err := prog.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: watch view: %v\n", err)
	}
	cancel()
	return <-resCh
}

// specNeedsClaude reports whether any team in the hierarchy declares a claude
// worker, so the API client is only built when something will use it.
func specNeedsClaude(spec *team.Spec) bool {
	for _, w := range spec.Workers {
		if w.Type == worker.TypeClaude {
			return true
		}
	}
	for i := range spec.Teams {
		if specNeedsClaude(&spec.Teams[i]) {
			return true
		}
	}
	return false
}

func buildClient(cfg *config.Config) (*api.Client, error) {
	clientCfg := api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !clientCfg.UseAWSBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("team declares a claude worker: %w", err)
		}
		clientCfg.APIKey = key
	}
	return api.NewClient(clientCfg)
}

func archiveRun(tm *team.Team, p *plan.Plan, runID string, started time.Time, res runResult) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	db, err := state.OpenProject(cwd)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	finished := time.Now()
	run := &state.Run{
		ID:         runID,
		Team:       tm.Name(),
		PlanName:   p.Name,
		Mode:       tm.Mode(),
		Status:     res.outcome.Status,
		Result:     res.outcome.Result,
		Reason:     res.outcome.Reason,
		StartedAt:  started,
		FinishedAt: &finished,
	}
	if res.err != nil {
		run.Status = models.OutcomeFailed
		run.Reason = res.err.Error()
	}
	return db.ArchiveRun(run, tm.Board().Snapshot())
}

func printOutcome(outcome models.Outcome) {
	if outcome.Status == models.OutcomeCompleted {
		fmt.Printf("\n%s plan completed\n", color.GreenString("✓"))
		if outcome.Result != "" {
			fmt.Println(outcome.Result)
		}
		return
	}
	fmt.Printf("\n%s plan failed\n", color.RedString("✗"))
	if outcome.Reason != "" {
		fmt.Println(outcome.Reason)
	}
}
