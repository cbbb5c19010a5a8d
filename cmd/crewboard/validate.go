package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/crewboard/internal/plan"
	"github.com/ShayCichocki/crewboard/internal/team"
)

var validateTeamFile string

var validateCmd = &cobra.Command{
	Use:   "validate <plan.yaml>",
	Short: "Validate a plan file without executing it",
	Long: `Validate a plan file: YAML shape, task identifiers, dependency
references, and cycles. With --team, also checks that every assignee
resolves to a party in the team definition and that sub-plans line up with
sub-team assignments, recursively.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateTeamFile, "team", "t", "", "Team definition file to validate assignees against")
}

func runValidate(cmd *cobra.Command, args []string) error {
	planSpec, err := plan.Load(args[0])
	if err != nil {
		return err
	}
	p, err := planSpec.Compile()
	if err != nil {
		return err
	}
	fmt.Printf("%s plan %q: %d tasks, dependencies acyclic\n", color.GreenString("✓"), p.Name, len(p.Tasks))

	if validateTeamFile == "" {
		return nil
	}

	spec, err := team.LoadSpec(validateTeamFile)
	if err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	if err := checkAssignees(spec, p); err != nil {
		return err
	}
	fmt.Printf("%s team %q: all assignees resolve\n", color.GreenString("✓"), spec.Name)
	return nil
}

// checkAssignees verifies plan assignees against a team spec, descending into
// sub-plans with the matching sub-team spec.
func checkAssignees(spec *team.Spec, p *plan.Plan) error {
	children := make(map[string]*team.Spec)
	parties := make(map[string]bool)
	for _, w := range spec.Workers {
		parties[w.Name] = true
	}
	for i := range spec.Teams {
		child := &spec.Teams[i]
		parties[child.Name] = true
		children[child.Name] = child
	}

	for _, t := range p.Tasks {
		if t.Assignee == "" {
			continue
		}
		if !parties[t.Assignee] {
			return fmt.Errorf("plan %q: task %s assigned to unknown party %q in team %s",
				p.Name, t.ID, t.Assignee, spec.Name)
		}

		child, isSubteam := children[t.Assignee]
		sub := p.SubPlan(t.ID)
		if isSubteam && sub == nil {
			return fmt.Errorf("plan %q: task %s targets sub-team %s but carries no sub-plan", p.Name, t.ID, t.Assignee)
		}
		if !isSubteam && sub != nil {
			return fmt.Errorf("plan %q: task %s carries a sub-plan but %s is not a sub-team", p.Name, t.ID, t.Assignee)
		}
		if isSubteam {
			if err := checkAssignees(child, sub); err != nil {
				return err
			}
		}
	}
	return nil
}
