package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize crewboard in the current directory",
	Long: `Set up the current directory for crewboard:

  - Creates the .crewboard directory (state database, logs, inboxes)
  - Adds .crewboard to .gitignore
  - Writes a .crewboard.yaml config template
  - Writes example team and plan definitions if none exist`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	for _, dir := range []string{".crewboard/logs", ".crewboard/inbox"} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	printStatus("✓", "Created .crewboard directory structure", color.FgGreen)

	if err := ensureGitignore(); err != nil {
		printStatus("⚠", fmt.Sprintf("Could not update .gitignore: %v", err), color.FgYellow)
	} else {
		printStatus("✓", "Updated .gitignore", color.FgGreen)
	}

	if created, err := writeIfMissing(".crewboard.yaml", configTemplate); err != nil {
		return err
	} else if created {
		printStatus("✓", "Created .crewboard.yaml template", color.FgGreen)
	}

	if created, err := writeIfMissing("team.yaml", teamTemplate); err != nil {
		return err
	} else if created {
		printStatus("✓", "Created example team.yaml", color.FgGreen)
	}
	if created, err := writeIfMissing("plan.yaml", planTemplate); err != nil {
		return err
	} else if created {
		printStatus("✓", "Created example plan.yaml", color.FgGreen)
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (only needed for claude workers)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	fmt.Printf("\n%s crewboard initialized. Try: crewboard run plan.yaml --team team.yaml\n", color.GreenString("✓"))
	return nil
}

func ensureGitignore() error {
	const entry = ".crewboard/"

	data, err := os.ReadFile(".gitignore")
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if strings.Contains(string(data), entry) {
		return nil
	}

	f, err := os.OpenFile(".gitignore", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		fmt.Fprintln(f)
	}
	_, err = fmt.Fprintln(f, entry)
	return err
}

func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

const configTemplate = `# crewboard project configuration
# Overrides ~/.config/crewboard/config.yaml for this directory tree.

defaults:
  mode: events            # events or manual
  max_retries: 1
  on_failure: cancel-dependents   # continue, cancel-dependents, or halt

worker:
  command: ""             # fallback command for command workers
  inbox_root: .crewboard/inbox

# anthropic:
#   api_key: ${ANTHROPIC_API_KEY}
#   model: claude-sonnet-4-20250514
#   aws_bedrock: false

logging:
  debug: false
  dir: .crewboard
`

const teamTemplate = `# Example team definition.
name: crew
coordinator: lead
mode: events
workers:
  - name: builder
    type: command
    command: "cat"          # echoes the assignment payload back as the result
  - name: reviewer
    type: command
    command: "cat"
`

const planTemplate = `# Example plan: two independent tasks and one that waits for both.
name: example
tasks:
  - id: prepare
    title: Prepare inputs
    assignee: builder
  - id: review
    title: Review inputs
    assignee: reviewer
  - id: finish
    title: Combine results
    assignee: builder
    depends_on: [prepare, review]
`
