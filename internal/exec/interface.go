// Package exec provides an interface for command execution.
package exec

import (
	"context"
)

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// RunShell executes a shell command through "sh -c".
	// This is a convenience method for running complex shell commands.
	RunShell(ctx context.Context, workDir string, command string) (output []byte, err error)

	// RunShellInput executes a shell command with data piped to its stdin.
	// Command workers use this to hand the task payload to the command.
	RunShellInput(ctx context.Context, workDir string, command string, input []byte) (output []byte, err error)
}
