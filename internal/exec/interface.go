// Package exec provides an interface for running external commands, letting
// tests substitute a fake for the gateway's Bash tool.
package exec

import (
	"context"
)

// CommandRunner runs external commands on behalf of tools.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// RunShell executes a shell command through "bash -c".
	RunShell(ctx context.Context, workDir string, command string) (output []byte, err error)
}
