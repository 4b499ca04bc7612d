package exec

import (
	"context"
	"os/exec"
)

// ShellRunner implements CommandRunner using os/exec.
type ShellRunner struct{}

// NewRunner creates a ShellRunner.
func NewRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run executes a command and returns combined stdout/stderr output.
func (r *ShellRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.CombinedOutput()
}

// RunShell executes a shell command through "bash -c".
func (r *ShellRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	return r.Run(ctx, workDir, "bash", "-c", command)
}

var _ CommandRunner = (*ShellRunner)(nil)
