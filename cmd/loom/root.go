package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Task orchestration runtime",
	Long: `Loom decomposes a task into claim-disjoint subtasks, dispatches them in
dependency waves through isolated workers, and mediates every external
effect through a permission gateway.

Core capabilities:
- Decomposes work into parallelizable subtasks with disjoint resource claims
- Dispatches waves of workers bounded by a concurrency ceiling
- Gates every tool call through rules, hooks, and approval callbacks
- Refines single artifacts through an evaluator-optimizer loop
- Records sessions, memory, and a full tool-call audit trail`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(refineCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}
