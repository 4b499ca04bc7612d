package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/loom/internal/api"
	"github.com/ShayCichocki/loom/internal/config"
	"github.com/ShayCichocki/loom/internal/decompose"
	"github.com/ShayCichocki/loom/internal/orchestrator"
	"github.com/ShayCichocki/loom/internal/tui"
	"github.com/ShayCichocki/loom/pkg/models"
)

var (
	runPlanOnly   bool
	runYAML       bool
	runWatch      bool
	runMode       string
	runFailFast   bool
	runMaxWorkers int
	runTimeout    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Decompose a goal and dispatch it across parallel workers",
	Long: `Run decomposes the goal into claim-disjoint subtasks and dispatches them
in dependency waves. Exit codes: 0 completed, 2 partially completed,
1 failed, 130 cancelled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := strings.Join(args, " ")
		task := models.Task{
			ID:        uuid.New().String(),
			Goal:      goal,
			Timeout:   runTimeout,
			CreatedAt: time.Now(),
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runPlanOnly {
			return planOnly(ctx, task)
		}
		return runTask(ctx, task)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runPlanOnly, "plan-only", false, "print the decomposition without dispatching")
	runCmd.Flags().BoolVar(&runYAML, "yaml", false, "emit plan-only output as YAML instead of JSON")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "show the live dashboard while the run executes")
	runCmd.Flags().StringVar(&runMode, "mode", "", "permission mode override (default, ask, bypass)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "cancel the run on the first subtask failure")
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "concurrency ceiling override")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "overall run deadline (e.g. 10m)")
}

// planOnly decomposes the task and prints the subtasks without touching any
// store or dispatching a single worker.
func planOnly(ctx context.Context, task models.Task) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	dec := decompose.New(api.NewPlanner(client))
	subtasks, err := dec.Decompose(ctx, task, "")
	if err != nil {
		return fmt.Errorf("decompose: %w", err)
	}

	var out []byte
	if runYAML {
		out, err = yaml.Marshal(subtasks)
	} else {
		out, err = json.MarshalIndent(subtasks, "", "  ")
	}
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runTask(ctx context.Context, task models.Task) error {
	rt, err := buildRuntime(task, runtimeOptions{
		mode:       runMode,
		failFast:   runFailFast,
		maxWorkers: runMaxWorkers,
		useBroker:  true,
	})
	if err != nil {
		return err
	}

	var report models.RunReport
	if runWatch {
		report, err = runWithDashboard(ctx, rt, task)
	} else {
		report, err = runWithPrompt(ctx, rt, task)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("✗"), err)
	}

	printReport(rt, report)
	rt.close()
	os.Exit(exitCode(report.Status))
	return nil
}

// runWithDashboard drives the run under the bubbletea dashboard, forwarding
// orchestrator events and ask requests into the program.
func runWithDashboard(ctx context.Context, rt *runtime, task models.Task) (models.RunReport, error) {
	p, _ := tui.NewProgram(rt.broker)

	stopForward := make(chan struct{})
	go tui.Forward(p, rt.orch.Events(), rt.broker, stopForward)

	var (
		report models.RunReport
		runErr error
	)
	go func() {
		report, runErr = rt.orch.Run(ctx, task)
		p.Send(tui.RunDoneMsg{Report: report, Err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		close(stopForward)
		return report, fmt.Errorf("dashboard: %w", err)
	}
	close(stopForward)
	return report, runErr
}

// runWithPrompt drives the run on plain stdout with a y/N prompt loop for
// permission asks.
func runWithPrompt(ctx context.Context, rt *runtime, task models.Task) (models.RunReport, error) {
	stop := make(chan struct{})
	defer close(stop)
	go promptApprovals(rt.broker, stop)
	go func() {
		for ev := range rt.orch.Events() {
			switch ev.Type {
			case orchestrator.EventSubtaskCompleted:
				fmt.Printf("%s %s\n", color.GreenString("✓"), ev.SubtaskID)
			case orchestrator.EventSubtaskFailed:
				fmt.Printf("%s %s: %s\n", color.RedString("✗"), ev.SubtaskID, ev.Message)
			case orchestrator.EventSubtaskBlocked:
				fmt.Printf("%s %s blocked: %s\n", color.YellowString("⊘"), ev.SubtaskID, ev.Message)
			}
		}
	}()

	return rt.orch.Run(ctx, task)
}

func printReport(rt *runtime, report models.RunReport) {
	completed := len(report.Completed())
	total := len(report.Subtasks)

	switch report.Status {
	case models.RunCompleted:
		fmt.Printf("\n%s run completed: %d/%d subtasks\n", color.GreenString("✓"), completed, total)
	case models.RunPartiallyCompleted:
		fmt.Printf("\n%s run partially completed: %d/%d subtasks\n", color.YellowString("⚠"), completed, total)
		for _, id := range report.BlockedSubtasks {
			fmt.Printf("  %s %s blocked\n", color.YellowString("⊘"), id)
		}
	case models.RunCancelled:
		fmt.Printf("\n%s run cancelled: %s\n", color.YellowString("⚠"), report.FailureReason)
	default:
		fmt.Printf("\n%s run failed: %s\n", color.RedString("✗"), report.FailureReason)
	}

	in, out := rt.client.Tracker().Total()
	fmt.Printf("  session %s | tokens in=%d out=%d | est. cost $%.4f\n",
		report.SessionID, in, out, rt.client.Tracker().Cost())
}

func exitCode(status models.RunStatus) int {
	switch status {
	case models.RunCompleted:
		return 0
	case models.RunPartiallyCompleted:
		return 2
	case models.RunCancelled:
		return 130
	default:
		return 1
	}
}
