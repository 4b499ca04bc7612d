package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/loom/internal/api"
	"github.com/ShayCichocki/loom/internal/config"
	"github.com/ShayCichocki/loom/internal/loop"
	"github.com/ShayCichocki/loom/pkg/models"
)

var (
	refineMaxIterations int
	refineOutput        string
	refineShowHistory   bool
)

var refineCmd = &cobra.Command{
	Use:   "refine [goal]",
	Short: "Refine a single artifact through the evaluator-optimizer loop",
	Long: `Refine generates an artifact for the goal, evaluates it, and regenerates
with critique until the evaluator passes it, a score regresses, or the
iteration ceiling is reached. The best attempt is always kept.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := strings.Join(args, " ")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if refineMaxIterations > 0 {
			cfg.Loop.MaxIterations = refineMaxIterations
		}
		client, err := newClient(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		task := models.Task{
			ID:            uuid.New().String(),
			Goal:          goal,
			MaxIterations: cfg.Loop.MaxIterations,
			CreatedAt:     time.Now(),
		}

		result, err := loop.New(cfg.Policy().Loop).Run(ctx, task,
			api.NewGenerator(client), api.NewEvaluator(client))
		if err != nil {
			return err
		}

		printLoopResult(result)

		if refineOutput != "" {
			if err := os.WriteFile(refineOutput, []byte(result.FinalArtifact), 0o644); err != nil {
				return fmt.Errorf("write artifact: %w", err)
			}
			fmt.Printf("%s wrote artifact to %s\n", color.GreenString("✓"), refineOutput)
		} else {
			fmt.Println(result.FinalArtifact)
		}
		return nil
	},
}

func init() {
	refineCmd.Flags().IntVar(&refineMaxIterations, "max-iterations", 0, "iteration ceiling override")
	refineCmd.Flags().StringVarP(&refineOutput, "output", "o", "", "write the final artifact to a file instead of stdout")
	refineCmd.Flags().BoolVar(&refineShowHistory, "history", false, "print per-iteration verdicts")
}

func printLoopResult(result *loop.Result) {
	if refineShowHistory {
		for _, attempt := range result.History {
			line := fmt.Sprintf("  iteration %d: %s", attempt.Iteration, attempt.Verdict.Outcome)
			if attempt.Verdict.Scored() {
				line += fmt.Sprintf(" (score %.1f)", *attempt.Verdict.Score)
			}
			if attempt.Verdict.Feedback != "" {
				line += " — " + attempt.Verdict.Feedback
			}
			fmt.Fprintln(os.Stderr, line)
		}
	}

	mark := color.GreenString("✓")
	if result.ExitReason != loop.ExitPass {
		mark = color.YellowString("⚠")
	}
	fmt.Fprintf(os.Stderr, "%s %s after %d iteration(s), best iteration %d\n",
		mark, result.ExitReason, len(result.History), result.BestIteration)
}
