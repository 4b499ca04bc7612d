// Package loop implements the evaluator-optimizer convergence cycle: a
// Generate -> Evaluate state machine that feeds critique and a bounded window
// of prior attempts back into regeneration until a pass verdict, a
// regression, or the iteration ceiling.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/loom/internal/orchestrator/policy"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Generator produces an artifact for the task, guided by the feedback window
// on every iteration after the first.
type Generator interface {
	Generate(ctx context.Context, task models.Task, window FeedbackWindow) (string, error)
}

// Evaluator judges an artifact against the task's quality bar.
type Evaluator interface {
	Evaluate(ctx context.Context, task models.Task, artifact string) (models.EvaluationVerdict, error)
}

// ExitReason describes why the loop terminated.
type ExitReason string

const (
	// ExitPass means the evaluator accepted an artifact.
	ExitPass ExitReason = "pass"
	// ExitMaxIterations means the iteration ceiling was reached. Not a
	// failure: the best attempt so far is still returned.
	ExitMaxIterations ExitReason = "max_iterations"
	// ExitRegressionStop means a new score dropped below the best seen and
	// the loop short-circuited to the best prior artifact.
	ExitRegressionStop ExitReason = "regression_stop"
	// ExitEvaluatorTimeout means an evaluate call exceeded its deadline.
	ExitEvaluatorTimeout ExitReason = "evaluator_timeout"
	// ExitCancelled means task-level cancellation stopped the loop.
	ExitCancelled ExitReason = "cancelled"
)

// Attempt records one generate/evaluate cycle. Every attempt stays in the
// history, regressed ones included, for after-the-fact audit.
type Attempt struct {
	// Iteration is the 1-based cycle number.
	Iteration int `json:"iteration"`
	// Artifact is the generated output.
	Artifact string `json:"artifact"`
	// Verdict is the evaluator's judgement. Zero-valued when the evaluation
	// itself timed out or was cancelled.
	Verdict models.EvaluationVerdict `json:"verdict"`
	// Duration covers the generate plus evaluate time.
	Duration time.Duration `json:"duration"`
}

// Result is the loop's outcome.
type Result struct {
	// FinalArtifact is the selected artifact: the best-scoring attempt when
	// any scores exist, else the latest.
	FinalArtifact string `json:"final_artifact"`
	// BestIteration is the iteration the final artifact came from.
	BestIteration int `json:"best_iteration"`
	// ExitReason is why the loop stopped.
	ExitReason ExitReason `json:"exit_reason"`
	// History holds every attempt in order.
	History []Attempt `json:"history"`
}

// Loop runs the evaluator-optimizer cycle under a policy.
type Loop struct {
	policy policy.LoopPolicy
}

// New creates a loop with the given policy.
func New(pol policy.LoopPolicy) *Loop {
	return &Loop{policy: pol}
}

// Run executes the cycle for one task. Termination is guaranteed by the
// iteration ceiling regardless of evaluator behavior. A generator fault is
// the only error path; every evaluator-side terminal condition comes back as
// a Result with the matching ExitReason.
func (l *Loop) Run(ctx context.Context, task models.Task, gen Generator, eval Evaluator) (*Result, error) {
	maxIter := task.MaxIterations
	if maxIter <= 0 {
		maxIter = l.policy.MaxIterations
	}
	controller := NewIterationController(maxIter)

	result := &Result{}
	bestScore := 0.0
	bestSeen := false

	for controller.ShouldContinue() {
		iter := controller.Increment()

		if err := ctx.Err(); err != nil {
			return l.finalize(result, ExitCancelled), nil
		}

		window := buildWindow(result.History, l.policy.SummaryWidth)
		start := time.Now()

		artifact, err := gen.Generate(ctx, task, window)
		if err != nil {
			if ctx.Err() != nil {
				return l.finalize(result, ExitCancelled), nil
			}
			return l.finalize(result, ""), fmt.Errorf("generate (iteration %d): %w", iter, err)
		}

		ectx, cancel := context.WithTimeout(ctx, l.policy.EvaluatorTimeout)
		verdict, err := eval.Evaluate(ectx, task, artifact)
		cancel()
		if err != nil {
			result.History = append(result.History, Attempt{
				Iteration: iter,
				Artifact:  artifact,
				Duration:  time.Since(start),
			})
			if ctx.Err() != nil {
				return l.finalize(result, ExitCancelled), nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				log.Printf("[loop] evaluator timed out on iteration %d", iter)
				return l.finalize(result, ExitEvaluatorTimeout), nil
			}
			return l.finalize(result, ""), fmt.Errorf("evaluate (iteration %d): %w", iter, err)
		}

		result.History = append(result.History, Attempt{
			Iteration: iter,
			Artifact:  artifact,
			Verdict:   verdict,
			Duration:  time.Since(start),
		})

		if verdict.Outcome == models.OutcomePass {
			// A pass ends the loop on the passing artifact itself.
			result.FinalArtifact = artifact
			result.BestIteration = iter
			result.ExitReason = ExitPass
			return result, nil
		}

		if verdict.Scored() {
			score := *verdict.Score
			if bestSeen && score < bestScore && l.policy.StopOnRegression {
				// Latest is not assumed best: short-circuit back to the
				// best-scoring prior artifact.
				log.Printf("[loop] regression on iteration %d (%.2f < %.2f), stopping", iter, score, bestScore)
				return l.finalize(result, ExitRegressionStop), nil
			}
			if !bestSeen || score > bestScore {
				bestScore = score
				bestSeen = true
			}
		}
	}

	return l.finalize(result, ExitMaxIterations), nil
}

// finalize selects the final artifact and stamps the exit reason. Selection
// prefers the highest-scoring attempt when any verdict carried a score
// (earliest wins ties), falling back to the latest attempt.
func (l *Loop) finalize(result *Result, reason ExitReason) *Result {
	result.ExitReason = reason

	bestIdx := -1
	for i, attempt := range result.History {
		if !attempt.Verdict.Scored() {
			continue
		}
		if bestIdx < 0 || *attempt.Verdict.Score > *result.History[bestIdx].Verdict.Score {
			bestIdx = i
		}
	}
	if bestIdx < 0 && len(result.History) > 0 {
		bestIdx = len(result.History) - 1
	}
	if bestIdx >= 0 {
		result.FinalArtifact = result.History[bestIdx].Artifact
		result.BestIteration = result.History[bestIdx].Iteration
	}
	return result
}
