// Package decompose turns one high-level task into a set of independent,
// boundedly-scoped subtasks with explicit resource claims. Partitions that
// cannot be made claim-disjoint within the attempt budget fail closed; the
// decomposer never silently serializes conflicting subtasks.
package decompose

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/loom/pkg/models"
)

// maxAttempts is the planner attempt budget before failing closed.
const maxAttempts = 3

// Planner proposes a candidate partition for a task. On retries the concrete
// conflicts from the previous attempt are passed in so the planner can
// repartition around them. The production planner is API-backed; tests stub
// this interface.
type Planner interface {
	Plan(ctx context.Context, task models.Task, contextSnapshot string, conflicts []string) (string, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, task models.Task, contextSnapshot string, conflicts []string) (string, error)

// Plan implements Planner.
func (f PlannerFunc) Plan(ctx context.Context, task models.Task, contextSnapshot string, conflicts []string) (string, error) {
	return f(ctx, task, contextSnapshot, conflicts)
}

// Decomposer breaks a task into claim-disjoint subtasks via the planner.
type Decomposer struct {
	planner Planner
}

// New creates a decomposer backed by the given planner.
func New(planner Planner) *Decomposer {
	return &Decomposer{planner: planner}
}

// Decompose produces an ordered, validated subtask list for the task.
// contextSnapshot is the session context handed to the planner (may be
// empty). Up to three planner attempts are made, each retry carrying the
// previous attempt's conflicts; if none yields a disjoint claim set the
// decomposer fails closed with an unresolvable-conflict error so the caller
// can retry with a narrower scope or fall back to single-subtask execution.
func (d *Decomposer) Decompose(ctx context.Context, task models.Task, contextSnapshot string) ([]models.Subtask, error) {
	if strings.TrimSpace(task.Goal) == "" {
		return nil, &models.DecompositionError{Reason: models.ReasonMalformedTask}
	}

	var conflicts []string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		response, err := d.planner.Plan(ctx, task, contextSnapshot, conflicts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("planner attempt %d: %w", attempt, err)
		}

		candidates, err := ParsePlan(response)
		if err != nil {
			// A malformed plan consumes an attempt; the parse failure is the
			// feedback for the retry.
			conflicts = []string{"plan parse failed: " + err.Error()}
			log.Printf("[decompose] attempt %d unparseable: %v", attempt, err)
			continue
		}

		chosen, attemptConflicts := pickPartition(candidates)
		if chosen != nil {
			log.Printf("[decompose] attempt %d produced %d subtasks (%d parallel in wave 1)",
				attempt, len(chosen), parallelWidth(chosen))
			return chosen, nil
		}

		conflicts = attemptConflicts
		log.Printf("[decompose] attempt %d rejected: %s", attempt, strings.Join(conflicts, "; "))
	}

	return nil, &models.DecompositionError{
		Reason:    models.ReasonUnresolvableConflict,
		Attempts:  maxAttempts,
		Conflicts: conflicts,
	}
}

// pickPartition validates each candidate and picks the valid one that
// maximizes wave-1 parallelism; ties keep planner order. When no candidate
// validates, the first candidate's conflicts come back as retry feedback.
func pickPartition(candidates [][]models.Subtask) ([]models.Subtask, []string) {
	var best []models.Subtask
	bestWidth := -1
	var firstConflicts []string

	for _, cand := range candidates {
		conflicts := Validate(cand)
		if len(conflicts) > 0 {
			if firstConflicts == nil {
				firstConflicts = conflicts
			}
			continue
		}
		if width := parallelWidth(cand); width > bestWidth {
			best = cand
			bestWidth = width
		}
	}

	if best != nil {
		return best, nil
	}
	return nil, firstConflicts
}
