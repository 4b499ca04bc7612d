package api

import (
	"context"

	"github.com/ShayCichocki/loom/internal/decompose"
	"github.com/ShayCichocki/loom/pkg/models"
)

const plannerSystemPrompt = `You are a task planner. Decompose the task into subtasks whose
resource claims are disjoint unless connected by a dependency. Respond with a JSON array of
subtask objects: {"id", "type", "description", "resource_claims", "depends_on"}. You may
instead respond with an array of candidate plans (an array of arrays); the most parallel
valid candidate is chosen. Output JSON only, no commentary.`

// Planner asks the model for subtask partitions. It satisfies the
// decomposer's Planner interface; validation and retry stay in the
// decomposer.
type Planner struct {
	client *Client
}

// NewPlanner creates a model-backed planner.
func NewPlanner(client *Client) *Planner {
	return &Planner{client: client}
}

// Plan produces a raw plan response for one decomposition attempt.
func (p *Planner) Plan(ctx context.Context, task models.Task, contextSnapshot string, conflicts []string) (string, error) {
	prompt := decompose.BuildPrompt(task, contextSnapshot, conflicts)
	return p.client.complete(ctx, plannerSystemPrompt, prompt, 4096)
}
