package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/loom/internal/loop"
	"github.com/ShayCichocki/loom/pkg/models"
)

const generatorSystemPrompt = `You produce the requested artifact as plain text. When critique
of a previous attempt is provided, address every point of it in the new attempt. Output the
artifact only, no preamble.`

const evaluatorSystemPrompt = `You are a strict evaluator. Judge whether the artifact meets the
task's goal and constraints. Respond with JSON only:
{"outcome": "pass" | "needs_improvement", "feedback": "<specific critique>", "score": <0-100>}.
The feedback must be concrete enough to act on.`

// Generator is the model-backed generate role of the refinement loop.
type Generator struct {
	client *Client
}

// NewGenerator creates a model-backed generator.
func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

// Generate produces one artifact attempt from the task and feedback window.
func (g *Generator) Generate(ctx context.Context, task models.Task, window loop.FeedbackWindow) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", task.Goal)
	for _, c := range task.Constraints {
		fmt.Fprintf(&b, "Constraint: %s\n", c)
	}
	if len(window.EarlierSummaries) > 0 {
		b.WriteString("\nEarlier attempts (oldest first):\n")
		for i, s := range window.EarlierSummaries {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, s)
		}
	}
	if window.LastAttempt != "" {
		fmt.Fprintf(&b, "\nLatest attempt:\n%s\n", window.LastAttempt)
	}
	if window.Feedback != "" {
		fmt.Fprintf(&b, "\nCritique to address:\n%s\n", window.Feedback)
	}
	return g.client.complete(ctx, generatorSystemPrompt, b.String(), 8192)
}

// Evaluator is the model-backed evaluate role of the refinement loop.
type Evaluator struct {
	client *Client
}

// NewEvaluator creates a model-backed evaluator.
func NewEvaluator(client *Client) *Evaluator {
	return &Evaluator{client: client}
}

// Evaluate judges one artifact and returns a structured verdict.
func (e *Evaluator) Evaluate(ctx context.Context, task models.Task, artifact string) (models.EvaluationVerdict, error) {
	prompt := fmt.Sprintf("Goal: %s\n\nArtifact to evaluate:\n%s", task.Goal, artifact)
	if len(task.Constraints) > 0 {
		prompt = fmt.Sprintf("Goal: %s\nConstraints: %s\n\nArtifact to evaluate:\n%s",
			task.Goal, strings.Join(task.Constraints, "; "), artifact)
	}

	response, err := e.client.complete(ctx, evaluatorSystemPrompt, prompt, 2048)
	if err != nil {
		return models.EvaluationVerdict{}, err
	}
	return parseVerdict(response)
}

// parseVerdict extracts the verdict JSON from a model response that may be
// wrapped in prose or code fences.
func parseVerdict(response string) (models.EvaluationVerdict, error) {
	start := strings.IndexByte(response, '{')
	end := strings.LastIndexByte(response, '}')
	if start < 0 || end <= start {
		return models.EvaluationVerdict{}, fmt.Errorf("no verdict JSON in evaluator response")
	}

	var verdict models.EvaluationVerdict
	if err := json.Unmarshal([]byte(response[start:end+1]), &verdict); err != nil {
		return models.EvaluationVerdict{}, fmt.Errorf("parse verdict: %w", err)
	}
	if !verdict.Outcome.Valid() {
		return models.EvaluationVerdict{}, fmt.Errorf("unknown verdict outcome %q", verdict.Outcome)
	}
	return verdict, nil
}
