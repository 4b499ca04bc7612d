package decompose

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/loom/pkg/models"
)

// plannerPromptTemplate instructs the model to emit the plan wire format.
const plannerPromptTemplate = `Decompose the following goal into the smallest set of independent subtasks.

Goal: %s
%s%s
Rules:
- Return ONLY a JSON array of subtasks, no prose.
- Each subtask: {"id": "st-1", "type": "edit|research|verify", "description": "...", "resource_claims": ["path/or/entity"], "depends_on": ["st-N"]}
- resource_claims must name every file, directory, or entity the subtask may modify.
- No two subtasks may claim the same resource unless one depends_on the other.
- Prefer partitions where as many subtasks as possible have no dependencies, so they run in parallel.
%s`

// BuildPrompt renders the planner prompt for a task, optionally carrying the
// session snapshot and the conflicts that rejected the previous attempt.
func BuildPrompt(task models.Task, contextSnapshot string, conflicts []string) string {
	var constraints string
	if len(task.Constraints) > 0 {
		constraints = "Constraints:\n- " + strings.Join(task.Constraints, "\n- ") + "\n"
	}
	var snapshot string
	if contextSnapshot != "" {
		snapshot = "Context:\n" + contextSnapshot + "\n"
	}
	var feedback string
	if len(conflicts) > 0 {
		feedback = "\nYour previous partition was rejected. Repartition to resolve these conflicts:\n- " +
			strings.Join(conflicts, "\n- ") + "\n"
	}
	return fmt.Sprintf(plannerPromptTemplate, task.Goal, constraints, snapshot, feedback)
}
