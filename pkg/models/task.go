package models

import (
	"path"
	"strings"
	"time"
)

// SubtaskStatus represents the terminal state a worker reported for a subtask.
type SubtaskStatus string

const (
	// SubtaskPending indicates the subtask has not been dispatched yet.
	SubtaskPending SubtaskStatus = "pending"
	// SubtaskRunning indicates a worker is executing the subtask.
	SubtaskRunning SubtaskStatus = "running"
	// SubtaskCompleted indicates the worker finished successfully.
	SubtaskCompleted SubtaskStatus = "completed"
	// SubtaskFailed indicates the worker failed; failures are subtask-local.
	SubtaskFailed SubtaskStatus = "failed"
	// SubtaskBlocked indicates a dependency failed so the subtask never ran.
	SubtaskBlocked SubtaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskPending, SubtaskRunning, SubtaskCompleted, SubtaskFailed, SubtaskBlocked:
		return true
	default:
		return false
	}
}

// Terminal returns true if a worker result may carry this status.
func (s SubtaskStatus) Terminal() bool {
	return s == SubtaskCompleted || s == SubtaskFailed || s == SubtaskBlocked
}

// Task is the immutable input to an orchestration run. It is created by the
// caller and never mutated afterwards.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Goal is the free-text objective the run should achieve.
	Goal string `json:"goal"`
	// Constraints are optional structured constraints on the work.
	Constraints []string `json:"constraints,omitempty"`
	// MaxIterations bounds the evaluator-optimizer loop for this task.
	MaxIterations int `json:"max_iterations,omitempty"`
	// Timeout bounds the whole run; zero means no deadline.
	Timeout time.Duration `json:"timeout,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
}

// Subtask is a bounded unit of work produced by decomposition.
type Subtask struct {
	// ID is the unique identifier within one decomposition.
	ID string `json:"id"`
	// Type labels the kind of work (e.g. "edit", "research", "verify").
	Type string `json:"type,omitempty"`
	// Description tells the worker what to do.
	Description string `json:"description"`
	// ResourceClaims names every mutable resource the subtask may touch.
	ResourceClaims []string `json:"resource_claims,omitempty"`
	// DependsOn lists subtask IDs that must complete before this one runs.
	DependsOn []string `json:"depends_on,omitempty"`
}

// WorkerResult is the immutable outcome a worker reports for one subtask.
type WorkerResult struct {
	// SubtaskID identifies the subtask this result belongs to.
	SubtaskID string `json:"subtask_id"`
	// Status is completed, failed, or blocked.
	Status SubtaskStatus `json:"status"`
	// Artifacts maps artifact names to their content.
	Artifacts map[string]string `json:"artifacts,omitempty"`
	// ToolCalls is the per-worker log of gateway-mediated calls.
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	// ErrorDetail carries the failure cause for failed results.
	ErrorDetail string `json:"error_detail,omitempty"`
	// BlockedBy names the failed dependency for blocked results.
	BlockedBy string `json:"blocked_by,omitempty"`
	// WorkerID identifies the worker that produced this result.
	WorkerID string `json:"worker_id,omitempty"`
	// StartedAt is when the worker began executing.
	StartedAt time.Time `json:"started_at,omitempty"`
	// FinishedAt is when the worker reported the result.
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// RunStatus is the exit signal of an orchestration run. Callers must branch
// on it rather than assume success.
type RunStatus string

const (
	// RunCompleted indicates every subtask completed.
	RunCompleted RunStatus = "completed"
	// RunPartiallyCompleted indicates a mixed batch: at least one subtask
	// completed while others failed or were blocked.
	RunPartiallyCompleted RunStatus = "partially_completed"
	// RunFailed indicates the run produced no completed subtasks or was
	// rejected before dispatch.
	RunFailed RunStatus = "failed"
	// RunCancelled indicates task-level cancellation stopped the run.
	RunCancelled RunStatus = "cancelled"
)

// RunReport aggregates an orchestration run for the caller.
type RunReport struct {
	// SessionID identifies the session that owned the run.
	SessionID string `json:"session_id"`
	// Status is the exit signal.
	Status RunStatus `json:"status"`
	// Results holds one entry per subtask, in wave order.
	Results []WorkerResult `json:"results,omitempty"`
	// BlockedSubtasks lists the IDs of subtasks blocked by failed dependencies.
	BlockedSubtasks []string `json:"blocked_subtasks,omitempty"`
	// FailureReason explains failed and cancelled statuses.
	FailureReason string `json:"failure_reason,omitempty"`
	// Subtasks is the decomposition the run executed.
	Subtasks []Subtask `json:"subtasks,omitempty"`
	// StartedAt is when dispatch began.
	StartedAt time.Time `json:"started_at,omitempty"`
	// FinishedAt is when the report was assembled.
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Completed returns the results that finished successfully.
func (r RunReport) Completed() []WorkerResult {
	var out []WorkerResult
	for _, res := range r.Results {
		if res.Status == SubtaskCompleted {
			out = append(out, res)
		}
	}
	return out
}

// NormalizeResourceKey canonicalizes a resource key so overlap checks compare
// like with like. Path-like keys are slash-cleaned and stripped of leading
// "./"; namespaced keys ("db:users") pass through trimmed.
func NormalizeResourceKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if strings.Contains(key, ":") && !strings.Contains(key, "/") {
		return key
	}
	cleaned := path.Clean(strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "./")
	return strings.TrimSuffix(cleaned, "/")
}

// ResourceKeysOverlap reports whether two normalized resource keys refer to
// the same resource or one contains the other (a directory claim overlaps
// every key beneath it).
func ResourceKeysOverlap(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	return strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}
