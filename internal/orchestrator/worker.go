package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ShayCichocki/loom/internal/gateway"
	"github.com/ShayCichocki/loom/internal/session"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Runner holds the business logic of one subtask: given the subtask and its
// gateway handle, do the work and return named artifacts. The production
// runner is the API-backed agentic tool loop; tests stub this interface. The
// scheduler itself holds no business logic.
type Runner interface {
	Run(ctx context.Context, subtask models.Subtask, handle *gateway.WorkerHandle, contextSnapshot string) (map[string]string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, subtask models.Subtask, handle *gateway.WorkerHandle, contextSnapshot string) (map[string]string, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, subtask models.Subtask, handle *gateway.WorkerHandle, contextSnapshot string) (map[string]string, error) {
	return f(ctx, subtask, handle, contextSnapshot)
}

// Worker executes one subtask in isolation. It sees only its own subtask,
// its claims (via the gateway handle), and the session context — never
// sibling in-flight state.
type Worker struct {
	id      string
	subtask models.Subtask
	handle  *gateway.WorkerHandle
	runner  Runner
	sess    *session.Context
}

// NewWorker creates a worker for one subtask.
func NewWorker(id string, subtask models.Subtask, handle *gateway.WorkerHandle, runner Runner, sess *session.Context) *Worker {
	return &Worker{id: id, subtask: subtask, handle: handle, runner: runner, sess: sess}
}

// Run executes the subtask and always returns a terminal WorkerResult.
// Panics are recovered into a failed result so one worker's crash can never
// corrupt the wave join.
func (w *Worker) Run(ctx context.Context) (result models.WorkerResult) {
	result = models.WorkerResult{
		SubtaskID: w.subtask.ID,
		WorkerID:  w.id,
		StartedAt: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = models.SubtaskFailed
			result.ErrorDetail = fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
		}
		result.ToolCalls = w.handle.Log()
		result.FinishedAt = time.Now()
	}()

	snapshot := ""
	if w.sess != nil {
		snapshot = w.sess.Snapshot()
	}

	artifacts, err := w.runner.Run(ctx, w.subtask, w.handle, snapshot)
	if err != nil {
		result.Status = models.SubtaskFailed
		result.ErrorDetail = err.Error()
		return result
	}

	// Publish artifacts into session memory so dependents can re-fetch them
	// via MemoryGet; dependents never receive upstream state directly.
	for name, content := range artifacts {
		key := fmt.Sprintf("artifact:%s:%s", w.subtask.ID, name)
		if w.sess != nil {
			if err := w.sess.Set(key, content, models.ScopeSession, w.id); err != nil {
				result.Status = models.SubtaskFailed
				result.ErrorDetail = fmt.Sprintf("record artifact %s: %v", name, err)
				return result
			}
		}
	}

	result.Status = models.SubtaskCompleted
	result.Artifacts = artifacts
	return result
}
