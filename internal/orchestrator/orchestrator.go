// Package orchestrator coordinates a task run end to end: decompose the task
// into claim-disjoint subtasks, dispatch them in dependency waves through
// isolated workers, and aggregate a run report. Failures are subtask-local;
// the batch completes what it can unless fail-fast is on.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/loom/internal/decompose"
	"github.com/ShayCichocki/loom/internal/gateway"
	"github.com/ShayCichocki/loom/internal/orchestrator/policy"
	"github.com/ShayCichocki/loom/internal/session"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Orchestrator owns one task run. Construct with New, then call Run once.
type Orchestrator struct {
	decomposer *decompose.Decomposer
	gw         *gateway.Gateway
	runner     Runner
	sess       *session.Context
	policy     *policy.Config

	events chan Event
}

// New wires an orchestrator. The policy is validated (out-of-range values
// clamp to defaults) before use.
func New(dec *decompose.Decomposer, gw *gateway.Gateway, runner Runner, sess *session.Context, pol *policy.Config) *Orchestrator {
	if pol == nil {
		pol = policy.Default()
	}
	_ = pol.Validate()
	return &Orchestrator{
		decomposer: dec,
		gw:         gw,
		runner:     runner,
		sess:       sess,
		policy:     pol,
		events:     make(chan Event, pol.Dispatch.EventBuffer),
	}
}

// Events returns the progress event stream. Emission is non-blocking: when
// the buffer is full events are dropped, never letting a slow consumer stall
// dispatch.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
	}
}

// Run executes one task: decompose, dispatch, tear down the session. The
// report is always meaningful; the error is non-nil only when the run never
// dispatched (malformed task, unresolvable conflicts, planner fault).
func (o *Orchestrator) Run(ctx context.Context, task models.Task) (models.RunReport, error) {
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	o.gw.FireSessionHook(ctx, gateway.HookSessionStart)
	defer func() {
		// Session-end hooks observe teardown even on early exits; give them
		// a short grace window when the task context is already dead.
		hctx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			hctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		}
		o.gw.FireSessionHook(hctx, gateway.HookSessionEnd)
	}()

	snapshot := ""
	if o.sess != nil {
		snapshot = o.sess.Snapshot()
	}

	subtasks, err := o.decomposer.Decompose(ctx, task, snapshot)
	if err != nil {
		report := models.RunReport{
			SessionID:     o.sessionID(),
			Status:        models.RunFailed,
			FailureReason: err.Error(),
			FinishedAt:    time.Now(),
		}
		var de *models.DecompositionError
		if errors.As(err, &de) {
			log.Printf("[orchestrator] decomposition failed closed (%s) after %d attempts", de.Reason, de.Attempts)
		}
		o.teardown(ctx, report.Status)
		return report, fmt.Errorf("decompose: %w", err)
	}
	if o.sess != nil {
		o.sess.AppendTranscript(fmt.Sprintf("decomposed %q into %d subtasks", task.Goal, len(subtasks)))
	}

	sched := NewScheduler(o.gw, o.runner, o.sess, o.policy.Dispatch, o.emit)
	report, dispatchErr := sched.Dispatch(ctx, subtasks)

	o.teardown(ctx, report.Status)
	return report, dispatchErr
}

// teardown closes the session keyed to the run outcome. Teardown faults are
// logged, not surfaced: the report already reflects the run.
func (o *Orchestrator) teardown(ctx context.Context, status models.RunStatus) {
	if o.sess == nil {
		return
	}
	sessStatus := models.SessionFailed
	if status == models.RunCompleted || status == models.RunPartiallyCompleted {
		sessStatus = models.SessionCompleted
	}
	if _, err := o.sess.Teardown(ctx, sessStatus); err != nil {
		log.Printf("[orchestrator] session teardown: %v", err)
	}
}

func (o *Orchestrator) sessionID() string {
	if o.sess == nil {
		return ""
	}
	return o.sess.ID()
}
