// Package policy defines configurable policy parameters for runtime behavior.
// This centralizes magic numbers and threshold values so they can be
// configured and tested in one place instead of scattered across packages.
package policy

import "time"

// Config contains all configurable policy parameters for the runtime.
// These values control dispatch, the gateway, and the refinement loop.
type Config struct {
	// Dispatch policies
	Dispatch DispatchPolicy

	// Gateway policies
	Gateway GatewayPolicy

	// Loop policies for the evaluator-optimizer cycle
	Loop LoopPolicy
}

// DispatchPolicy controls wave dispatch behavior.
type DispatchPolicy struct {
	// MaxWorkers is the maximum number of concurrently running workers
	// within one wave.
	MaxWorkers int

	// FailFast aborts the batch on the first subtask failure instead of
	// completing independent subtasks.
	FailFast bool

	// EventBuffer is the buffer size for the orchestrator event channel.
	EventBuffer int
}

// GatewayPolicy controls decision-pipeline behavior.
type GatewayPolicy struct {
	// HookTimeout bounds each hook handler invocation.
	HookTimeout time.Duration

	// AskTimeout bounds how long an ask decision may wait for an approver
	// before failing closed. Zero means wait until the context is cancelled.
	AskTimeout time.Duration
}

// LoopPolicy controls evaluator-optimizer loop behavior.
type LoopPolicy struct {
	// MaxIterations is the iteration ceiling when the task does not set one.
	MaxIterations int

	// EvaluatorTimeout bounds each evaluate call.
	EvaluatorTimeout time.Duration

	// SummaryWidth is the clip width for one-line summaries of earlier
	// attempts in the feedback window.
	SummaryWidth int

	// StopOnRegression short-circuits the loop when a new score drops below
	// the best seen so far.
	StopOnRegression bool
}

// Default returns the default policy configuration.
func Default() *Config {
	return &Config{
		Dispatch: DispatchPolicy{
			MaxWorkers:  4,
			FailFast:    false,
			EventBuffer: 100,
		},
		Gateway: GatewayPolicy{
			HookTimeout: 5 * time.Second,
			AskTimeout:  0,
		},
		Loop: LoopPolicy{
			MaxIterations:    5,
			EvaluatorTimeout: 2 * time.Minute,
			SummaryWidth:     120,
			StopOnRegression: true,
		},
	}
}

// Validate clamps out-of-range values back to their defaults.
func (c *Config) Validate() error {
	if c.Dispatch.MaxWorkers < 1 || c.Dispatch.MaxWorkers > 64 {
		c.Dispatch.MaxWorkers = 4
	}
	if c.Dispatch.EventBuffer < 1 {
		c.Dispatch.EventBuffer = 100
	}
	if c.Gateway.HookTimeout < 100*time.Millisecond {
		c.Gateway.HookTimeout = 5 * time.Second
	}
	if c.Gateway.AskTimeout < 0 {
		c.Gateway.AskTimeout = 0
	}
	if c.Loop.MaxIterations < 1 || c.Loop.MaxIterations > 50 {
		c.Loop.MaxIterations = 5
	}
	if c.Loop.EvaluatorTimeout < time.Second {
		c.Loop.EvaluatorTimeout = 2 * time.Minute
	}
	if c.Loop.SummaryWidth < 20 {
		c.Loop.SummaryWidth = 120
	}
	return nil
}
