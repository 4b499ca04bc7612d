package orchestrator

import "time"

// EventType identifies an orchestration event.
type EventType string

const (
	// EventRunStarted fires once dispatch begins.
	EventRunStarted EventType = "run_started"
	// EventWaveStarted fires when a dependency wave begins executing.
	EventWaveStarted EventType = "wave_started"
	// EventSubtaskStarted fires when a worker picks up a subtask.
	EventSubtaskStarted EventType = "subtask_started"
	// EventSubtaskCompleted fires when a worker finishes successfully.
	EventSubtaskCompleted EventType = "subtask_completed"
	// EventSubtaskFailed fires when a worker reports failure.
	EventSubtaskFailed EventType = "subtask_failed"
	// EventSubtaskBlocked fires when a subtask is skipped because a
	// dependency failed.
	EventSubtaskBlocked EventType = "subtask_blocked"
	// EventWaveCompleted fires when every subtask in a wave has reported.
	EventWaveCompleted EventType = "wave_completed"
	// EventRunCompleted fires once the run report is assembled.
	EventRunCompleted EventType = "run_completed"
)

// Event is one orchestration progress notification, consumed by the TUI and
// logs. Emission is non-blocking: a slow consumer drops events rather than
// stalling dispatch.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// SubtaskID is the related subtask, if any.
	SubtaskID string
	// WorkerID is the related worker, if any.
	WorkerID string
	// Wave is the 1-based wave number for wave and subtask events.
	Wave int
	// Message provides human-readable context.
	Message string
	// Err carries failure detail for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
