package models

import "time"

// MemoryScope controls the lifetime of a memory entry.
type MemoryScope string

const (
	// ScopeSession entries die with the session that wrote them.
	ScopeSession MemoryScope = "session"
	// ScopePersistent entries survive across sessions.
	ScopePersistent MemoryScope = "persistent"
)

// Valid returns true if the scope is a known value.
func (s MemoryScope) Valid() bool {
	return s == ScopeSession || s == ScopePersistent
}

// MemoryEntry is one key/value fact in the session/memory context.
type MemoryEntry struct {
	// Key identifies the fact.
	Key string `json:"key"`
	// Value is the current content under last-writer-wins resolution.
	Value string `json:"value"`
	// Scope is session or persistent.
	Scope MemoryScope `json:"scope"`
	// WriterID identifies the last writer.
	WriterID string `json:"writer_id,omitempty"`
	// UpdatedAt is when the entry was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// MemoryWrite is one row of the append-log that keeps concurrent writes to
// the same key inspectable after last-writer-wins resolution.
type MemoryWrite struct {
	// ID is the unique identifier of the log row.
	ID string `json:"id"`
	// SessionID is the session the write happened in.
	SessionID string `json:"session_id"`
	// Key is the written key.
	Key string `json:"key"`
	// Value is the written value.
	Value string `json:"value"`
	// WriterID identifies the writer (worker or role).
	WriterID string `json:"writer_id"`
	// CreatedAt is when the write landed.
	CreatedAt time.Time `json:"created_at"`
}

// SessionStatus is the lifecycle state of a session row.
type SessionStatus string

const (
	// SessionRunning marks a live session.
	SessionRunning SessionStatus = "running"
	// SessionCompleted marks a torn-down session.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed marks a session whose run failed or was cancelled.
	SessionFailed SessionStatus = "failed"
)

// Session is the enclosing context of one task execution. It owns the memory
// entries, the transcript, and the claim bookkeeping created during its
// lifetime.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// TaskGoal is the goal of the task the session was created for.
	TaskGoal string `json:"task_goal"`
	// Status is the lifecycle state.
	Status SessionStatus `json:"status"`
	// StartedAt is when the session began.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the session was torn down, if it was.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Summary is the teardown summary persisted for later sessions.
	Summary string `json:"summary,omitempty"`
}
