package models

import "time"

// DecisionAction is the action a gateway decision carries.
type DecisionAction string

const (
	// DecisionAllow permits the tool call, optionally with rewritten input.
	DecisionAllow DecisionAction = "allow"
	// DecisionDeny refuses the tool call with a reason. A denial is normal
	// control flow, not an error: the worker receives a structured refusal
	// and keeps reasoning.
	DecisionDeny DecisionAction = "deny"
	// DecisionAsk defers the call to an external approver.
	DecisionAsk DecisionAction = "ask"
)

// PermissionMode is the named global policy the gateway runs under.
type PermissionMode string

const (
	// ModeDefault runs the full decision pipeline.
	ModeDefault PermissionMode = "default"
	// ModeAsk skips the allow-rule short circuit so every call not denied by
	// rule reaches the runtime callback.
	ModeAsk PermissionMode = "ask"
	// ModeBypass short-circuits to allow after the deny rules.
	ModeBypass PermissionMode = "bypass"
)

// Valid returns true if the mode is a known value.
func (m PermissionMode) Valid() bool {
	switch m {
	case ModeDefault, ModeAsk, ModeBypass:
		return true
	default:
		return false
	}
}

// ToolCallRequest asks the gateway to mediate one external effect.
type ToolCallRequest struct {
	// ToolName names the registered tool to invoke.
	ToolName string `json:"tool_name"`
	// Input is the tool's argument map.
	Input map[string]any `json:"input,omitempty"`
	// WorkerID identifies the requesting worker.
	WorkerID string `json:"worker_id"`
	// SessionID identifies the session the worker belongs to.
	SessionID string `json:"session_id,omitempty"`
}

// ToolCallDecision is the gateway's verdict for one request. Exactly one of
// the action-specific fields is meaningful.
type ToolCallDecision struct {
	// Action is allow, deny, or ask.
	Action DecisionAction `json:"action"`
	// UpdatedInput replaces the request input when an allow rewrites it.
	UpdatedInput map[string]any `json:"updated_input,omitempty"`
	// Reason explains a deny.
	Reason string `json:"reason,omitempty"`
	// Prompt is the question presented to the approver for an ask.
	Prompt string `json:"prompt,omitempty"`
}

// Allow builds an allow decision carrying the effective input.
func Allow(input map[string]any) ToolCallDecision {
	return ToolCallDecision{Action: DecisionAllow, UpdatedInput: input}
}

// Deny builds a deny decision with a reason.
func Deny(reason string) ToolCallDecision {
	return ToolCallDecision{Action: DecisionDeny, Reason: reason}
}

// Ask builds an ask decision with the prompt shown to the approver.
func Ask(prompt string) ToolCallDecision {
	return ToolCallDecision{Action: DecisionAsk, Prompt: prompt}
}

// ToolResult is what a mediated tool call returns to the worker. Denials
// come back with IsError set and the refusal in Content.
type ToolResult struct {
	// Content is the tool output or the refusal text.
	Content string `json:"content"`
	// IsError marks failures and refusals.
	IsError bool `json:"is_error,omitempty"`
}

// ToolCallRecord is the persisted audit entry for one mediated call.
type ToolCallRecord struct {
	// ID is the unique identifier of the record.
	ID string `json:"id"`
	// Timestamp is when the gateway received the request.
	Timestamp time.Time `json:"timestamp"`
	// SessionID is the owning session.
	SessionID string `json:"session_id,omitempty"`
	// WorkerID is the requesting worker.
	WorkerID string `json:"worker_id"`
	// ToolName is the requested tool.
	ToolName string `json:"tool_name"`
	// Input is the JSON-encoded request input.
	Input string `json:"input,omitempty"`
	// Decision is the resolved action (allow or deny; asks record their
	// resolution, not the ask itself).
	Decision DecisionAction `json:"decision"`
	// Reason explains denies and records post-hook flags.
	Reason string `json:"reason,omitempty"`
	// Result is the tool output for executed calls.
	Result string `json:"result,omitempty"`
	// Error is the execution error, if any.
	Error string `json:"error,omitempty"`
	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}
