package gateway

import (
	"context"
	"sync"

	"github.com/ShayCichocki/loom/pkg/models"
)

// AskRequest is an ask decision surfaced to an external approver (a human at
// a terminal, a TUI, an API caller).
type AskRequest struct {
	// CallID identifies this specific pending ask.
	CallID string
	// WorkerID is the worker whose call is waiting.
	WorkerID string
	// ToolName is the requested tool.
	ToolName string
	// Prompt is the question shown to the approver.
	Prompt string
	// Input is the tool input under review.
	Input map[string]any
}

// AskResponse is the approver's answer to an AskRequest.
type AskResponse struct {
	// CallID identifies the ask being answered.
	CallID string
	// Approved permits the call.
	Approved bool
	// Reason provides context for rejections.
	Reason string
}

// AskResolver resolves an ask decision into allow or deny. This is the only
// gateway stage permitted to block indefinitely, and it must honor ctx
// cancellation.
type AskResolver interface {
	Resolve(ctx context.Context, req AskRequest) (AskResponse, error)
}

// ApprovalBroker is the channel-based AskResolver: pending asks are parked in
// a map of response channels while the request is forwarded to whoever is
// listening on RequestCh (the CLI prompt loop or the TUI).
type ApprovalBroker struct {
	mu      sync.RWMutex
	pending map[string]chan AskResponse

	requestCh chan AskRequest
}

// NewApprovalBroker creates a broker with a buffered request channel.
func NewApprovalBroker() *ApprovalBroker {
	return &ApprovalBroker{
		pending:   make(map[string]chan AskResponse),
		requestCh: make(chan AskRequest, 10),
	}
}

// RequestCh returns the channel the approver UI listens on.
func (b *ApprovalBroker) RequestCh() <-chan AskRequest {
	return b.requestCh
}

// Resolve blocks until the approver answers or the context is cancelled.
func (b *ApprovalBroker) Resolve(ctx context.Context, req AskRequest) (AskResponse, error) {
	responseCh := make(chan AskResponse, 1)

	b.mu.Lock()
	b.pending[req.CallID] = responseCh
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.CallID)
		b.mu.Unlock()
	}()

	select {
	case b.requestCh <- req:
	case <-ctx.Done():
		return AskResponse{}, ctx.Err()
	}

	select {
	case resp := <-responseCh:
		return resp, nil
	case <-ctx.Done():
		return AskResponse{}, ctx.Err()
	}
}

// Submit delivers the approver's answer for a pending ask. Answers for
// unknown or already-answered asks are dropped.
func (b *ApprovalBroker) Submit(resp AskResponse) {
	b.mu.RLock()
	ch, exists := b.pending[resp.CallID]
	b.mu.RUnlock()

	if exists {
		select {
		case ch <- resp:
		default:
		}
	}
}

// HasPending reports whether an ask is still waiting for an answer.
func (b *ApprovalBroker) HasPending(callID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, exists := b.pending[callID]
	return exists
}

// DeciderFunc adapts a function to the PermissionDecider interface.
type DeciderFunc func(ctx context.Context, req models.ToolCallRequest) (models.ToolCallDecision, error)

// Decide implements PermissionDecider.
func (f DeciderFunc) Decide(ctx context.Context, req models.ToolCallRequest) (models.ToolCallDecision, error) {
	return f(ctx, req)
}
