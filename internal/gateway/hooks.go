package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/loom/pkg/models"
)

// HookEvent identifies a point in the gateway lifecycle where externally
// registered handlers run.
type HookEvent string

const (
	// HookPreToolUse fires before a tool call is decided. A pre-hook may deny
	// the call outright; a deny here is final.
	HookPreToolUse HookEvent = "pre_tool_use"
	// HookPostToolUse fires after a tool call executed. Post-hooks may flag
	// the result for rollback or alerting but cannot un-commit the side
	// effect.
	HookPostToolUse HookEvent = "post_tool_use"
	// HookSessionStart fires when a session begins.
	HookSessionStart HookEvent = "session_start"
	// HookSessionEnd fires when a session is torn down.
	HookSessionEnd HookEvent = "session_end"
)

// HookContext carries the call being mediated into a handler. Pre-hooks may
// call Deny; post-hooks may call Flag; everything else is read-only.
type HookContext struct {
	Event   HookEvent
	Request models.ToolCallRequest
	// Record is the audit record of the executed call. Only set for
	// HookPostToolUse.
	Record *models.ToolCallRecord

	mu       sync.Mutex
	decision *models.ToolCallDecision
	flags    []string
}

// Deny records a final deny decision from a pre-hook.
func (hc *HookContext) Deny(reason string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	d := models.Deny(reason)
	hc.decision = &d
}

// Flag attaches a post-hook note (rollback request, alert) to the call's
// audit record.
func (hc *HookContext) Flag(note string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.flags = append(hc.flags, note)
}

// Decision returns the deny recorded by a pre-hook, if any.
func (hc *HookContext) Decision() *models.ToolCallDecision {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return hc.decision
}

// Flags returns the notes recorded by post-hooks.
func (hc *HookContext) Flags() []string {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	return append([]string(nil), hc.flags...)
}

// HookHandler is one registered hook. Handlers are contract-bound to return
// quickly; the registry cancels any handler that outlives the hook timeout.
type HookHandler func(ctx context.Context, hc *HookContext) error

// HookRegistry holds the ordered handler lists per event. Handlers run
// synchronously in registration order.
type HookRegistry struct {
	mu       sync.RWMutex
	handlers map[HookEvent][]HookHandler
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{handlers: make(map[HookEvent][]HookHandler)}
}

// Register appends a handler to an event's list.
func (r *HookRegistry) Register(event HookEvent, h HookHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[event] = append(r.handlers[event], h)
}

// Count returns how many handlers an event has.
func (r *HookRegistry) Count(event HookEvent) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Run invokes every handler for the event in registration order, each bounded
// by timeout. It stops early when a pre-hook denies. A handler error or
// timeout is returned so the gateway can fail closed.
func (r *HookRegistry) Run(ctx context.Context, event HookEvent, hc *HookContext, timeout time.Duration) error {
	r.mu.RLock()
	handlers := append([]HookHandler(nil), r.handlers[event]...)
	r.mu.RUnlock()

	for i, h := range handlers {
		if err := runHandler(ctx, h, hc, timeout); err != nil {
			return fmt.Errorf("%s handler %d: %w", event, i, err)
		}
		if event == HookPreToolUse && hc.Decision() != nil {
			return nil
		}
	}
	return nil
}

// runHandler executes one handler in a goroutine and abandons it on timeout
// or cancellation. The handler keeps its cancelled context and is expected to
// unwind on its own.
func runHandler(ctx context.Context, h HookHandler, hc *HookContext, timeout time.Duration) error {
	hctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		hctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- h(hctx, hc)
	}()

	select {
	case err := <-done:
		return err
	case <-hctx.Done():
		return fmt.Errorf("hook handler: %w", hctx.Err())
	}
}
