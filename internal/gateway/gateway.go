// Package gateway implements the tool-permission gateway: the single
// mediation point every externally-effecting call routes through. Decisions
// run a fixed pipeline (pre-hooks, deny rules, allow rules, permission mode,
// runtime callback) that short-circuits on first match and fails closed on
// any gateway-internal fault.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/loom/internal/audit"
	"github.com/ShayCichocki/loom/internal/orchestrator/policy"
	"github.com/ShayCichocki/loom/pkg/models"
)

// PermissionDecider is the runtime callback consulted when no rule decides a
// call. It may suspend pending external input (a human approval) and must
// honor ctx cancellation.
type PermissionDecider interface {
	Decide(ctx context.Context, req models.ToolCallRequest) (models.ToolCallDecision, error)
}

// Options configures a Gateway.
type Options struct {
	// Rules is the permission rule table; nil means empty tables in default
	// mode.
	Rules *RuleTable
	// Mode overrides the rule table's permission mode when set.
	Mode models.PermissionMode
	// Decider is the runtime callback. When nil, undecided calls become asks.
	Decider PermissionDecider
	// Resolver resolves ask decisions. When nil, asks fail closed.
	Resolver AskResolver
	// Hooks is the hook registry; nil means no hooks.
	Hooks *HookRegistry
	// Tools is the tool registry.
	Tools *Registry
	// Audit persists tool invocation records; nil disables persistence.
	Audit *audit.Store
	// Policy supplies the hook and ask timeouts.
	Policy policy.GatewayPolicy
	// SessionID stamps audit records.
	SessionID string
}

// Gateway mediates tool calls. It is a shared singleton referenced by every
// worker in a dispatch batch; per-call state lives on the WorkerHandle.
type Gateway struct {
	mu      sync.RWMutex
	rules   *RuleTable
	mode    models.PermissionMode
	decider PermissionDecider

	resolver AskResolver
	hooks    *HookRegistry
	tools    *Registry
	audit    *audit.Store
	policy   policy.GatewayPolicy
	session  string
}

// New creates a gateway from options.
func New(opts Options) *Gateway {
	rules := opts.Rules
	if rules == nil {
		rules = &RuleTable{Mode: models.ModeDefault}
	}
	mode := rules.Mode
	if opts.Mode != "" {
		mode = opts.Mode
	}
	if !mode.Valid() {
		mode = models.ModeDefault
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = NewHookRegistry()
	}
	tools := opts.Tools
	if tools == nil {
		tools = NewRegistry()
	}
	return &Gateway{
		rules:    rules,
		mode:     mode,
		decider:  opts.Decider,
		resolver: opts.Resolver,
		hooks:    hooks,
		tools:    tools,
		audit:    opts.Audit,
		policy:   opts.Policy,
		session:  opts.SessionID,
	}
}

// Mode returns the active permission mode.
func (g *Gateway) Mode() models.PermissionMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

// Tools returns the tool registry.
func (g *Gateway) Tools() *Registry {
	return g.tools
}

// SetRules swaps the rule table (hot reload). The permission mode follows the
// new table.
func (g *Gateway) SetRules(rules *RuleTable) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = rules
	if rules.Mode.Valid() {
		g.mode = rules.Mode
	}
}

// Invoke runs the decision pipeline for one request. It is a pure decision:
// no state is mutated, so identical requests against identical tables yield
// identical decisions. The returned decision may be an unresolved ask; Call
// resolves asks before execution.
func (g *Gateway) Invoke(ctx context.Context, req models.ToolCallRequest) models.ToolCallDecision {
	g.mu.RLock()
	rules := g.rules
	mode := g.mode
	decider := g.decider
	g.mu.RUnlock()

	// Step 1: pre-hooks. A hook deny is final; a hook fault fails closed.
	hc := &HookContext{Event: HookPreToolUse, Request: req}
	if err := g.hooks.Run(ctx, HookPreToolUse, hc, g.policy.HookTimeout); err != nil {
		log.Printf("[gateway] pre-hook fault for %s: %v", req.ToolName, err)
		return models.Deny(models.ReasonGatewayUnavailable)
	}
	if d := hc.Decision(); d != nil {
		return *d
	}

	tool, ok := g.tools.Get(req.ToolName)
	if !ok {
		return models.Deny(fmt.Sprintf("unknown-tool: %s", req.ToolName))
	}
	primaryArg, _ := stringArg(req.Input, tool.PrimaryArg())

	// Step 2: explicit deny rules. A match is final.
	if rule, matched := rules.MatchDeny(req.ToolName, primaryArg); matched {
		return models.Deny("permission-rule: " + rule.String())
	}

	// Step 3: explicit allow rules short-circuit past the runtime callback.
	// Mode ask disables the shortcut so every undenied call reaches the
	// callback.
	if mode != models.ModeAsk {
		if _, matched := rules.MatchAllow(req.ToolName, primaryArg); matched {
			return models.Allow(req.Input)
		}
	}

	// Step 4: permission mode.
	if mode == models.ModeBypass {
		return models.Allow(req.Input)
	}

	// Step 5: runtime callback. The only stage allowed to block; must be
	// cancellable.
	if decider == nil {
		return models.Ask(fmt.Sprintf("Allow %s to call %s?", req.WorkerID, req.ToolName))
	}
	decision, err := decider.Decide(ctx, req)
	if err != nil {
		log.Printf("[gateway] decider fault for %s: %v", req.ToolName, err)
		return models.Deny(models.ReasonGatewayUnavailable)
	}
	return decision
}

// FireSessionHook runs session-lifecycle hooks. Handler faults are logged,
// not propagated: session hooks observe, they do not gate.
func (g *Gateway) FireSessionHook(ctx context.Context, event HookEvent) {
	hc := &HookContext{Event: event}
	if err := g.hooks.Run(ctx, event, hc, g.policy.HookTimeout); err != nil {
		log.Printf("[gateway] %s hook fault: %v", event, err)
	}
}

// Handle creates a worker's lens on the gateway: it carries the worker's
// identity and resource claims and accumulates the per-worker tool call log.
func (g *Gateway) Handle(workerID string, claims []string) *WorkerHandle {
	normalized := make([]string, 0, len(claims))
	for _, c := range claims {
		if key := models.NormalizeResourceKey(c); key != "" {
			normalized = append(normalized, key)
		}
	}
	return &WorkerHandle{gw: g, workerID: workerID, claims: normalized}
}

// WorkerHandle is the per-worker view of the shared gateway. Workers invoke
// tools exclusively through Call; the handle never exposes sibling state.
type WorkerHandle struct {
	gw       *Gateway
	workerID string
	claims   []string

	mu  sync.Mutex
	log []models.ToolCallRecord
}

// WorkerID returns the owning worker's identifier.
func (h *WorkerHandle) WorkerID() string {
	return h.workerID
}

// Log returns a copy of the calls this worker made, in order.
func (h *WorkerHandle) Log() []models.ToolCallRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.ToolCallRecord(nil), h.log...)
}

// Call mediates one tool call end to end: decide, resolve asks, enforce the
// claim guard, execute, run post-hooks, and record the audit entry. Denials
// come back as error-flagged tool results, never as Go errors, so the worker
// can adapt its reasoning and keep going.
func (h *WorkerHandle) Call(ctx context.Context, toolName string, input map[string]any) models.ToolResult {
	req := models.ToolCallRequest{
		ToolName:  toolName,
		Input:     input,
		WorkerID:  h.workerID,
		SessionID: h.gw.session,
	}

	rec := models.ToolCallRecord{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		SessionID: h.gw.session,
		WorkerID:  h.workerID,
		ToolName:  toolName,
		Input:     encodeInput(input),
	}

	decision := h.gw.Invoke(ctx, req)
	if decision.Action == models.DecisionAsk {
		decision = h.gw.resolveAsk(ctx, rec.ID, req, decision)
	}

	if decision.Action == models.DecisionDeny {
		rec.Decision = models.DecisionDeny
		rec.Reason = decision.Reason
		h.finish(rec)
		return models.ToolResult{
			Content: fmt.Sprintf("permission denied (%s): %s", decision.Reason, toolName),
			IsError: true,
		}
	}

	effective := input
	if decision.UpdatedInput != nil {
		effective = decision.UpdatedInput
		rec.Input = encodeInput(effective)
	}
	rec.Decision = models.DecisionAllow

	tool, ok := h.gw.tools.Get(toolName)
	if !ok {
		// Invoke already denies unknown tools; guard against races with
		// registry mutation anyway.
		rec.Decision = models.DecisionDeny
		rec.Reason = "unknown-tool: " + toolName
		h.finish(rec)
		return models.ToolResult{Content: rec.Reason, IsError: true}
	}

	// Claim guard: a mutating tool may only touch resources the worker
	// claimed for this batch.
	if key := tool.ClaimKey(effective); key != "" && tool.Mutates() && !h.holdsClaim(key) {
		rec.Decision = models.DecisionDeny
		rec.Reason = "resource-not-claimed: " + key
		h.finish(rec)
		return models.ToolResult{
			Content: fmt.Sprintf("permission denied (resource-not-claimed): %s is outside this worker's claims", key),
			IsError: true,
		}
	}

	start := time.Now()
	output, execErr := tool.Execute(ctx, effective)
	rec.DurationMs = time.Since(start).Milliseconds()
	rec.Result = output
	if execErr != nil {
		rec.Error = execErr.Error()
	}

	// A call whose side effect committed after task-level cancellation has
	// its result discarded, with the discard on the audit record.
	if ctx.Err() != nil && execErr == nil {
		rec.Reason = appendReason(rec.Reason, "result-discarded: cancelled after execution")
		h.finish(rec)
		return models.ToolResult{Content: "tool call cancelled; result discarded", IsError: true}
	}

	post := &HookContext{Event: HookPostToolUse, Request: req, Record: &rec}
	if err := h.gw.hooks.Run(ctx, HookPostToolUse, post, h.gw.policy.HookTimeout); err != nil {
		// Post-hooks cannot retroactively prevent the committed effect; a
		// fault is recorded, not acted on.
		rec.Reason = appendReason(rec.Reason, "post-hook-fault: "+err.Error())
	}
	for _, flag := range post.Flags() {
		rec.Reason = appendReason(rec.Reason, "flagged: "+flag)
	}

	h.finish(rec)

	if execErr != nil {
		return models.ToolResult{Content: execErr.Error(), IsError: true}
	}
	return models.ToolResult{Content: output}
}

// resolveAsk turns an ask decision into allow or deny via the registered
// resolver. No resolver means fail closed.
func (g *Gateway) resolveAsk(ctx context.Context, callID string, req models.ToolCallRequest, ask models.ToolCallDecision) models.ToolCallDecision {
	if g.resolver == nil {
		return models.Deny("approval-unavailable")
	}

	rctx := ctx
	var cancel context.CancelFunc
	if g.policy.AskTimeout > 0 {
		rctx, cancel = context.WithTimeout(ctx, g.policy.AskTimeout)
		defer cancel()
	}

	resp, err := g.resolver.Resolve(rctx, AskRequest{
		CallID:   callID,
		WorkerID: req.WorkerID,
		ToolName: req.ToolName,
		Prompt:   ask.Prompt,
		Input:    req.Input,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.Deny("cancelled")
		}
		log.Printf("[gateway] ask resolution fault for %s: %v", req.ToolName, err)
		return models.Deny(models.ReasonGatewayUnavailable)
	}
	if !resp.Approved {
		reason := resp.Reason
		if reason == "" {
			reason = "denied by approver"
		}
		return models.Deny(reason)
	}
	return models.Allow(req.Input)
}

// holdsClaim reports whether the worker's claims cover a resource key.
func (h *WorkerHandle) holdsClaim(key string) bool {
	for _, c := range h.claims {
		if models.ResourceKeysOverlap(c, key) {
			return true
		}
	}
	return false
}

// finish appends the record to the worker log and persists it.
func (h *WorkerHandle) finish(rec models.ToolCallRecord) {
	h.mu.Lock()
	h.log = append(h.log, rec)
	h.mu.Unlock()

	if h.gw.audit != nil {
		if err := h.gw.audit.Record(rec); err != nil {
			log.Printf("[gateway] audit record failed for %s: %v", rec.ToolName, err)
		}
	}
}

func encodeInput(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(data)
}

func appendReason(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "; " + note
}
