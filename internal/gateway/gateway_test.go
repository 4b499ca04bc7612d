package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/loom/internal/orchestrator/policy"
	"github.com/ShayCichocki/loom/pkg/models"
)

// countingDecider records how many times the runtime callback was consulted.
type countingDecider struct {
	calls    int64
	decision models.ToolCallDecision
	err      error
}

func (d *countingDecider) Decide(_ context.Context, req models.ToolCallRequest) (models.ToolCallDecision, error) {
	atomic.AddInt64(&d.calls, 1)
	if d.err != nil {
		return models.ToolCallDecision{}, d.err
	}
	if d.decision.Action == "" {
		return models.Allow(req.Input), nil
	}
	return d.decision, nil
}

func (d *countingDecider) count() int64 {
	return atomic.LoadInt64(&d.calls)
}

func newTestGateway(t *testing.T, opts Options) *Gateway {
	t.Helper()
	if opts.Tools == nil {
		opts.Tools = NewRegistry()
		opts.Tools.Register(&writeTool{root: t.TempDir()})
		opts.Tools.Register(&readTool{root: t.TempDir()})
	}
	if opts.Policy.HookTimeout == 0 {
		opts.Policy = policy.Default().Gateway
	}
	return New(opts)
}

func writeReq(path string) models.ToolCallRequest {
	return models.ToolCallRequest{
		ToolName: "Write",
		Input:    map[string]any{"path": path, "content": "x"},
		WorkerID: "w-1",
	}
}

func TestInvokeDenyRuleShortCircuitsBeforeDecider(t *testing.T) {
	decider := &countingDecider{}
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{
			Mode: models.ModeDefault,
			Deny: []Rule{{ToolName: "Write", Pattern: "secrets/**"}},
		},
		Decider: decider,
	})

	decision := gw.Invoke(context.Background(), writeReq("secrets/prod.yaml"))
	if decision.Action != models.DecisionDeny {
		t.Fatalf("decision = %s, want deny", decision.Action)
	}
	if decider.count() != 0 {
		t.Errorf("decider consulted %d times for rule-denied call, want 0", decider.count())
	}
}

func TestInvokeAllowRuleShortCircuitsPastDecider(t *testing.T) {
	decider := &countingDecider{decision: models.Deny("should not be reached")}
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{
			Mode:  models.ModeDefault,
			Allow: []Rule{{ToolName: "Write", Pattern: "docs/**"}},
		},
		Decider: decider,
	})

	decision := gw.Invoke(context.Background(), writeReq("docs/readme.md"))
	if decision.Action != models.DecisionAllow {
		t.Fatalf("decision = %s, want allow", decision.Action)
	}
	if decider.count() != 0 {
		t.Errorf("decider consulted %d times for rule-allowed call, want 0", decider.count())
	}
}

func TestInvokeDenyRuleWinsOverAllowRule(t *testing.T) {
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{
			Mode:  models.ModeDefault,
			Deny:  []Rule{{ToolName: "Write", Pattern: "secrets/**"}},
			Allow: []Rule{{ToolName: "Write"}},
		},
	})

	decision := gw.Invoke(context.Background(), writeReq("secrets/key.pem"))
	if decision.Action != models.DecisionDeny {
		t.Fatalf("decision = %s, want deny (deny rules run before allow rules)", decision.Action)
	}
}

func TestInvokeAskModeSkipsAllowRules(t *testing.T) {
	decider := &countingDecider{}
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{
			Mode:  models.ModeAsk,
			Allow: []Rule{{ToolName: "Write"}},
		},
		Decider: decider,
	})

	gw.Invoke(context.Background(), writeReq("docs/readme.md"))
	if decider.count() != 1 {
		t.Errorf("decider consulted %d times in ask mode, want 1", decider.count())
	}
}

func TestInvokeBypassModeAllowsWithoutDecider(t *testing.T) {
	decider := &countingDecider{}
	gw := newTestGateway(t, Options{
		Rules:   &RuleTable{Mode: models.ModeBypass},
		Decider: decider,
	})

	decision := gw.Invoke(context.Background(), writeReq("anything.txt"))
	if decision.Action != models.DecisionAllow {
		t.Fatalf("decision = %s, want allow under bypass", decision.Action)
	}
	if decider.count() != 0 {
		t.Errorf("decider consulted %d times under bypass, want 0", decider.count())
	}
}

func TestInvokeBypassDoesNotOverrideDenyRules(t *testing.T) {
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{
			Mode: models.ModeBypass,
			Deny: []Rule{{ToolName: "Write", Pattern: "secrets/**"}},
		},
	})

	decision := gw.Invoke(context.Background(), writeReq("secrets/prod.yaml"))
	if decision.Action != models.DecisionDeny {
		t.Fatalf("decision = %s, want deny (deny rules precede mode check)", decision.Action)
	}
}

func TestInvokeIsIdempotent(t *testing.T) {
	decider := &countingDecider{decision: models.Deny("not yours")}
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{
			Mode:  models.ModeDefault,
			Deny:  []Rule{{ToolName: "Bash"}},
			Allow: []Rule{{ToolName: "Read"}},
		},
		Decider: decider,
	})

	req := writeReq("src/main.go")
	first := gw.Invoke(context.Background(), req)
	second := gw.Invoke(context.Background(), req)

	if first.Action != second.Action || first.Reason != second.Reason {
		t.Errorf("repeated Invoke diverged: first %+v, second %+v", first, second)
	}
}

func TestInvokeDeciderErrorFailsClosed(t *testing.T) {
	decider := &countingDecider{err: context.DeadlineExceeded}
	gw := newTestGateway(t, Options{Decider: decider})

	decision := gw.Invoke(context.Background(), writeReq("a.txt"))
	if decision.Action != models.DecisionDeny {
		t.Fatalf("decision = %s, want deny on decider fault", decision.Action)
	}
	if decision.Reason != models.ReasonGatewayUnavailable {
		t.Errorf("reason = %q, want %q", decision.Reason, models.ReasonGatewayUnavailable)
	}
}

func TestInvokeUnknownToolDenied(t *testing.T) {
	gw := newTestGateway(t, Options{Rules: &RuleTable{Mode: models.ModeBypass}})

	decision := gw.Invoke(context.Background(), models.ToolCallRequest{
		ToolName: "Teleport",
		WorkerID: "w-1",
	})
	if decision.Action != models.DecisionDeny {
		t.Fatalf("decision = %s, want deny for unknown tool", decision.Action)
	}
}

func TestInvokePreHookDenyIsFinal(t *testing.T) {
	decider := &countingDecider{}
	hooks := NewHookRegistry()
	hooks.Register(HookPreToolUse, func(_ context.Context, hc *HookContext) error {
		hc.Deny("blocked by compliance hook")
		return nil
	})
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{
			Mode:  models.ModeDefault,
			Allow: []Rule{{ToolName: "Write"}},
		},
		Decider: decider,
		Hooks:   hooks,
	})

	decision := gw.Invoke(context.Background(), writeReq("a.txt"))
	if decision.Action != models.DecisionDeny {
		t.Fatalf("decision = %s, want deny from pre-hook", decision.Action)
	}
	if decision.Reason != "blocked by compliance hook" {
		t.Errorf("reason = %q, want hook reason", decision.Reason)
	}
	if decider.count() != 0 {
		t.Errorf("decider consulted after pre-hook deny")
	}
}

func TestInvokeHookTimeoutFailsClosed(t *testing.T) {
	hooks := NewHookRegistry()
	hooks.Register(HookPreToolUse, func(ctx context.Context, _ *HookContext) error {
		<-ctx.Done()
		return ctx.Err()
	})
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{Mode: models.ModeBypass},
		Hooks: hooks,
		Policy: policy.GatewayPolicy{
			HookTimeout: 20 * time.Millisecond,
		},
	})

	decision := gw.Invoke(context.Background(), writeReq("a.txt"))
	if decision.Action != models.DecisionDeny {
		t.Fatalf("decision = %s, want deny on hook timeout", decision.Action)
	}
	if decision.Reason != models.ReasonGatewayUnavailable {
		t.Errorf("reason = %q, want %q", decision.Reason, models.ReasonGatewayUnavailable)
	}
}

func TestCallDenyReturnsStructuredRefusal(t *testing.T) {
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{
			Mode: models.ModeBypass,
			Deny: []Rule{{ToolName: "Write", Pattern: "secrets/**"}},
		},
	})
	handle := gw.Handle("w-1", []string{"secrets"})

	result := handle.Call(context.Background(), "Write", map[string]any{
		"path": "secrets/prod.yaml", "content": "x",
	})
	if !result.IsError {
		t.Fatal("denied call should return an error-flagged result")
	}
	if result.Content == "" {
		t.Error("refusal should carry an explanation")
	}

	log := handle.Log()
	if len(log) != 1 {
		t.Fatalf("log length = %d, want 1", len(log))
	}
	if log[0].Decision != models.DecisionDeny {
		t.Errorf("logged decision = %s, want deny", log[0].Decision)
	}
}

func TestCallClaimGuardDeniesUnclaimedWrite(t *testing.T) {
	root := t.TempDir()
	tools := NewRegistry()
	tools.Register(&writeTool{root: root})
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{Mode: models.ModeBypass},
		Tools: tools,
	})
	handle := gw.Handle("w-1", []string{"docs"})

	result := handle.Call(context.Background(), "Write", map[string]any{
		"path": "src/main.go", "content": "package main",
	})
	if !result.IsError {
		t.Fatal("write outside claims should be denied")
	}
	log := handle.Log()
	if len(log) != 1 || log[0].Reason != "resource-not-claimed: src/main.go" {
		t.Errorf("log = %+v, want resource-not-claimed reason", log)
	}
}

func TestCallClaimGuardAllowsClaimedWrite(t *testing.T) {
	root := t.TempDir()
	tools := NewRegistry()
	tools.Register(&writeTool{root: root})
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{Mode: models.ModeBypass},
		Tools: tools,
	})
	handle := gw.Handle("w-1", []string{"docs"})

	result := handle.Call(context.Background(), "Write", map[string]any{
		"path": "docs/notes.md", "content": "hello",
	})
	if result.IsError {
		t.Fatalf("claimed write failed: %s", result.Content)
	}
}

func TestCallAskWithoutResolverFailsClosed(t *testing.T) {
	gw := newTestGateway(t, Options{
		Decider: &countingDecider{decision: models.Ask("ok to write?")},
	})
	handle := gw.Handle("w-1", nil)

	result := handle.Call(context.Background(), "Write", map[string]any{
		"path": "a.txt", "content": "x",
	})
	if !result.IsError {
		t.Fatal("ask without a resolver should fail closed")
	}
	log := handle.Log()
	if len(log) != 1 || log[0].Reason != "approval-unavailable" {
		t.Errorf("log = %+v, want approval-unavailable", log)
	}
}

func TestCallAskResolvedByBroker(t *testing.T) {
	root := t.TempDir()
	tools := NewRegistry()
	tools.Register(&writeTool{root: root})

	broker := NewApprovalBroker()
	gw := newTestGateway(t, Options{
		Decider:  &countingDecider{decision: models.Ask("ok to write?")},
		Resolver: broker,
		Tools:    tools,
	})
	handle := gw.Handle("w-1", []string{"a.txt"})

	go func() {
		req := <-broker.RequestCh()
		broker.Submit(AskResponse{CallID: req.CallID, Approved: true})
	}()

	result := handle.Call(context.Background(), "Write", map[string]any{
		"path": "a.txt", "content": "x",
	})
	if result.IsError {
		t.Fatalf("approved ask should execute, got error: %s", result.Content)
	}
}

func TestCallPostHookFlagRecordedOnAudit(t *testing.T) {
	root := t.TempDir()
	tools := NewRegistry()
	tools.Register(&writeTool{root: root})

	hooks := NewHookRegistry()
	hooks.Register(HookPostToolUse, func(_ context.Context, hc *HookContext) error {
		hc.Flag("large diff, review before merge")
		return nil
	})
	gw := newTestGateway(t, Options{
		Rules: &RuleTable{Mode: models.ModeBypass},
		Tools: tools,
		Hooks: hooks,
	})
	handle := gw.Handle("w-1", []string{"a.txt"})

	result := handle.Call(context.Background(), "Write", map[string]any{
		"path": "a.txt", "content": "x",
	})
	if result.IsError {
		t.Fatalf("call failed: %s", result.Content)
	}

	log := handle.Log()
	if len(log) != 1 {
		t.Fatalf("log length = %d, want 1", len(log))
	}
	if want := "flagged: large diff, review before merge"; log[0].Reason != want {
		t.Errorf("reason = %q, want %q", log[0].Reason, want)
	}
	// The post-hook flag cannot retroactively fail the call.
	if log[0].Decision != models.DecisionAllow {
		t.Errorf("decision = %s, want allow", log[0].Decision)
	}
}

func TestSetRulesSwapsTables(t *testing.T) {
	gw := newTestGateway(t, Options{Rules: &RuleTable{Mode: models.ModeBypass}})

	req := writeReq("secrets/prod.yaml")
	if d := gw.Invoke(context.Background(), req); d.Action != models.DecisionAllow {
		t.Fatalf("pre-swap decision = %s, want allow", d.Action)
	}

	gw.SetRules(&RuleTable{
		Mode: models.ModeBypass,
		Deny: []Rule{{ToolName: "Write", Pattern: "secrets/**"}},
	})
	if d := gw.Invoke(context.Background(), req); d.Action != models.DecisionDeny {
		t.Fatalf("post-swap decision = %s, want deny", d.Action)
	}
}
