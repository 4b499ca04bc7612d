package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/loom/internal/api"
	"github.com/ShayCichocki/loom/internal/audit"
	"github.com/ShayCichocki/loom/internal/config"
	"github.com/ShayCichocki/loom/internal/decompose"
	"github.com/ShayCichocki/loom/internal/gateway"
	"github.com/ShayCichocki/loom/internal/orchestrator"
	"github.com/ShayCichocki/loom/internal/session"
	"github.com/ShayCichocki/loom/internal/state"
	"github.com/ShayCichocki/loom/pkg/models"
)

// runtime bundles everything a run needs, built once per command.
type runtime struct {
	cfg        *config.Config
	db         *state.DB
	auditStore *audit.Store
	client     *api.Client
	sess       *session.Context
	gw         *gateway.Gateway
	broker     *gateway.ApprovalBroker
	orch       *orchestrator.Orchestrator
	stopWatch  func()
}

// runtimeOptions carries command-line overrides onto the loaded config.
type runtimeOptions struct {
	mode       string
	failFast   bool
	maxWorkers int
	// useBroker routes asks through an ApprovalBroker; otherwise asks fail
	// closed unless a rule or bypass decides first.
	useBroker bool
}

// buildRuntime assembles the client, stores, session, gateway, and
// orchestrator for one task.
func buildRuntime(task models.Task, opts runtimeOptions) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.mode != "" {
		cfg.Gateway.Mode = opts.mode
	}
	if opts.failFast {
		cfg.Dispatch.FailFast = true
	}
	if opts.maxWorkers > 0 {
		cfg.Dispatch.MaxWorkers = opts.maxWorkers
	}

	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Storage.DBPath
	if dbPath == "" {
		dbPath = state.GlobalDBPath()
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate state store: %w", err)
	}

	sess, err := session.New(db, task)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}

	auditPath := cfg.Storage.AuditDBPath
	if auditPath == "" {
		auditPath = audit.DefaultPath()
	}
	auditStore, err := audit.Open(auditPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		db.Close()
		auditStore.Close()
		return nil, err
	}

	rules, err := gateway.LoadRules(cfg.Gateway.RulesFile)
	if err != nil {
		db.Close()
		auditStore.Close()
		return nil, fmt.Errorf("load permission rules: %w", err)
	}

	tools := gateway.NewRegistry()
	tools.RegisterBuiltins(workDir, sess)

	var broker *gateway.ApprovalBroker
	var resolver gateway.AskResolver
	if opts.useBroker {
		broker = gateway.NewApprovalBroker()
		resolver = broker
	}

	pol := cfg.Policy()
	gw := gateway.New(gateway.Options{
		Rules:     rules,
		Mode:      models.PermissionMode(cfg.Gateway.Mode),
		Resolver:  resolver,
		Tools:     tools,
		Hooks:     defaultHooks(sess),
		Audit:     auditStore,
		Policy:    pol.Gateway,
		SessionID: sess.ID(),
	})

	var stopWatch func()
	if cfg.Gateway.WatchRules {
		stopWatch, err = gw.WatchRules(cfg.Gateway.RulesFile)
		if err != nil {
			log.Printf("[loom] rules watch unavailable: %v", err)
			stopWatch = nil
		}
	}

	planner := api.NewPlanner(client)
	runner := api.NewWorkerRunner(client, 0)
	orch := orchestrator.New(decompose.New(planner), gw, runner, sess, pol)

	return &runtime{
		cfg:        cfg,
		db:         db,
		auditStore: auditStore,
		client:     client,
		sess:       sess,
		gw:         gw,
		broker:     broker,
		orch:       orch,
		stopWatch:  stopWatch,
	}, nil
}

func (r *runtime) close() {
	if r.stopWatch != nil {
		r.stopWatch()
	}
	if r.auditStore != nil {
		r.auditStore.Close()
	}
	if r.db != nil {
		r.db.Close()
	}
}

// defaultHooks records mutating tool calls on the session transcript and
// logs session lifecycle transitions.
func defaultHooks(sess *session.Context) *gateway.HookRegistry {
	hooks := gateway.NewHookRegistry()
	hooks.Register(gateway.HookPostToolUse, func(_ context.Context, hc *gateway.HookContext) error {
		if hc.Record == nil || hc.Record.Decision != models.DecisionAllow {
			return nil
		}
		switch hc.Record.ToolName {
		case "Write", "Edit", "Bash":
			sess.AppendTranscript(fmt.Sprintf("%s: %s %s", hc.Record.WorkerID, hc.Record.ToolName, hc.Record.Input))
		}
		return nil
	})
	hooks.Register(gateway.HookSessionStart, func(context.Context, *gateway.HookContext) error {
		log.Printf("[loom] session %s started", sess.ID())
		return nil
	})
	hooks.Register(gateway.HookSessionEnd, func(context.Context, *gateway.HookContext) error {
		log.Printf("[loom] session %s ended", sess.ID())
		return nil
	})
	return hooks
}

func newClient(cfg *config.Config) (*api.Client, error) {
	apiKey, err := config.GetAPIKey(cfg)
	if err != nil && !cfg.Anthropic.UseAWSBedrock {
		return nil, err
	}
	return api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
}

// promptApprovals answers broker asks on stdin until stop closes. Used by the
// non-TUI run path.
func promptApprovals(broker *gateway.ApprovalBroker, stop <-chan struct{}) {
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case req := <-broker.RequestCh():
			fmt.Printf("\n%s\n  input: %v\napprove? [y/N] ", req.Prompt, req.Input)
			line, err := reader.ReadString('\n')
			approved := err == nil && strings.HasPrefix(strings.TrimSpace(strings.ToLower(line)), "y")
			resp := gateway.AskResponse{CallID: req.CallID, Approved: approved}
			if !approved {
				resp.Reason = "denied at prompt"
			}
			broker.Submit(resp)
		case <-stop:
			return
		}
	}
}
