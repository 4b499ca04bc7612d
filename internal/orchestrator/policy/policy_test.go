package policy

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Dispatch.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", cfg.Dispatch.MaxWorkers)
	}
	if cfg.Gateway.HookTimeout != 5*time.Second {
		t.Errorf("HookTimeout = %v, want 5s", cfg.Gateway.HookTimeout)
	}
	if cfg.Loop.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Loop.MaxIterations)
	}
	if !cfg.Loop.StopOnRegression {
		t.Error("StopOnRegression should default to true")
	}
}

func TestValidateClampsInvalidValues(t *testing.T) {
	cfg := &Config{}
	cfg.Dispatch.MaxWorkers = 0
	cfg.Dispatch.EventBuffer = -1
	cfg.Gateway.HookTimeout = time.Millisecond
	cfg.Loop.MaxIterations = 999
	cfg.Loop.EvaluatorTimeout = 0
	cfg.Loop.SummaryWidth = 1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Dispatch.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want clamped to 4", cfg.Dispatch.MaxWorkers)
	}
	if cfg.Dispatch.EventBuffer != 100 {
		t.Errorf("EventBuffer = %d, want clamped to 100", cfg.Dispatch.EventBuffer)
	}
	if cfg.Gateway.HookTimeout != 5*time.Second {
		t.Errorf("HookTimeout = %v, want clamped to 5s", cfg.Gateway.HookTimeout)
	}
	if cfg.Loop.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want clamped to 5", cfg.Loop.MaxIterations)
	}
	if cfg.Loop.EvaluatorTimeout != 2*time.Minute {
		t.Errorf("EvaluatorTimeout = %v, want clamped to 2m", cfg.Loop.EvaluatorTimeout)
	}
	if cfg.Loop.SummaryWidth != 120 {
		t.Errorf("SummaryWidth = %d, want clamped to 120", cfg.Loop.SummaryWidth)
	}
}

func TestValidateKeepsValidValues(t *testing.T) {
	cfg := Default()
	cfg.Dispatch.MaxWorkers = 8
	cfg.Loop.MaxIterations = 12

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Dispatch.MaxWorkers != 8 {
		t.Errorf("MaxWorkers = %d, valid value should survive", cfg.Dispatch.MaxWorkers)
	}
	if cfg.Loop.MaxIterations != 12 {
		t.Errorf("MaxIterations = %d, valid value should survive", cfg.Loop.MaxIterations)
	}
}
