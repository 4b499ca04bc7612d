package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Dispatch.MaxWorkers != 4 {
		t.Errorf("expected default max_workers 4, got %d", cfg.Dispatch.MaxWorkers)
	}
	if cfg.Dispatch.FailFast {
		t.Error("expected fail_fast off by default")
	}
	if cfg.Gateway.Mode != "default" {
		t.Errorf("expected gateway mode 'default', got %q", cfg.Gateway.Mode)
	}
	if cfg.Gateway.HookTimeout != 5*time.Second {
		t.Errorf("expected hook timeout 5s, got %v", cfg.Gateway.HookTimeout)
	}
	if cfg.Loop.MaxIterations != 5 {
		t.Errorf("expected max_iterations 5, got %d", cfg.Loop.MaxIterations)
	}
	if !cfg.Loop.StopOnRegression {
		t.Error("expected stop_on_regression on by default")
	}
	if cfg.TUI.RefreshRate != 100*time.Millisecond {
		t.Errorf("expected refresh rate 100ms, got %v", cfg.TUI.RefreshRate)
	}
}

func TestLoadFromPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  model: claude-sonnet-4-20250514
dispatch:
  max_workers: 8
  fail_fast: true
gateway:
  mode: ask
  rules_file: rules.yaml
  ask_timeout: 30s
loop:
  max_iterations: 3
  evaluator_timeout: 1m
  stop_on_regression: false
storage:
  db_path: /tmp/loom-test.db
tui:
  refresh_rate: 200ms
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}
	if cfg.Dispatch.MaxWorkers != 8 {
		t.Errorf("expected max_workers 8, got %d", cfg.Dispatch.MaxWorkers)
	}
	if !cfg.Dispatch.FailFast {
		t.Error("expected fail_fast true")
	}
	if cfg.Gateway.Mode != "ask" {
		t.Errorf("expected gateway mode 'ask', got %q", cfg.Gateway.Mode)
	}
	if cfg.Gateway.AskTimeout != 30*time.Second {
		t.Errorf("expected ask_timeout 30s, got %v", cfg.Gateway.AskTimeout)
	}
	if cfg.Loop.MaxIterations != 3 {
		t.Errorf("expected max_iterations 3, got %d", cfg.Loop.MaxIterations)
	}
	if cfg.Loop.StopOnRegression {
		t.Error("expected stop_on_regression false")
	}
	if cfg.Storage.DBPath != "/tmp/loom-test.db" {
		t.Errorf("expected db_path override, got %q", cfg.Storage.DBPath)
	}
	if cfg.TUI.RefreshRate != 200*time.Millisecond {
		t.Errorf("expected refresh rate 200ms, got %v", cfg.TUI.RefreshRate)
	}
}

func TestLoadFromPathPartialFileKeepsDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("dispatch:\n  max_workers: 2\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Dispatch.MaxWorkers != 2 {
		t.Errorf("expected max_workers 2, got %d", cfg.Dispatch.MaxWorkers)
	}
	if cfg.Loop.MaxIterations != 5 {
		t.Errorf("unset keys should keep defaults, got max_iterations %d", cfg.Loop.MaxIterations)
	}
	if cfg.Gateway.Mode != "default" {
		t.Errorf("unset keys should keep defaults, got mode %q", cfg.Gateway.Mode)
	}
}

func TestLoadFromPathExpandsEnvInAPIKey(t *testing.T) {
	t.Setenv("LOOM_TEST_KEY", "sk-ant-from-env")

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("anthropic:\n  api_key: ${LOOM_TEST_KEY}\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-from-env" {
		t.Errorf("expected expanded env reference, got %q", cfg.Anthropic.APIKey)
	}
}

func TestPolicyConversion(t *testing.T) {
	cfg := Default()
	cfg.Dispatch.MaxWorkers = 6
	cfg.Loop.MaxIterations = 2
	cfg.Gateway.AskTimeout = 10 * time.Second

	pol := cfg.Policy()
	if pol.Dispatch.MaxWorkers != 6 {
		t.Errorf("MaxWorkers = %d, want 6", pol.Dispatch.MaxWorkers)
	}
	if pol.Loop.MaxIterations != 2 {
		t.Errorf("MaxIterations = %d, want 2", pol.Loop.MaxIterations)
	}
	if pol.Gateway.AskTimeout != 10*time.Second {
		t.Errorf("AskTimeout = %v, want 10s", pol.Gateway.AskTimeout)
	}
}

func TestPolicyConversionClampsInvalidValues(t *testing.T) {
	cfg := Default()
	cfg.Dispatch.MaxWorkers = -1
	cfg.Loop.MaxIterations = 0

	pol := cfg.Policy()
	if pol.Dispatch.MaxWorkers != 4 {
		t.Errorf("invalid MaxWorkers should clamp to 4, got %d", pol.Dispatch.MaxWorkers)
	}
	if pol.Loop.MaxIterations != 5 {
		t.Errorf("invalid MaxIterations should clamp to 5, got %d", pol.Loop.MaxIterations)
	}
}
