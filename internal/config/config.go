// Package config handles configuration loading for the loom runtime. It
// supports XDG config paths, project-level overrides (.loom.yaml), and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/ShayCichocki/loom/internal/orchestrator/policy"
)

// Config holds all configuration for the runtime.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Storage   StorageConfig   `mapstructure:"storage"`
	TUI       TUIConfig       `mapstructure:"tui"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// DispatchConfig holds wave-dispatch settings.
type DispatchConfig struct {
	MaxWorkers  int  `mapstructure:"max_workers"`
	FailFast    bool `mapstructure:"fail_fast"`
	EventBuffer int  `mapstructure:"event_buffer"`
}

// GatewayConfig holds permission-gateway settings.
type GatewayConfig struct {
	// Mode is the permission mode: default, ask, or bypass.
	Mode string `mapstructure:"mode"`
	// RulesFile is the permission rules YAML; relative paths resolve against
	// the working directory.
	RulesFile string `mapstructure:"rules_file"`
	// WatchRules hot-reloads the rules file on change.
	WatchRules  bool          `mapstructure:"watch_rules"`
	HookTimeout time.Duration `mapstructure:"hook_timeout"`
	AskTimeout  time.Duration `mapstructure:"ask_timeout"`
}

// LoopConfig holds evaluator-optimizer loop settings.
type LoopConfig struct {
	MaxIterations    int           `mapstructure:"max_iterations"`
	EvaluatorTimeout time.Duration `mapstructure:"evaluator_timeout"`
	SummaryWidth     int           `mapstructure:"summary_width"`
	StopOnRegression bool          `mapstructure:"stop_on_regression"`
}

// StorageConfig holds database locations.
type StorageConfig struct {
	// DBPath is the state database (sessions, memory); empty means the
	// per-user default.
	DBPath string `mapstructure:"db_path"`
	// AuditDBPath is the tool-call audit database; empty means the per-user
	// default.
	AuditDBPath string `mapstructure:"audit_db_path"`
}

// TUIConfig holds dashboard display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Policy converts the loaded configuration into the runtime policy set.
func (c *Config) Policy() *policy.Config {
	pol := policy.Default()
	pol.Dispatch.MaxWorkers = c.Dispatch.MaxWorkers
	pol.Dispatch.FailFast = c.Dispatch.FailFast
	pol.Dispatch.EventBuffer = c.Dispatch.EventBuffer
	pol.Gateway.HookTimeout = c.Gateway.HookTimeout
	pol.Gateway.AskTimeout = c.Gateway.AskTimeout
	pol.Loop.MaxIterations = c.Loop.MaxIterations
	pol.Loop.EvaluatorTimeout = c.Loop.EvaluatorTimeout
	pol.Loop.SummaryWidth = c.Loop.SummaryWidth
	pol.Loop.StopOnRegression = c.Loop.StopOnRegression
	_ = pol.Validate()
	return pol
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.loom.yaml in current directory or a parent)
// 3. User config (~/.config/loom/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("dispatch.max_workers", cfg.Dispatch.MaxWorkers)
	v.Set("dispatch.fail_fast", cfg.Dispatch.FailFast)
	v.Set("dispatch.event_buffer", cfg.Dispatch.EventBuffer)
	v.Set("gateway.mode", cfg.Gateway.Mode)
	v.Set("gateway.rules_file", cfg.Gateway.RulesFile)
	v.Set("gateway.watch_rules", cfg.Gateway.WatchRules)
	v.Set("gateway.hook_timeout", cfg.Gateway.HookTimeout.String())
	v.Set("gateway.ask_timeout", cfg.Gateway.AskTimeout.String())
	v.Set("loop.max_iterations", cfg.Loop.MaxIterations)
	v.Set("loop.evaluator_timeout", cfg.Loop.EvaluatorTimeout.String())
	v.Set("loop.summary_width", cfg.Loop.SummaryWidth)
	v.Set("loop.stop_on_regression", cfg.Loop.StopOnRegression)
	v.Set("storage.db_path", cfg.Storage.DBPath)
	v.Set("storage.audit_db_path", cfg.Storage.AuditDBPath)
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file, or "".
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("dispatch.max_workers", 4)
	v.SetDefault("dispatch.fail_fast", false)
	v.SetDefault("dispatch.event_buffer", 100)

	v.SetDefault("gateway.mode", "default")
	v.SetDefault("gateway.rules_file", ".loom.yaml")
	v.SetDefault("gateway.watch_rules", false)
	v.SetDefault("gateway.hook_timeout", "5s")
	v.SetDefault("gateway.ask_timeout", "0s")

	v.SetDefault("loop.max_iterations", 5)
	v.SetDefault("loop.evaluator_timeout", "2m")
	v.SetDefault("loop.summary_width", 120)
	v.SetDefault("loop.stop_on_regression", true)

	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.audit_db_path", "")

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for loom.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "loom")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "loom")
	}
	return filepath.Join(home, ".config", "loom")
}

// findProjectConfig searches for .loom.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".loom.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Dispatch: DispatchConfig{
			MaxWorkers:  4,
			FailFast:    false,
			EventBuffer: 100,
		},
		Gateway: GatewayConfig{
			Mode:        "default",
			RulesFile:   ".loom.yaml",
			HookTimeout: 5 * time.Second,
		},
		Loop: LoopConfig{
			MaxIterations:    5,
			EvaluatorTimeout: 2 * time.Minute,
			SummaryWidth:     120,
			StopOnRegression: true,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
