package gateway

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/loom/pkg/models"
)

// Rule is one permission pattern: a bare tool name ("Read") or a tool name
// plus an argument glob ("Write:secrets/**"). Bare names match every call to
// that tool; argument globs match against the tool's primary argument and
// support * and ** wildcards.
type Rule struct {
	ToolName string
	Pattern  string
}

// ParseRule parses the "Tool" or "Tool:pattern" rule grammar.
func ParseRule(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Rule{}, fmt.Errorf("empty permission rule")
	}
	name, pattern, hasPattern := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return Rule{}, fmt.Errorf("permission rule %q has no tool name", s)
	}
	if hasPattern {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			return Rule{}, fmt.Errorf("permission rule %q has an empty pattern", s)
		}
	}
	return Rule{ToolName: name, Pattern: pattern}, nil
}

// String renders the rule back in the grammar it was parsed from.
func (r Rule) String() string {
	if r.Pattern == "" {
		return r.ToolName
	}
	return r.ToolName + ":" + r.Pattern
}

// Matches reports whether the rule covers a call to toolName with the given
// primary argument value. A rule with no pattern matches on name alone.
func (r Rule) Matches(toolName, primaryArg string) bool {
	if r.ToolName != "*" && r.ToolName != toolName {
		return false
	}
	if r.Pattern == "" {
		return true
	}
	return matchGlobPattern(primaryArg, r.Pattern)
}

// RuleTable is the permission configuration the gateway consults: an explicit
// deny list, an explicit allow list, and the active permission mode. The
// table is supplied by the surrounding application, not owned by the core.
type RuleTable struct {
	Mode  models.PermissionMode
	Deny  []Rule
	Allow []Rule
}

// MatchDeny returns the first deny rule covering the call, if any.
func (t *RuleTable) MatchDeny(toolName, primaryArg string) (Rule, bool) {
	for _, r := range t.Deny {
		if r.Matches(toolName, primaryArg) {
			return r, true
		}
	}
	return Rule{}, false
}

// MatchAllow returns the first allow rule covering the call, if any.
func (t *RuleTable) MatchAllow(toolName, primaryArg string) (Rule, bool) {
	for _, r := range t.Allow {
		if r.Matches(toolName, primaryArg) {
			return r, true
		}
	}
	return Rule{}, false
}

// permissionsConfig is the permissions: section of .loom.yaml.
type permissionsConfig struct {
	Permissions struct {
		Mode  string   `yaml:"mode"`
		Allow []string `yaml:"allow"`
		Deny  []string `yaml:"deny"`
	} `yaml:"permissions"`
}

// ParseRules builds a rule table from raw .loom.yaml contents.
func ParseRules(data []byte) (*RuleTable, error) {
	var cfg permissionsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse permissions config: %w", err)
	}

	table := &RuleTable{Mode: models.ModeDefault}
	if cfg.Permissions.Mode != "" {
		mode := models.PermissionMode(cfg.Permissions.Mode)
		if !mode.Valid() {
			return nil, fmt.Errorf("unknown permission mode %q", cfg.Permissions.Mode)
		}
		table.Mode = mode
	}

	for _, s := range cfg.Permissions.Deny {
		rule, err := ParseRule(s)
		if err != nil {
			return nil, fmt.Errorf("deny rule: %w", err)
		}
		table.Deny = append(table.Deny, rule)
	}
	for _, s := range cfg.Permissions.Allow {
		rule, err := ParseRule(s)
		if err != nil {
			return nil, fmt.Errorf("allow rule: %w", err)
		}
		table.Allow = append(table.Allow, rule)
	}

	return table, nil
}

// LoadRules reads the rule table from a .loom.yaml file. A missing file
// yields an empty table in default mode.
func LoadRules(path string) (*RuleTable, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &RuleTable{Mode: models.ModeDefault}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read permissions config: %w", err)
	}
	return ParseRules(data)
}
