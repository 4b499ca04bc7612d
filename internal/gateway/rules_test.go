package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/loom/pkg/models"
)

func TestParseRule(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantPat  string
		wantErr  bool
	}{
		{"Read", "Read", "", false},
		{"Write:secrets/**", "Write", "secrets/**", false},
		{"Bash:rm *", "Bash", "rm *", false},
		{"  Glob : *.go ", "Glob", "*.go", false},
		{"", "", "", true},
		{":pattern", "", "", true},
		{"Write:", "", "", true},
	}

	for _, tt := range tests {
		rule, err := ParseRule(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRule(%q) expected error, got %+v", tt.in, rule)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRule(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if rule.ToolName != tt.wantName || rule.Pattern != tt.wantPat {
			t.Errorf("ParseRule(%q) = {%s %s}, want {%s %s}",
				tt.in, rule.ToolName, rule.Pattern, tt.wantName, tt.wantPat)
		}
	}
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		rule Rule
		tool string
		arg  string
		want bool
	}{
		{Rule{ToolName: "Read"}, "Read", "anything", true},
		{Rule{ToolName: "Read"}, "Write", "anything", false},
		{Rule{ToolName: "*"}, "Bash", "ls", true},
		{Rule{ToolName: "Write", Pattern: "secrets/**"}, "Write", "secrets/prod.yaml", true},
		{Rule{ToolName: "Write", Pattern: "secrets/**"}, "Write", "secrets/env/dev.yaml", true},
		{Rule{ToolName: "Write", Pattern: "secrets/**"}, "Write", "config.yaml", false},
		{Rule{ToolName: "Write", Pattern: "**/*.pem"}, "Write", "certs/tls/server.pem", true},
		{Rule{ToolName: "Bash", Pattern: "rm *"}, "Bash", "rm -rf tmp", true},
		{Rule{ToolName: "Bash", Pattern: "rm *"}, "Bash", "ls -la", false},
	}

	for _, tt := range tests {
		got := tt.rule.Matches(tt.tool, tt.arg)
		if got != tt.want {
			t.Errorf("rule %q Matches(%s, %q) = %v, want %v",
				tt.rule.String(), tt.tool, tt.arg, got, tt.want)
		}
	}
}

func TestParseRulesFromYAML(t *testing.T) {
	data := []byte(`
permissions:
  mode: ask
  allow:
    - "Read"
    - "Glob"
  deny:
    - "Write:secrets/**"
    - "Bash:rm *"
`)
	table, err := ParseRules(data)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if table.Mode != models.ModeAsk {
		t.Errorf("mode = %s, want ask", table.Mode)
	}
	if len(table.Allow) != 2 || len(table.Deny) != 2 {
		t.Errorf("rule counts = %d allow / %d deny, want 2/2", len(table.Allow), len(table.Deny))
	}
	if _, matched := table.MatchDeny("Write", "secrets/prod.yaml"); !matched {
		t.Error("expected deny match for secrets write")
	}
	if _, matched := table.MatchAllow("Read", "anything"); !matched {
		t.Error("expected allow match for Read")
	}
}

func TestParseRulesRejectsUnknownMode(t *testing.T) {
	if _, err := ParseRules([]byte("permissions:\n  mode: yolo\n")); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestLoadRulesMissingFileYieldsEmptyTable(t *testing.T) {
	table, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if table.Mode != models.ModeDefault || len(table.Allow) != 0 || len(table.Deny) != 0 {
		t.Errorf("missing file should yield empty default table, got %+v", table)
	}
}

func TestWatchRulesHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".loom.yaml")
	if err := os.WriteFile(path, []byte("permissions:\n  mode: default\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	gw := New(Options{Rules: rules})

	stop, err := gw.WatchRules(path)
	if err != nil {
		t.Fatalf("WatchRules: %v", err)
	}
	defer stop()

	updated := []byte("permissions:\n  mode: default\n  deny:\n    - \"Bash\"\n")
	if err := os.WriteFile(path, updated, 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		gw.mu.RLock()
		n := len(gw.rules.Deny)
		gw.mu.RUnlock()
		if n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("rule table was not reloaded after file change")
}

func TestWatchRulesKeepsTablesOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".loom.yaml")
	good := []byte("permissions:\n  deny:\n    - \"Bash\"\n")
	if err := os.WriteFile(path, good, 0644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatal(err)
	}
	gw := New(Options{Rules: rules})

	stop, err := gw.WatchRules(path)
	if err != nil {
		t.Fatalf("WatchRules: %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte("permissions:\n  mode: nonsense\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// Give the watcher time to observe the bad write, then confirm the old
	// table survived.
	time.Sleep(300 * time.Millisecond)
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	if len(gw.rules.Deny) != 1 {
		t.Errorf("deny rules = %d, want previous table kept (1)", len(gw.rules.Deny))
	}
}
