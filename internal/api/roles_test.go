package api

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/loom/pkg/models"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name     string
		response string
		outcome  models.VerdictOutcome
		score    float64
		scored   bool
		wantErr  bool
	}{
		{
			name:     "bare json",
			response: `{"outcome": "pass", "feedback": "good", "score": 92}`,
			outcome:  models.OutcomePass,
			score:    92,
			scored:   true,
		},
		{
			name:     "wrapped in prose and fences",
			response: "Here is my judgement:\n```json\n{\"outcome\": \"needs_improvement\", \"feedback\": \"missing tests\"}\n```",
			outcome:  models.OutcomeNeedsImprovement,
		},
		{
			name:     "no json",
			response: "looks fine to me",
			wantErr:  true,
		},
		{
			name:     "unknown outcome",
			response: `{"outcome": "maybe"}`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := parseVerdict(tt.response)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVerdict: %v", err)
			}
			if verdict.Outcome != tt.outcome {
				t.Errorf("outcome = %s, want %s", verdict.Outcome, tt.outcome)
			}
			if verdict.Scored() != tt.scored {
				t.Errorf("Scored() = %v, want %v", verdict.Scored(), tt.scored)
			}
			if tt.scored && *verdict.Score != tt.score {
				t.Errorf("score = %v, want %v", *verdict.Score, tt.score)
			}
		})
	}
}

func TestBuildWorkerPromptNamesClaimsAndDependencies(t *testing.T) {
	prompt := buildWorkerPrompt(models.Subtask{
		ID:             "st-2",
		Type:           "edit",
		Description:    "wire the handler",
		ResourceClaims: []string{"internal/handler.go"},
		DependsOn:      []string{"st-1"},
	}, "goal: ship")

	for _, want := range []string{"st-2", "wire the handler", "internal/handler.go", "artifact:st-1:summary", "goal: ship"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker()
	tr.Add(1000, 500)
	tr.Add(200, 100)

	in, out := tr.Total()
	if in != 1200 || out != 600 {
		t.Errorf("Total() = %d, %d; want 1200, 600", in, out)
	}
	if tr.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", tr.Calls())
	}
	if tr.Cost() <= 0 {
		t.Errorf("Cost() = %f, want positive", tr.Cost())
	}

	tr.Reset()
	if in, out := tr.Total(); in != 0 || out != 0 {
		t.Errorf("Total() after Reset = %d, %d; want zeros", in, out)
	}
}

func TestToolDefinitionsMatchGatewayBuiltins(t *testing.T) {
	want := map[string]bool{
		"Read": true, "Write": true, "Edit": true, "Bash": true,
		"ListDir": true, "Glob": true, "MemoryGet": true, "MemorySet": true,
	}
	defs := ToolDefinitions()
	if len(defs) != len(want) {
		t.Fatalf("got %d tool definitions, want %d", len(defs), len(want))
	}
	for _, def := range defs {
		if def.OfTool == nil {
			t.Fatal("nil tool definition")
		}
		if !want[def.OfTool.Name] {
			t.Errorf("unexpected tool definition %q", def.OfTool.Name)
		}
	}
}
