package decompose

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/loom/pkg/models"
)

func TestParsePlanAssignsMissingIDs(t *testing.T) {
	raw := `Here is the plan:
[
	{"description": "first", "resource_claims": ["a.txt"]},
	{"description": "second", "resource_claims": ["b.txt"], "depends_on": ["0"]}
]
Done.`
	candidates, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidate count = %d, want 1", len(candidates))
	}
	subtasks := candidates[0]
	if subtasks[0].ID != "st-1" || subtasks[1].ID != "st-2" {
		t.Errorf("ids = %s, %s; want st-1, st-2", subtasks[0].ID, subtasks[1].ID)
	}
	if len(subtasks[1].DependsOn) != 1 || subtasks[1].DependsOn[0] != "st-1" {
		t.Errorf("index dependency not resolved: %v", subtasks[1].DependsOn)
	}
}

func TestParsePlanNormalizesClaims(t *testing.T) {
	raw := `[{"id": "st-1", "description": "d", "resource_claims": ["./src/main.go", "docs/", "  "]}]`
	candidates, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	claims := candidates[0][0].ResourceClaims
	if len(claims) != 2 || claims[0] != "src/main.go" || claims[1] != "docs" {
		t.Errorf("claims = %v, want normalized [src/main.go docs]", claims)
	}
}

func TestParsePlanMultipleCandidates(t *testing.T) {
	raw := `[
		[{"description": "all in one", "resource_claims": ["a", "b"]}],
		[{"description": "a", "resource_claims": ["a"]}, {"description": "b", "resource_claims": ["b"]}]
	]`
	candidates, err := ParsePlan(raw)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("candidate count = %d, want 2", len(candidates))
	}
	if len(candidates[0]) != 1 || len(candidates[1]) != 2 {
		t.Errorf("candidate sizes = %d/%d, want 1/2", len(candidates[0]), len(candidates[1]))
	}
}

func TestParsePlanErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no array", "the model rambled with no JSON"},
		{"empty array", "[]"},
		{"duplicate ids", `[{"id": "x", "description": "a"}, {"id": "x", "description": "b"}]`},
		{"missing description", `[{"id": "st-1"}]`},
		{"unknown dependency", `[{"id": "st-1", "description": "a", "depends_on": ["st-9"]}]`},
	}
	for _, tt := range tests {
		if _, err := ParsePlan(tt.raw); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestValidateDetectsPrefixOverlap(t *testing.T) {
	subtasks := []models.Subtask{
		{ID: "st-1", Description: "dir", ResourceClaims: []string{"src"}},
		{ID: "st-2", Description: "file", ResourceClaims: []string{"src/auth/login.go"}},
	}
	conflicts := Validate(subtasks)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %v, want one (directory claim overlaps files beneath it)", conflicts)
	}
}

func TestValidateTransitiveDependencyPermitsOverlap(t *testing.T) {
	subtasks := []models.Subtask{
		{ID: "st-1", Description: "a", ResourceClaims: []string{"f"}},
		{ID: "st-2", Description: "b", DependsOn: []string{"st-1"}},
		{ID: "st-3", Description: "c", ResourceClaims: []string{"f"}, DependsOn: []string{"st-2"}},
	}
	if conflicts := Validate(subtasks); len(conflicts) != 0 {
		t.Errorf("conflicts = %v, want none (st-3 transitively depends on st-1)", conflicts)
	}
}

func TestBuildPromptCarriesConflicts(t *testing.T) {
	task := models.Task{Goal: "ship it", Constraints: []string{"no API changes"}}
	prompt := BuildPrompt(task, "session snapshot", []string{"st-1 and st-2 both claim x"})
	for _, want := range []string{"ship it", "no API changes", "session snapshot", "st-1 and st-2 both claim x"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
