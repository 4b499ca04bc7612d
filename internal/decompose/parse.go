package decompose

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ShayCichocki/loom/pkg/models"
)

// planEntry is the JSON structure the planner returns for one subtask.
type planEntry struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	ResourceClaims []string `json:"resource_claims"`
	DependsOn      []string `json:"depends_on"`
}

// ParsePlan extracts candidate partitions from the planner's response. The
// response normally carries one JSON array of subtask entries; a planner may
// instead return an array of arrays, each inner array a complete candidate
// partition for the tie-break to choose between.
func ParsePlan(response string) ([][]models.Subtask, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		preview := response
		if len(preview) > 200 {
			preview = preview[:200] + "... (truncated)"
		}
		return nil, fmt.Errorf("no JSON array found in planner response (got %d chars): %q", len(response), preview)
	}
	jsonStr := response[jsonStart : jsonEnd+1]

	var multi [][]planEntry
	if err := json.Unmarshal([]byte(jsonStr), &multi); err == nil && len(multi) > 0 {
		candidates := make([][]models.Subtask, 0, len(multi))
		for i, entries := range multi {
			subtasks, err := buildSubtasks(entries)
			if err != nil {
				return nil, fmt.Errorf("candidate %d: %w", i, err)
			}
			candidates = append(candidates, subtasks)
		}
		return candidates, nil
	}

	var entries []planEntry
	if err := json.Unmarshal([]byte(jsonStr), &entries); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	subtasks, err := buildSubtasks(entries)
	if err != nil {
		return nil, err
	}
	return [][]models.Subtask{subtasks}, nil
}

// buildSubtasks turns plan entries into subtasks: ids are assigned st-1..st-n
// when omitted, claims are normalized, and depends_on references resolve by
// id or by zero-based entry index.
func buildSubtasks(entries []planEntry) ([]models.Subtask, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("empty subtask list")
	}

	// First pass: assign ids and normalize claims.
	subtasks := make([]models.Subtask, len(entries))
	idByName := make(map[string]string, len(entries))
	for i, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			id = fmt.Sprintf("st-%d", i+1)
		}
		if _, dup := idByName[id]; dup {
			return nil, fmt.Errorf("duplicate subtask id %q", id)
		}
		idByName[id] = id

		if strings.TrimSpace(e.Description) == "" {
			return nil, fmt.Errorf("subtask %s has no description", id)
		}

		var claims []string
		for _, c := range e.ResourceClaims {
			if key := models.NormalizeResourceKey(c); key != "" {
				claims = append(claims, key)
			}
		}

		subtasks[i] = models.Subtask{
			ID:             id,
			Type:           strings.TrimSpace(e.Type),
			Description:    strings.TrimSpace(e.Description),
			ResourceClaims: claims,
		}
	}

	// Second pass: resolve dependencies once every id is known.
	for i, e := range entries {
		for _, dep := range e.DependsOn {
			dep = strings.TrimSpace(dep)
			if dep == "" {
				continue
			}
			if _, ok := idByName[dep]; ok {
				subtasks[i].DependsOn = append(subtasks[i].DependsOn, dep)
				continue
			}
			if idx, err := strconv.Atoi(dep); err == nil && idx >= 0 && idx < len(subtasks) {
				subtasks[i].DependsOn = append(subtasks[i].DependsOn, subtasks[idx].ID)
				continue
			}
			return nil, fmt.Errorf("unknown dependency %q for subtask %s", dep, subtasks[i].ID)
		}
	}

	return subtasks, nil
}
