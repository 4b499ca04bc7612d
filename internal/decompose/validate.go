package decompose

import (
	"fmt"

	"github.com/ShayCichocki/loom/internal/graph"
	"github.com/ShayCichocki/loom/pkg/models"
)

// Validate checks a candidate partition against the isolation invariant:
// the dependency graph must be acyclic and no two subtasks may share an
// overlapping resource claim unless one transitively depends on the other.
// It returns the concrete conflicts found, empty when the partition is safe.
func Validate(subtasks []models.Subtask) []string {
	g := graph.New()
	if err := g.Build(subtasks); err != nil {
		return []string{err.Error()}
	}

	var conflicts []string
	for i := 0; i < len(subtasks); i++ {
		for j := i + 1; j < len(subtasks); j++ {
			a, b := subtasks[i], subtasks[j]
			key, overlap := claimsOverlap(a, b)
			if !overlap {
				continue
			}
			if g.Reaches(a.ID, b.ID) || g.Reaches(b.ID, a.ID) {
				continue
			}
			conflicts = append(conflicts,
				fmt.Sprintf("subtasks %s and %s both claim %s without a dependency path", a.ID, b.ID, key))
		}
	}
	return conflicts
}

// claimsOverlap returns the first overlapping resource key between two
// subtasks' claim sets.
func claimsOverlap(a, b models.Subtask) (string, bool) {
	for _, ca := range a.ResourceClaims {
		for _, cb := range b.ResourceClaims {
			if models.ResourceKeysOverlap(ca, cb) {
				return ca, true
			}
		}
	}
	return "", false
}

// parallelWidth counts the dependency-free subtasks in a partition: the
// number that can start in the first wave. The tie-break maximizes this,
// since wave-1 width is the system's main latency lever.
func parallelWidth(subtasks []models.Subtask) int {
	width := 0
	for _, st := range subtasks {
		if len(st.DependsOn) == 0 {
			width++
		}
	}
	return width
}
