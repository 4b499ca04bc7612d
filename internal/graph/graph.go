// Package graph provides the subtask dependency graph used for wave scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/loom/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the subtask graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of subtask dependencies.
// Subtasks are nodes, and edges point at the subtasks they depend on.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps subtask ID to the subtask itself.
	nodes map[string]models.Subtask
	// edges maps subtask ID to the IDs it depends on.
	edges map[string][]string
	// completed tracks which subtasks have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]models.Subtask),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from a decomposition. It returns an error if a
// dependency references an unknown subtask or the graph contains a cycle.
func (g *DependencyGraph) Build(subtasks []models.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building graph from %d subtasks", len(subtasks))

	// First pass: register all subtasks as nodes.
	for _, st := range subtasks {
		if _, dup := g.nodes[st.ID]; dup {
			return fmt.Errorf("duplicate subtask id %q", st.ID)
		}
		g.nodes[st.ID] = st
		g.edges[st.ID] = nil
	}

	// Second pass: build edges from DependsOn fields.
	for _, st := range subtasks {
		for _, depID := range st.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("subtask %s depends on unknown subtask %s", st.ID, depID)
			}
			g.edges[st.ID] = append(g.edges[st.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	g.debugLog("[graph.Build] graph built with %d nodes", len(g.nodes))
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked assumes the lock is held.
// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
func (g *DependencyGraph) hasCycleLocked() bool {
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: cycle.
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// Waves groups subtask IDs into dependency stages: every subtask in wave N
// depends only on subtasks in waves < N. Subtasks in the same wave may run
// concurrently. IDs within a wave are sorted for determinism.
func (g *DependencyGraph) Waves() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	placed := make(map[string]bool, len(g.nodes))
	var waves [][]string

	for len(placed) < len(g.nodes) {
		var wave []string
		for id := range g.nodes {
			if placed[id] {
				continue
			}
			ready := true
			for _, depID := range g.edges[id] {
				if !placed[depID] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			}
		}
		if len(wave) == 0 {
			// Unreachable once the cycle check passed; guard anyway.
			return nil, ErrCycleDetected
		}
		sort.Strings(wave)
		for _, id := range wave {
			placed[id] = true
		}
		waves = append(waves, wave)
	}

	return waves, nil
}

// Ready returns the IDs of subtasks whose dependencies are all complete and
// that are not themselves complete, sorted for determinism.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id := range g.nodes {
		if g.completed[id] {
			continue
		}
		ok := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	g.debugLog("[graph.Ready] %d ready: %v", len(ready), ready)
	return ready
}

// MarkComplete marks a subtask as completed, unlocking its dependents for
// subsequent Ready calls.
func (g *DependencyGraph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
}

// Subtask returns the subtask for an ID; ok is false when unknown.
func (g *DependencyGraph) Subtask(id string) (models.Subtask, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.nodes[id]
	return st, ok
}

// Size returns the number of subtasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs the given subtask directly depends on.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[id]...)
}

// Dependents returns the IDs that directly depend on the given subtask.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for nodeID, deps := range g.edges {
		for _, depID := range deps {
			if depID == id {
				dependents = append(dependents, nodeID)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// TransitiveDependents returns every subtask that directly or indirectly
// depends on the given subtask. Used to propagate blocked status when a
// dependency fails.
func (g *DependencyGraph) TransitiveDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for nodeID, deps := range g.edges {
			if seen[nodeID] {
				continue
			}
			for _, depID := range deps {
				if depID == cur {
					seen[nodeID] = true
					stack = append(stack, nodeID)
					break
				}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for nodeID := range seen {
		out = append(out, nodeID)
	}
	sort.Strings(out)
	return out
}

// Reaches reports whether from transitively depends on to, i.e. to is an
// ancestor of from. The isolation gate permits overlapping claims only
// between subtasks related this way.
func (g *DependencyGraph) Reaches(from, to string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, depID := range g.edges[cur] {
			if depID == to {
				return true
			}
			if !seen[depID] {
				seen[depID] = true
				stack = append(stack, depID)
			}
		}
	}
	return false
}
