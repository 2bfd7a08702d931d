// Package graph provides a dependency graph over subtasks.
// Only BLOCKING dependencies become edges; SOFT and REFERENCE
// dependencies never constrain ordering.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the subtask graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph represents a directed acyclic graph of subtask dependencies.
// Subtasks are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps subtask ID to the subtask itself.
	nodes map[string]*models.Subtask
	// order is the insertion order, used to make every listing deterministic.
	order []string
	// edges maps subtask ID to IDs of subtasks it depends on (is blocked by).
	edges  map[string][]string
	logger *zap.Logger
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:  make(map[string]*models.Subtask),
		edges:  make(map[string][]string),
		logger: zap.NewNop(),
	}
}

// SetLogger sets the debug logger.
func (g *DependencyGraph) SetLogger(l *zap.Logger) {
	if l != nil {
		g.logger = l
	}
}

// Build constructs the dependency graph from a slice of subtasks.
// Returns an error if a cycle is detected or a BLOCKING dependency
// references an unknown subtask.
func (g *DependencyGraph) Build(subtasks []*models.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Debug("graph: building", zap.Int("subtasks", len(subtasks)))

	// First pass: register all subtasks as nodes.
	for _, s := range subtasks {
		if _, exists := g.nodes[s.ID]; exists {
			return fmt.Errorf("duplicate subtask id %s", s.ID)
		}
		g.nodes[s.ID] = s
		g.order = append(g.order, s.ID)
		g.edges[s.ID] = nil
	}

	// Second pass: build edges from BLOCKING dependencies.
	for _, s := range subtasks {
		for _, depID := range s.BlockingDependencies() {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("subtask %s depends on unknown subtask %s", s.ID, depID)
			}
			g.edges[s.ID] = append(g.edges[s.ID], depID)
		}
	}

	if path := g.cyclePathLocked(); path != nil {
		return fmt.Errorf("%w: %v", ErrCycleDetected, path)
	}

	g.logger.Debug("graph: built", zap.Int("nodes", len(g.nodes)))
	return nil
}

// cyclePathLocked returns the IDs along a cycle, or nil.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) cyclePathLocked() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				for i, s := range stack {
					if s == depID {
						return append(append([]string(nil), stack[i:]...), depID)
					}
				}
				return []string{depID, id, depID}
			case 0:
				if p := visit(depID); p != nil {
					return p
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return nil
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if p := visit(id); p != nil {
				return p
			}
		}
	}
	return nil
}

// TopologicalSort returns subtask IDs in an order where all dependencies
// come before the subtasks that depend on them. Ties keep insertion order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	layers, err := g.Layers()
	if err != nil {
		return nil, err
	}
	var result []string
	for _, layer := range layers {
		result = append(result, layer...)
	}
	return result, nil
}

// Layers groups subtasks into execution levels. Level 0 holds subtasks with
// no BLOCKING dependencies; level n holds subtasks whose dependencies all
// sit in earlier levels. Each layer keeps insertion order.
func (g *DependencyGraph) Layers() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	processed := make(map[string]bool, len(g.nodes))
	var layers [][]string

	for len(processed) < len(g.nodes) {
		var layer []string
		for _, id := range g.order {
			if processed[id] {
				continue
			}
			ready := true
			for _, dep := range g.edges[id] {
				if !processed[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			return nil, ErrCycleDetected
		}
		for _, id := range layer {
			processed[id] = true
		}
		layers = append(layers, layer)
	}

	return layers, nil
}

// Level returns the execution level of a subtask: 0 without BLOCKING
// dependencies, otherwise one more than its deepest dependency.
// Returns -1 for unknown IDs.
func (g *DependencyGraph) Level(id string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[id]; !ok {
		return -1
	}
	memo := make(map[string]int)
	var level func(string) int
	level = func(n string) int {
		if l, ok := memo[n]; ok {
			return l
		}
		memo[n] = 0 // guards against cycles slipping in after Build
		l := 0
		for _, dep := range g.edges[n] {
			if dl := level(dep) + 1; dl > l {
				l = dl
			}
		}
		memo[n] = l
		return l
	}
	return level(id)
}

// Ancestors returns every subtask the given one transitively depends on,
// in topological order.
func (g *DependencyGraph) Ancestors(id string) []string {
	g.mu.RLock()
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, dep := range g.edges[n] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)
	g.mu.RUnlock()

	if len(seen) == 0 {
		return nil
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return models.SortedKeys(seen)
	}
	result := make([]string, 0, len(seen))
	for _, n := range order {
		if seen[n] {
			result = append(result, n)
		}
	}
	return result
}

// GetSubtask returns the subtask for a given ID, or nil if not found.
func (g *DependencyGraph) GetSubtask(id string) *models.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// GetDependencies returns the IDs of subtasks that the given subtask depends on.
func (g *DependencyGraph) GetDependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[id]...)
}

// GetDependents returns the IDs of subtasks that depend on the given subtask,
// in insertion order.
func (g *DependencyGraph) GetDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, n := range g.order {
		for _, depID := range g.edges[n] {
			if depID == id {
				dependents = append(dependents, n)
				break
			}
		}
	}
	return dependents
}
