// Package graph provides the dependency graph backing a task board.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/crewboard/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrDuplicateTask indicates two tasks in the same plan share an identifier.
var ErrDuplicateTask = errors.New("duplicate task identifier")

// DependencyGraph is a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
//
// Unlike a plain adjacency map, the graph remembers the insertion order of
// the originating plan: Ready and the newly-runnable sets returned by
// MarkComplete come back in stable plan order, which keeps notification
// delivery deterministic for a given plan version.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// order holds task IDs in plan insertion order.
	order []string
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
	// dependents maps task ID to IDs of tasks that depend on it.
	dependents map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:      make(map[string]*models.Task),
		edges:      make(map[string][]string),
		dependents: make(map[string][]string),
		completed:  make(map[string]bool),
		debugLog:   func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the dependency graph from a slice of tasks.
// It rejects duplicate identifiers, self dependencies, references to unknown
// tasks, and cycles. On error the graph is left unchanged.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := make(map[string]*models.Task, len(tasks))
	order := make([]string, 0, len(tasks))
	edges := make(map[string][]string, len(tasks))
	dependents := make(map[string][]string)

	for _, task := range tasks {
		if _, exists := nodes[task.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, task.ID)
		}
		nodes[task.ID] = task
		order = append(order, task.ID)
		edges[task.ID] = nil
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if depID == task.ID {
				return fmt.Errorf("task %s depends on itself", task.ID)
			}
			if _, exists := nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			edges[task.ID] = append(edges[task.ID], depID)
			dependents[depID] = append(dependents[depID], task.ID)
		}
	}

	if hasCycle(order, edges) {
		return ErrCycleDetected
	}

	g.nodes = nodes
	g.order = order
	g.edges = edges
	g.dependents = dependents
	g.completed = make(map[string]bool)

	g.debugLog("[graph.Build] built graph with %d nodes", len(nodes))
	return nil
}

// Validate checks a task set for duplicates, self/unknown dependencies, and
// cycles without mutating any graph. Used by plan validation before a board
// accepts a publish.
func Validate(tasks []*models.Task) error {
	return New().Build(tasks)
}

// hasCycle reports whether the edge set contains a cycle.
// Uses depth-first search with coloring to detect back edges. Nodes are
// visited in plan order so the walk is deterministic.
func hasCycle(order []string, edges map[string][]string) bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(order))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge.
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

	for _, id := range order {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// Ready returns, in plan order, the IDs of tasks whose dependencies are all
// complete and that are not themselves complete.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] {
			continue
		}
		if g.depsSatisfiedLocked(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

// depsSatisfiedLocked reports whether every dependency of id is complete.
func (g *DependencyGraph) depsSatisfiedLocked(id string) bool {
	for _, depID := range g.edges[id] {
		if !g.completed[depID] {
			return false
		}
	}
	return true
}

// MarkComplete marks a task as completed and returns the IDs of direct
// dependents whose dependency sets became fully satisfied by exactly this
// completion, in plan order. Only the completed task's direct dependents are
// examined; no full-graph scan is needed.
func (g *DependencyGraph) MarkComplete(taskID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.completed[taskID] {
		return nil
	}
	g.completed[taskID] = true

	unblocked := make(map[string]bool)
	for _, depID := range g.dependents[taskID] {
		if !g.completed[depID] && g.depsSatisfiedLocked(depID) {
			unblocked[depID] = true
		}
	}
	if len(unblocked) == 0 {
		return nil
	}

	// Report in plan order for deterministic delivery.
	var newlyReady []string
	for _, id := range g.order {
		if unblocked[id] {
			newlyReady = append(newlyReady, id)
		}
	}

	g.debugLog("[graph.MarkComplete] %s complete, unblocked %v", taskID, newlyReady)
	return newlyReady
}

// Completed reports whether a task has been marked complete.
func (g *DependencyGraph) Completed(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.completed[taskID]
}

// Task returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Order returns task IDs in plan insertion order.
func (g *DependencyGraph) Order() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Dependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *DependencyGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[taskID]...)
}

// TransitiveDependents returns every task downstream of the given task,
// direct or indirect, in plan order. Coordinators use this when a failure
// policy cancels everything a failed task was blocking.
func (g *DependencyGraph) TransitiveDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		for _, depID := range g.dependents[id] {
			if !seen[depID] {
				seen[depID] = true
				walk(depID)
			}
		}
	}
	walk(taskID)

	var result []string
	for _, id := range g.order {
		if seen[id] {
			result = append(result, id)
		}
	}
	return result
}

// TopologicalSort returns task IDs in an order where all dependencies come
// before the tasks that depend on them. Ties are broken by plan order.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if hasCycle(g.order, g.edges) {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.order))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}
