package graph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/ShayCichocki/crewboard/pkg/models"
)

func buildGraph(t *testing.T, tasks []*models.Task) *DependencyGraph {
	t.Helper()
	g := New()
	if err := g.Build(tasks); err != nil {
		t.Fatalf("unexpected build error: %v", err)
	}
	return g
}

func TestNew(t *testing.T) {
	g := New()
	if g == nil {
		t.Fatal("expected non-nil graph")
	}
	if g.Size() != 0 {
		t.Errorf("expected empty graph, got size %d", g.Size())
	}
}

func TestBuildSimple(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "t1", Title: "Task 1"},
		{ID: "t2", Title: "Task 2"},
		{ID: "t3", Title: "Task 3"},
	})

	if g.Size() != 3 {
		t.Errorf("expected size 3, got %d", g.Size())
	}
	if got := g.Order(); !reflect.DeepEqual(got, []string{"t1", "t2", "t3"}) {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestBuildWithDependencies(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "t1"},
		{ID: "t2", DependsOn: []string{"t1"}},
		{ID: "t3", DependsOn: []string{"t1", "t2"}},
	})

	if deps := g.Dependencies("t3"); len(deps) != 2 {
		t.Errorf("expected 2 dependencies for t3, got %d", len(deps))
	}
	if dependents := g.Dependents("t1"); len(dependents) != 2 {
		t.Errorf("expected 2 dependents of t1, got %d", len(dependents))
	}
}

func TestBuildDuplicateID(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		{ID: "t1"},
		{ID: "t1"},
	})
	if !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestBuildSelfDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		{ID: "t1", DependsOn: []string{"t1"}},
	})
	if err == nil {
		t.Fatal("expected error for self dependency")
	}
}

func TestBuildUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		{ID: "t1", DependsOn: []string{"missing"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestCycleDetectionDirect(t *testing.T) {
	// A -> B -> A
	g := New()
	err := g.Build([]*models.Task{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestCycleDetectionThreeNodes(t *testing.T) {
	// A -> B -> C -> A
	g := New()
	err := g.Build([]*models.Task{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"C"}},
		{ID: "C", DependsOn: []string{"A"}},
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestBuildErrorLeavesGraphUnchanged(t *testing.T) {
	g := buildGraph(t, []*models.Task{{ID: "keep"}})

	err := g.Build([]*models.Task{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	if g.Size() != 1 || g.Task("keep") == nil {
		t.Error("failed build mutated existing graph")
	}
}

func TestReadyInitial(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "A"},
		{ID: "B", DependsOn: []string{"A"}},
		{ID: "C"},
	})

	if got := g.Ready(); !reflect.DeepEqual(got, []string{"A", "C"}) {
		t.Errorf("expected [A C] ready, got %v", got)
	}
}

func TestMarkCompleteUnblocksDependents(t *testing.T) {
	// A unblocks both B and C in the same step.
	g := buildGraph(t, []*models.Task{
		{ID: "A"},
		{ID: "B", DependsOn: []string{"A"}},
		{ID: "C", DependsOn: []string{"A"}},
	})

	newlyReady := g.MarkComplete("A")
	if !reflect.DeepEqual(newlyReady, []string{"B", "C"}) {
		t.Errorf("expected [B C] newly ready, got %v", newlyReady)
	}
}

func TestMarkCompleteOnlyLastDependencyUnblocks(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "A"},
		{ID: "B"},
		{ID: "C", DependsOn: []string{"A", "B"}},
	})

	if newlyReady := g.MarkComplete("A"); newlyReady != nil {
		t.Errorf("expected no newly ready after first dep, got %v", newlyReady)
	}
	if newlyReady := g.MarkComplete("B"); !reflect.DeepEqual(newlyReady, []string{"C"}) {
		t.Errorf("expected [C] newly ready after last dep, got %v", newlyReady)
	}
}

func TestMarkCompleteIdempotent(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "A"},
		{ID: "B", DependsOn: []string{"A"}},
	})

	first := g.MarkComplete("A")
	second := g.MarkComplete("A")
	if !reflect.DeepEqual(first, []string{"B"}) {
		t.Errorf("expected [B] on first completion, got %v", first)
	}
	if second != nil {
		t.Errorf("expected nil on repeat completion, got %v", second)
	}
}

func TestTransitiveDependents(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "A"},
		{ID: "B", DependsOn: []string{"A"}},
		{ID: "C", DependsOn: []string{"B"}},
		{ID: "D"},
	})

	if got := g.TransitiveDependents("A"); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Errorf("expected [B C], got %v", got)
	}
	if got := g.TransitiveDependents("D"); got != nil {
		t.Errorf("expected no dependents for D, got %v", got)
	}
}

func TestTopologicalSort(t *testing.T) {
	g := buildGraph(t, []*models.Task{
		{ID: "C", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
		{ID: "A"},
	})

	sorted, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := make(map[string]int)
	for i, id := range sorted {
		pos[id] = i
	}
	if pos["A"] > pos["B"] || pos["B"] > pos["C"] {
		t.Errorf("topological order violated: %v", sorted)
	}
}

func TestValidate(t *testing.T) {
	err := Validate([]*models.Task{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B"},
	})
	if err != nil {
		t.Errorf("unexpected error for valid tasks: %v", err)
	}

	err = Validate([]*models.Task{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}
