package plan

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ShayCichocki/crewboard/internal/graph"
)

const validYAML = `
name: release
tasks:
  - id: build
    title: Build artifacts
    assignee: builder
  - id: test
    description: run the suite
    assignee: builder
    depends_on: [build]
  - id: ship
    assignee: ops
    depends_on: [build, test]
`

func TestParseAndCompile(t *testing.T) {
	spec, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if spec.Name != "release" || len(spec.Tasks) != 3 {
		t.Fatalf("unexpected spec: %+v", spec)
	}

	p, err := spec.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(p.Tasks))
	}

	// Title falls back to the ID when omitted.
	if p.Tasks[1].Title != "test" {
		t.Errorf("title fallback = %q, want %q", p.Tasks[1].Title, "test")
	}
	if !reflect.DeepEqual(p.Tasks[2].DependsOn, []string{"build", "test"}) {
		t.Errorf("unexpected deps: %v", p.Tasks[2].DependsOn)
	}
	if got := p.Assignees(); !reflect.DeepEqual(got, []string{"builder", "ops"}) {
		t.Errorf("assignees = %v", got)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("name: x\nbogus: true\ntasks: [{id: a}]\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestCompileRejectsCycle(t *testing.T) {
	spec := &PlanSpec{Name: "bad", Tasks: []TaskSpec{
		{ID: "A", DependsOn: []string{"B"}},
		{ID: "B", DependsOn: []string{"A"}},
	}}
	_, err := spec.Compile()
	if !errors.Is(err, graph.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestCompileRejectsDuplicate(t *testing.T) {
	spec := &PlanSpec{Name: "bad", Tasks: []TaskSpec{
		{ID: "A"},
		{ID: "A"},
	}}
	_, err := spec.Compile()
	if !errors.Is(err, graph.ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}
}

func TestCompileRejectsEmptyAndMissingID(t *testing.T) {
	if _, err := (&PlanSpec{Name: "empty"}).Compile(); err == nil {
		t.Error("expected error for plan without tasks")
	}
	if _, err := (&PlanSpec{Name: "noid", Tasks: []TaskSpec{{Title: "x"}}}).Compile(); err == nil {
		t.Error("expected error for task without id")
	}
}

func TestCompileSubPlans(t *testing.T) {
	spec := &PlanSpec{Name: "parent", Tasks: []TaskSpec{
		{ID: "prep", Assignee: "worker"},
		{ID: "delegated", Assignee: "subteam", DependsOn: []string{"prep"}, Plan: &PlanSpec{
			Name: "child",
			Tasks: []TaskSpec{
				{ID: "c1", Assignee: "w"},
				{ID: "c2", Assignee: "w", DependsOn: []string{"c1"}},
			},
		}},
	}}

	p, err := spec.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sub := p.SubPlan("delegated")
	if sub == nil {
		t.Fatal("expected sub-plan on delegated task")
	}
	if sub.Name != "child" || len(sub.Tasks) != 2 {
		t.Errorf("unexpected sub-plan: %+v", sub)
	}
	if p.SubPlan("prep") != nil {
		t.Error("unexpected sub-plan on leaf task")
	}
}

func TestCompileSubPlanNeedsAssignee(t *testing.T) {
	spec := &PlanSpec{Name: "parent", Tasks: []TaskSpec{
		{ID: "delegated", Plan: &PlanSpec{Name: "child", Tasks: []TaskSpec{{ID: "c1"}}}},
	}}
	if _, err := spec.Compile(); err == nil {
		t.Fatal("expected error for sub-plan without assignee")
	}
}

func TestCompileRejectsInvalidSubPlan(t *testing.T) {
	spec := &PlanSpec{Name: "parent", Tasks: []TaskSpec{
		{ID: "delegated", Assignee: "subteam", Plan: &PlanSpec{
			Name: "child",
			Tasks: []TaskSpec{
				{ID: "c1", DependsOn: []string{"c2"}},
				{ID: "c2", DependsOn: []string{"c1"}},
			},
		}},
	}}
	if _, err := spec.Compile(); !errors.Is(err, graph.ErrCycleDetected) {
		t.Fatalf("expected nested ErrCycleDetected, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0644); err != nil {
		t.Fatal(err)
	}

	spec, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if spec.Name != "release" {
		t.Errorf("name = %q", spec.Name)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
