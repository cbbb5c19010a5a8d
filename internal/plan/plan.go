// Package plan handles plan submission: parsing the YAML plan format,
// validating it, and compiling it into the immutable snapshot a board
// accepts. A plan may nest sub-plans on tasks assigned to sub-teams.
package plan

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/crewboard/internal/graph"
	"github.com/ShayCichocki/crewboard/pkg/models"
)

// TaskSpec describes one task in a submitted plan.
type TaskSpec struct {
	// ID is the task identifier, unique within the plan.
	ID string `yaml:"id"`
	// Title is the short description of the task.
	Title string `yaml:"title,omitempty"`
	// Description is the work payload handed to the party.
	Description string `yaml:"description,omitempty"`
	// Assignee names the target party: a worker or a sub-team.
	Assignee string `yaml:"assignee,omitempty"`
	// DependsOn lists task IDs that must complete first.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// Plan is the sub-plan forwarded into the sub-team's board when
	// Assignee names a sub-team.
	Plan *PlanSpec `yaml:"plan,omitempty"`
}

// PlanSpec is the YAML submission format for a plan.
type PlanSpec struct {
	// Name identifies the plan in logs and the archive.
	Name string `yaml:"name"`
	// Tasks lists the plan's tasks. Order is significant: it is the
	// delivery tie-break order for simultaneously runnable tasks.
	Tasks []TaskSpec `yaml:"tasks"`
}

// Plan is the compiled, validated, immutable form a board accepts.
type Plan struct {
	// Name identifies the plan.
	Name string
	// Tasks holds the plan's tasks in submission order.
	Tasks []*models.Task
	// SubPlans maps a task ID to the compiled sub-plan forwarded to a
	// sub-team when that task is assigned to one.
	SubPlans map[string]*Plan
}

// Parse decodes a PlanSpec from YAML. Unknown fields are rejected.
func Parse(data []byte) (*PlanSpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec PlanSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &spec, nil
}

// Load reads and parses a plan file.
func Load(path string) (*PlanSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	spec, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Compile validates the spec and builds the immutable Plan, recursively
// compiling nested sub-plans. Validation covers: plan and task identifiers
// present, at least one task, unique IDs, no self or unknown dependencies,
// acyclic edges, and sub-plans only on tasks that declare an assignee.
func (s *PlanSpec) Compile() (*Plan, error) {
	if s == nil {
		return nil, fmt.Errorf("nil plan spec")
	}
	if len(s.Tasks) == 0 {
		return nil, fmt.Errorf("plan %q has no tasks", s.Name)
	}

	p := &Plan{Name: s.Name}
	for _, ts := range s.Tasks {
		if ts.ID == "" {
			return nil, fmt.Errorf("plan %q: task without id", s.Name)
		}
		title := ts.Title
		if title == "" {
			title = ts.ID
		}
		p.Tasks = append(p.Tasks, &models.Task{
			ID:          ts.ID,
			Title:       title,
			Description: ts.Description,
			Assignee:    ts.Assignee,
			DependsOn:   append([]string(nil), ts.DependsOn...),
		})

		if ts.Plan != nil {
			if ts.Assignee == "" {
				return nil, fmt.Errorf("plan %q: task %s nests a sub-plan but has no assignee", s.Name, ts.ID)
			}
			sub, err := ts.Plan.Compile()
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", ts.ID, err)
			}
			if p.SubPlans == nil {
				p.SubPlans = make(map[string]*Plan)
			}
			p.SubPlans[ts.ID] = sub
		}
	}

	if err := graph.Validate(p.Tasks); err != nil {
		return nil, fmt.Errorf("plan %q: %w", s.Name, err)
	}
	return p, nil
}

// SubPlan returns the compiled sub-plan nested on a task, or nil.
func (p *Plan) SubPlan(taskID string) *Plan {
	if p == nil || p.SubPlans == nil {
		return nil
	}
	return p.SubPlans[taskID]
}

// Assignees returns the distinct assignee names declared in the plan, in
// first-appearance order. Team construction validates these resolve to
// actual parties before the plan is published.
func (p *Plan) Assignees() []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range p.Tasks {
		if t.Assignee == "" || seen[t.Assignee] {
			continue
		}
		seen[t.Assignee] = true
		names = append(names, t.Assignee)
	}
	return names
}
