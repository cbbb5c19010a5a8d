package team

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/crewboard/pkg/models"
)

// WorkerSpec describes one worker in a team definition.
type WorkerSpec struct {
	// Name is the worker's party name, unique within the team.
	Name string `yaml:"name"`
	// Type selects the worker adapter: command, claude, or inbox.
	Type string `yaml:"type"`
	// Command is the shell command template for command workers.
	Command string `yaml:"command,omitempty"`
	// Model overrides the configured model for claude workers.
	Model string `yaml:"model,omitempty"`
	// InboxDir overrides the configured inbox directory for inbox workers.
	InboxDir string `yaml:"inbox_dir,omitempty"`
}

// Spec is the YAML definition of a team hierarchy.
type Spec struct {
	// Name identifies the team and is how parent plans address it.
	Name string `yaml:"name"`
	// Coordinator names the team's coordinator.
	Coordinator string `yaml:"coordinator"`
	// Mode selects the driving protocol. Defaults to events.
	Mode models.Mode `yaml:"mode,omitempty"`
	// Workers lists the team's workers in order.
	Workers []WorkerSpec `yaml:"workers,omitempty"`
	// Teams lists nested sub-teams in order.
	Teams []Spec `yaml:"teams,omitempty"`
}

// ParseSpec decodes a team Spec from YAML. Unknown fields are rejected.
func ParseSpec(data []byte) (*Spec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parse team spec: %w", err)
	}
	return &spec, nil
}

// LoadSpec reads and parses a team definition file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read team file: %w", err)
	}
	spec, err := ParseSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Validate checks the spec and its nested teams: names present, coordinator
// distinct from every worker, party names unique within the team, and at
// least one party to hand tasks to. The nested structure is a tree by
// construction, so no ancestor cycle check is needed.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("team without name")
	}
	if s.Coordinator == "" {
		return fmt.Errorf("team %s: no coordinator", s.Name)
	}
	if s.Mode == "" {
		s.Mode = models.ModeEvents
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("team %s: invalid mode %q", s.Name, s.Mode)
	}
	if len(s.Workers) == 0 && len(s.Teams) == 0 {
		return fmt.Errorf("team %s: no workers or sub-teams", s.Name)
	}

	names := make(map[string]bool)
	for _, w := range s.Workers {
		if w.Name == "" {
			return fmt.Errorf("team %s: worker without name", s.Name)
		}
		if w.Name == s.Coordinator {
			return fmt.Errorf("team %s: coordinator %q is also a worker", s.Name, w.Name)
		}
		if names[w.Name] {
			return fmt.Errorf("team %s: duplicate party name %q", s.Name, w.Name)
		}
		names[w.Name] = true
	}
	for i := range s.Teams {
		child := &s.Teams[i]
		if err := child.Validate(); err != nil {
			return err
		}
		if names[child.Name] {
			return fmt.Errorf("team %s: duplicate party name %q", s.Name, child.Name)
		}
		names[child.Name] = true
	}
	return nil
}
