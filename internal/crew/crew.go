// Package crew turns a declarative agent/task document into the task list a
// pipeline runs for one request.
package crew

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/example/content-crew/internal/models"
	"github.com/example/content-crew/internal/providers/llm"
	"github.com/example/content-crew/internal/tools"
)

//go:embed crew.yaml
var defaultDefinition []byte

var (
	// ErrInvalidInput marks request inputs that cannot start a run.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDefinition marks a broken crew document or one that does not fit the
	// running service (unknown tools, bad templates).
	ErrDefinition = errors.New("crew definition")
)

type AgentDef struct {
	Role      string   `yaml:"role"`
	Goal      string   `yaml:"goal"`
	Backstory string   `yaml:"backstory"`
	Tools     []string `yaml:"tools"`
}

type TaskDef struct {
	ID             string   `yaml:"id"`
	Agent          string   `yaml:"agent"`
	Description    string   `yaml:"description"`
	ExpectedOutput string   `yaml:"expected_output"`
	Context        []string `yaml:"context"`
	// Optional tasks run only when the edit stage is enabled.
	Optional bool `yaml:"optional"`
}

type Definition struct {
	Agents map[string]AgentDef `yaml:"agents"`
	Tasks  []TaskDef           `yaml:"tasks"`
}

// Inputs are the request fields templates may reference.
type Inputs struct {
	Topic        string
	Year         string
	OutputFormat string
}

func (in Inputs) Validate() error {
	var missing []string
	if strings.TrimSpace(in.Topic) == "" {
		missing = append(missing, "topic")
	}
	if strings.TrimSpace(in.Year) == "" {
		missing = append(missing, "year")
	}
	if strings.TrimSpace(in.OutputFormat) == "" {
		missing = append(missing, "output_format")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

type Options struct {
	EditStage bool
}

// Default returns the built-in research/write/edit crew.
func Default() (*Definition, error) {
	return Parse(defaultDefinition)
}

// Load reads a crew document from path, or the built-in one when path is empty.
func Load(path string) (*Definition, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDefinition, err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDefinition, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the document's structure: unique task ids, known agents and
// context that refers only to earlier tasks.
func (d *Definition) Validate() error {
	if len(d.Tasks) == 0 {
		return fmt.Errorf("%w: no tasks", ErrDefinition)
	}
	seen := map[string]bool{}
	for i, t := range d.Tasks {
		if t.ID == "" {
			return fmt.Errorf("%w: task %d has no id", ErrDefinition, i)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: duplicate task %s", ErrDefinition, t.ID)
		}
		a, ok := d.Agents[t.Agent]
		if !ok {
			return fmt.Errorf("%w: task %s: unknown agent %q", ErrDefinition, t.ID, t.Agent)
		}
		if a.Role == "" {
			return fmt.Errorf("%w: agent %s has no role", ErrDefinition, t.Agent)
		}
		for _, dep := range t.Context {
			if !seen[dep] {
				return fmt.Errorf("%w: task %s: context %q must be an earlier task", ErrDefinition, t.ID, dep)
			}
		}
		seen[t.ID] = true
	}
	return nil
}

// Build renders the definition for one request. Every call returns fresh
// agents and tasks; nothing is shared between requests except tools and the
// model client.
func Build(def *Definition, in Inputs, reg *tools.Registry, client llm.Client, opts Options) ([]*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	agents := map[string]*models.Agent{}
	agent := func(name string) (*models.Agent, error) {
		if a, ok := agents[name]; ok {
			return a, nil
		}
		ad := def.Agents[name]
		ts, err := reg.Resolve(ad.Tools)
		if err != nil {
			return nil, fmt.Errorf("%w: agent %s: %v", ErrDefinition, name, err)
		}
		a := &models.Agent{Name: name, Tools: ts, LLM: client}
		for _, f := range []struct {
			dst *string
			src string
		}{{&a.Role, ad.Role}, {&a.Goal, ad.Goal}, {&a.Backstory, ad.Backstory}} {
			if *f.dst, err = render(f.src, in); err != nil {
				return nil, fmt.Errorf("%w: agent %s: %v", ErrDefinition, name, err)
			}
		}
		agents[name] = a
		return a, nil
	}

	byID := map[string]*models.Task{}
	var out []*models.Task
	for _, td := range def.Tasks {
		if td.Optional && !opts.EditStage {
			continue
		}
		a, err := agent(td.Agent)
		if err != nil {
			return nil, err
		}
		t := &models.Task{ID: td.ID, Agent: a, Status: models.StatusPending}
		if t.Description, err = render(td.Description, in); err != nil {
			return nil, fmt.Errorf("%w: task %s: %v", ErrDefinition, td.ID, err)
		}
		if t.ExpectedOutput, err = render(td.ExpectedOutput, in); err != nil {
			return nil, fmt.Errorf("%w: task %s: %v", ErrDefinition, td.ID, err)
		}
		for _, dep := range td.Context {
			d, ok := byID[dep]
			if !ok {
				return nil, fmt.Errorf("%w: task %s depends on %s, which is not part of this run", ErrDefinition, td.ID, dep)
			}
			t.Context = append(t.Context, d)
		}
		byID[td.ID] = t
		out = append(out, t)
	}
	return out, nil
}

func render(text string, in Inputs) (string, error) {
	tmpl, err := template.New("").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, in); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
