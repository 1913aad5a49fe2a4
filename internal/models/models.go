package models

import (
	"time"

	"github.com/example/content-crew/internal/providers/llm"
	"github.com/example/content-crew/internal/tools"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Agent is a persona that performs tasks through its model handle.
// Descriptors are built per request and never mutated afterwards.
type Agent struct {
	Name      string       `json:"name"`
	Role      string       `json:"role"`
	Goal      string       `json:"goal"`
	Backstory string       `json:"backstory"`
	Tools     []tools.Tool `json:"-"`
	LLM       llm.Client   `json:"-"`
}

// ToolNames lists the agent's tools in declaration order.
func (a *Agent) ToolNames() []string {
	names := make([]string, 0, len(a.Tools))
	for _, t := range a.Tools {
		names = append(names, t.Name())
	}
	return names
}

// Task is one unit of work bound to an agent. Context lists earlier tasks whose
// outputs are handed to this one.
type Task struct {
	ID             string  `json:"id"`
	Description    string  `json:"description"`
	ExpectedOutput string  `json:"expected_output"`
	Agent          *Agent  `json:"agent"`
	Context        []*Task `json:"-"`
	Status         Status  `json:"status"`
}

// ContextIDs returns the IDs of the declared context tasks.
func (t *Task) ContextIDs() []string {
	ids := make([]string, 0, len(t.Context))
	for _, c := range t.Context {
		ids = append(ids, c.ID)
	}
	return ids
}

type TaskOutput struct {
	TaskID    string `json:"task_id"`
	Agent     string `json:"agent"`
	Raw       string `json:"raw"`
	ToolCalls int    `json:"tool_calls"`
}

// Run is one execution of an ordered task list. It lives only for the request.
type Run struct {
	ID        string        `json:"id"`
	Tasks     []*Task       `json:"tasks"`
	Outputs   []*TaskOutput `json:"outputs,omitempty"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func NewRun(id string, tasks []*Task) *Run {
	now := time.Now()
	return &Run{ID: id, Tasks: tasks, Status: StatusPending, CreatedAt: now, UpdatedAt: now}
}
