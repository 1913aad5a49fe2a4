package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/content-crew/internal/agents"
	"github.com/example/content-crew/internal/models"
)

// ContextDivider separates the outputs of several context tasks.
const ContextDivider = "\n\n----------\n\n"

const defaultPreviewBytes = 2000

// TaskError identifies the task that stopped a run.
type TaskError struct {
	TaskID string
	Agent  string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (%s): %v", e.TaskID, e.Agent, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Pipeline executes a run's tasks one after another, feeding each task the
// outputs of the tasks it declares as context.
type Pipeline struct {
	Executor agents.Executor
	Observer Observer
	Logger   *slog.Logger

	// PreviewMaxBytes caps the output carried in task_output events.
	PreviewMaxBytes int
}

func New(executor agents.Executor, observer Observer, logger *slog.Logger) *Pipeline {
	return &Pipeline{Executor: executor, Observer: observer, Logger: logger}
}

// Run executes every task in order and returns the last task's output. The
// first failure stops the run; later tasks never execute.
func (p *Pipeline) Run(ctx context.Context, run *models.Run) (*models.TaskOutput, error) {
	if err := Validate(run.Tasks); err != nil {
		p.finish(run, err)
		return nil, err
	}

	p.setRunStatus(run, models.StatusRunning, nil)
	outputs := make(map[string]*models.TaskOutput, len(run.Tasks))
	var last *models.TaskOutput
	for _, task := range run.Tasks {
		if err := ctx.Err(); err != nil {
			p.finish(run, err)
			return nil, err
		}
		p.setTaskStatus(run, task, models.StatusRunning, nil)
		started := time.Now()

		out, err := p.Executor.Execute(ctx, task, contextFor(task, outputs))
		if err == nil && out == nil {
			err = errors.New("no output")
		}
		if err != nil {
			terr := &TaskError{TaskID: task.ID, Agent: task.Agent.Role, Err: err}
			p.setTaskStatus(run, task, models.StatusFailed, terr)
			p.finish(run, terr)
			return nil, terr
		}

		outputs[task.ID] = out
		run.Outputs = append(run.Outputs, out)
		last = out
		p.setTaskStatus(run, task, models.StatusSuccess, nil)
		p.publish(run, EventTaskOutput, p.previewOutput(out))
		p.logger().Info("task finished", "run", run.ID, "task", task.ID,
			"agent", task.Agent.Role, "tool_calls", out.ToolCalls, "duration", time.Since(started))
	}

	p.finish(run, nil)
	return last, nil
}

// Validate checks that every task has an agent and that context tasks come
// earlier in the list.
func Validate(tasks []*models.Task) error {
	if len(tasks) == 0 {
		return errors.New("no tasks to run")
	}
	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		if t == nil {
			return fmt.Errorf("task %d is nil", i)
		}
		if t.Agent == nil {
			return fmt.Errorf("task %s has no agent", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id %s", t.ID)
		}
		for _, dep := range t.Context {
			if dep == nil || !seen[dep.ID] {
				id := "<nil>"
				if dep != nil {
					id = dep.ID
				}
				return fmt.Errorf("task %s depends on %s, which does not run before it", t.ID, id)
			}
		}
		seen[t.ID] = true
	}
	return nil
}

// contextFor joins the outputs of a task's context tasks in declaration order.
func contextFor(task *models.Task, outputs map[string]*models.TaskOutput) string {
	if len(task.Context) == 0 {
		return ""
	}
	parts := make([]string, 0, len(task.Context))
	for _, dep := range task.Context {
		if out := outputs[dep.ID]; out != nil {
			parts = append(parts, out.Raw)
		}
	}
	return strings.Join(parts, ContextDivider)
}

func (p *Pipeline) finish(run *models.Run, err error) {
	if err != nil {
		run.Error = err.Error()
		p.setRunStatus(run, models.StatusFailed, err)
		return
	}
	p.setRunStatus(run, models.StatusSuccess, nil)
}

func (p *Pipeline) setRunStatus(run *models.Run, status models.Status, err error) {
	run.Status = status
	run.UpdatedAt = time.Now()
	payload := map[string]any{"status": status}
	if err != nil {
		payload["error"] = err.Error()
	}
	p.publish(run, EventRunStatus, payload)
}

func (p *Pipeline) setTaskStatus(run *models.Run, task *models.Task, status models.Status, err error) {
	task.Status = status
	run.UpdatedAt = time.Now()
	payload := map[string]any{"task_id": task.ID, "agent": task.Agent.Role, "status": status}
	if err != nil {
		payload["error"] = err.Error()
	}
	p.publish(run, EventTaskStatus, payload)
}

func (p *Pipeline) publish(run *models.Run, name string, payload any) {
	if p.Observer == nil {
		return
	}
	p.Observer.Notify(Event{Event: name, RunID: run.ID, Payload: payload})
}

func (p *Pipeline) previewOutput(out *models.TaskOutput) map[string]any {
	limit := p.PreviewMaxBytes
	if limit <= 0 {
		limit = defaultPreviewBytes
	}
	preview := out.Raw
	res := map[string]any{
		"task_id":     out.TaskID,
		"agent":       out.Agent,
		"tool_calls":  out.ToolCalls,
		"bytes_total": len(out.Raw),
	}
	if len(preview) > limit {
		preview = preview[:limit]
		res["preview_truncated"] = true
	}
	res["output"] = preview
	return res
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
