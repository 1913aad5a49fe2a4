package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/example/content-crew/internal/models"
	"github.com/example/content-crew/internal/providers/llm"
	"github.com/example/content-crew/internal/tools"
)

// DefaultMaxIterations bounds tool rounds when ToolExecutor.MaxIterations is unset.
const DefaultMaxIterations = 20

type Executor interface {
	Execute(ctx context.Context, task *models.Task, taskContext string) (*models.TaskOutput, error)
}

// ToolExecutor runs a task on its agent's model, serving tool calls from the
// agent's own tool set until the model answers in text.
type ToolExecutor struct {
	MaxIterations int
	Logger        *slog.Logger
}

func (e *ToolExecutor) Execute(ctx context.Context, task *models.Task, taskContext string) (*models.TaskOutput, error) {
	agent := task.Agent
	if agent == nil || agent.LLM == nil {
		return nil, fmt.Errorf("task %s: no agent model", task.ID)
	}
	logger := e.logger().With("task", task.ID, "agent", agent.Role)

	available := make(map[string]tools.Tool, len(agent.Tools))
	for _, t := range agent.Tools {
		available[t.Name()] = t
	}
	specs := tools.Specs(agent.Tools)
	messages := BuildMessages(task, taskContext)
	out := &models.TaskOutput{TaskID: task.ID, Agent: agent.Role}

	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	for round := 0; round < maxIter; round++ {
		reply, err := agent.LLM.Chat(ctx, messages, specs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", agent.Role, err)
		}
		if reply == nil {
			return nil, fmt.Errorf("%s: %w", agent.Role, errEmptyReply)
		}
		if len(reply.ToolCalls) == 0 {
			out.Raw = reply.Content
			return out, nil
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: reply.Content, ToolCalls: reply.ToolCalls})
		for _, call := range reply.ToolCalls {
			logger.Debug("tool call", "tool", call.Name, "arguments", call.Arguments)
			result, err := callTool(ctx, available, call)
			if err != nil {
				return nil, fmt.Errorf("%s: tool %s: %w", agent.Role, call.Name, err)
			}
			out.ToolCalls++
			messages = append(messages, llm.ToolResult(call, result))
		}
	}

	logger.Warn("tool iteration limit reached, forcing final answer", "limit", maxIter)
	messages = append(messages, llm.User(finalAnswerNudge))
	reply, err := agent.LLM.Chat(ctx, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", agent.Role, err)
	}
	if reply == nil {
		return nil, fmt.Errorf("%s: %w", agent.Role, errEmptyReply)
	}
	if strings.TrimSpace(reply.Content) == "" {
		return nil, fmt.Errorf("%s: no final answer after %d tool rounds", agent.Role, maxIter)
	}
	out.Raw = reply.Content
	return out, nil
}

var errEmptyReply = errors.New("empty reply")

// callTool runs one call. Mistakes the model can fix (unknown tool, bad
// arguments) come back as tool output; anything else is an error.
func callTool(ctx context.Context, available map[string]tools.Tool, call llm.ToolCall) (string, error) {
	t, ok := available[call.Name]
	if !ok {
		names := make([]string, 0, len(available))
		for name := range available {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			names = []string{"none"}
		}
		return fmt.Sprintf("Error: tool %q does not exist. Available tools: %s", call.Name, strings.Join(names, ", ")), nil
	}
	result, err := t.Execute(ctx, call.Arguments)
	var argErr *tools.ArgumentError
	if errors.As(err, &argErr) {
		return "Error: " + argErr.Error(), nil
	}
	return result, err
}

func (e *ToolExecutor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
