package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/content-crew/internal/models"
	"github.com/example/content-crew/internal/providers/llm"
	"github.com/example/content-crew/internal/providers/llm/llmtest"
	"github.com/example/content-crew/internal/tools"
)

// echoTool returns its raw arguments, or fails with err when set.
type echoTool struct {
	name  string
	err   error
	calls int
}

func (e *echoTool) Name() string               { return e.name }
func (e *echoTool) Description() string        { return "echoes arguments" }
func (e *echoTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (e *echoTool) Execute(ctx context.Context, arguments string) (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	return "echo:" + arguments, nil
}

func newTask(client llm.Client, ts ...tools.Tool) *models.Task {
	return &models.Task{
		ID:             "research",
		Description:    "Research Go generics",
		ExpectedOutput: "A Markdown report",
		Agent: &models.Agent{
			Role:      "Senior Research Analyst",
			Goal:      "Research Go",
			Backstory: "You know Go.",
			Tools:     ts,
			LLM:       client,
		},
	}
}

func TestBuildMessages(t *testing.T) {
	task := newTask(nil, &echoTool{name: "internet_search"})
	msgs := BuildMessages(task, "CTX-A\n\n----------\n\nCTX-B")
	require.Len(t, msgs, 2)

	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "You are Senior Research Analyst. You know Go.")
	assert.Contains(t, msgs[0].Content, "Your personal goal is: Research Go")
	assert.Contains(t, msgs[0].Content, "- internet_search: echoes arguments")

	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "Current Task: Research Go generics"))
	assert.Contains(t, msgs[1].Content, "expected criteria for your final answer: A Markdown report")
	assert.Contains(t, msgs[1].Content, "This is the context you're working with:\nCTX-A\n\n----------\n\nCTX-B")
}

func TestBuildMessagesWithoutContextOrTools(t *testing.T) {
	msgs := BuildMessages(newTask(nil), "")
	assert.NotContains(t, msgs[0].Content, "tools")
	assert.NotContains(t, msgs[1].Content, "context you're working with")
}

func TestExecuteTextOnly(t *testing.T) {
	client := llmtest.NewFakeClient(llmtest.Text("the report"))
	out, err := (&ToolExecutor{}).Execute(context.Background(), newTask(client), "")
	require.NoError(t, err)
	assert.Equal(t, &models.TaskOutput{TaskID: "research", Agent: "Senior Research Analyst", Raw: "the report"}, out)
	assert.Len(t, client.Calls(), 1)
}

func TestExecuteToolLoop(t *testing.T) {
	search := &echoTool{name: "internet_search"}
	client := llmtest.NewFakeClient(
		llmtest.ToolCalls(llm.ToolCall{ID: "c1", Name: "internet_search", Arguments: `{"search_query":"go"}`}),
		llmtest.Text("report with sources"),
	)

	out, err := (&ToolExecutor{}).Execute(context.Background(), newTask(client, search), "")
	require.NoError(t, err)
	assert.Equal(t, "report with sources", out.Raw)
	assert.Equal(t, 1, out.ToolCalls)
	assert.Equal(t, 1, search.calls)

	calls := client.Calls()
	require.Len(t, calls, 2)
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, "internet_search", calls[0].Tools[0].Name)

	second := calls[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleTool, Content: `echo:{"search_query":"go"}`, ToolCallID: "c1", Name: "internet_search"}, second[3])
}

func TestExecuteUnknownToolIsReportedToModel(t *testing.T) {
	client := llmtest.NewFakeClient(
		llmtest.ToolCalls(llm.ToolCall{ID: "c1", Name: "calculator", Arguments: `{}`}),
		llmtest.Text("done"),
	)
	out, err := (&ToolExecutor{}).Execute(context.Background(), newTask(client, &echoTool{name: "internet_search"}), "")
	require.NoError(t, err)
	assert.Equal(t, "done", out.Raw)

	last := client.Calls()[1].Messages
	assert.Equal(t, `Error: tool "calculator" does not exist. Available tools: internet_search`, last[len(last)-1].Content)
}

func TestExecuteArgumentErrorIsReportedToModel(t *testing.T) {
	bad := &echoTool{name: "internet_search", err: &tools.ArgumentError{Tool: "internet_search", Err: errors.New("empty")}}
	client := llmtest.NewFakeClient(
		llmtest.ToolCalls(llm.ToolCall{ID: "c1", Name: "internet_search", Arguments: `{}`}),
		llmtest.Text("recovered"),
	)
	out, err := (&ToolExecutor{}).Execute(context.Background(), newTask(client, bad), "")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out.Raw)
	last := client.Calls()[1].Messages
	assert.Equal(t, "Error: invalid arguments for internet_search: empty", last[len(last)-1].Content)
}

func TestExecuteToolFailureAborts(t *testing.T) {
	boom := errors.New("search unavailable")
	client := llmtest.NewFakeClient(
		llmtest.ToolCalls(llm.ToolCall{ID: "c1", Name: "internet_search", Arguments: `{}`}),
		llmtest.Text("never"),
	)
	_, err := (&ToolExecutor{}).Execute(context.Background(), newTask(client, &echoTool{name: "internet_search", err: boom}), "")
	require.ErrorIs(t, err, boom)
	assert.Len(t, client.Calls(), 1)
}

func TestExecuteModelFailureAborts(t *testing.T) {
	boom := errors.New("rate limited")
	client := llmtest.NewFakeClient(llmtest.Fail(boom))
	_, err := (&ToolExecutor{}).Execute(context.Background(), newTask(client), "")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "Senior Research Analyst")
}

func TestExecuteIterationCapForcesFinalAnswer(t *testing.T) {
	search := &echoTool{name: "internet_search"}
	call := llm.ToolCall{ID: "c", Name: "internet_search", Arguments: `{}`}
	client := &llmtest.FakeClient{Respond: func(messages []llm.Message, specs []llm.ToolSpec) (*llm.Reply, error) {
		if len(specs) == 0 {
			return &llm.Reply{Content: "forced answer"}, nil
		}
		return &llm.Reply{ToolCalls: []llm.ToolCall{call}}, nil
	}}

	out, err := (&ToolExecutor{MaxIterations: 3}).Execute(context.Background(), newTask(client, search), "")
	require.NoError(t, err)
	assert.Equal(t, "forced answer", out.Raw)
	assert.Equal(t, 3, search.calls)

	calls := client.Calls()
	require.Len(t, calls, 4)
	final := calls[3]
	assert.Empty(t, final.Tools)
	assert.Equal(t, finalAnswerNudge, final.Messages[len(final.Messages)-1].Content)
}

func TestExecuteRequiresModel(t *testing.T) {
	_, err := (&ToolExecutor{}).Execute(context.Background(), &models.Task{ID: "x", Agent: &models.Agent{}}, "")
	assert.EqualError(t, err, "task x: no agent model")
}

func TestExecuteUnreachablePageIsReportedToModel(t *testing.T) {
	client := llmtest.NewFakeClient(
		llmtest.ToolCalls(llm.ToolCall{ID: "c1", Name: "fetch_page", Arguments: `{"url":"http://127.0.0.1:1/dead"}`}),
		llmtest.Text("report from other sources"),
	)
	out, err := (&ToolExecutor{}).Execute(context.Background(), newTask(client, tools.NewFetchPageTool()), "")
	require.NoError(t, err)
	assert.Equal(t, "report from other sources", out.Raw)

	calls := client.Calls()
	require.Len(t, calls, 2)
	last := calls[1].Messages[len(calls[1].Messages)-1]
	assert.Equal(t, "c1", last.ToolCallID)
	assert.True(t, strings.HasPrefix(last.Content, "Could not read http://127.0.0.1:1/dead: "), last.Content)
}

func TestExecuteNilReplyFails(t *testing.T) {
	client := llmtest.NewFakeClient(llmtest.Step{})
	_, err := (&ToolExecutor{}).Execute(context.Background(), newTask(client), "")
	require.ErrorIs(t, err, errEmptyReply)
	assert.Contains(t, err.Error(), "Senior Research Analyst")
}

func TestExecuteEmptyForcedAnswerFails(t *testing.T) {
	call := llm.ToolCall{ID: "c", Name: "internet_search", Arguments: `{}`}
	client := &llmtest.FakeClient{Respond: func(_ []llm.Message, _ []llm.ToolSpec) (*llm.Reply, error) {
		return &llm.Reply{ToolCalls: []llm.ToolCall{call}}, nil
	}}

	out, err := (&ToolExecutor{MaxIterations: 2}).Execute(context.Background(), newTask(client, &echoTool{name: "internet_search"}), "")
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "no final answer after 2 tool rounds")
	assert.Len(t, client.Calls(), 3)
}
