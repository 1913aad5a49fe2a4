package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/content-crew/internal/agents"
	"github.com/example/content-crew/internal/models"
	"github.com/example/content-crew/internal/providers/llm"
	"github.com/example/content-crew/internal/providers/llm/llmtest"
	"github.com/example/content-crew/internal/tools"
)

// recordingExecutor answers "out:<id>" and remembers what it was given.
type recordingExecutor struct {
	mu       sync.Mutex
	order    []string
	contexts map[string]string
	failOn   string
}

func (r *recordingExecutor) Execute(ctx context.Context, task *models.Task, taskContext string) (*models.TaskOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, task.ID)
	if r.contexts == nil {
		r.contexts = map[string]string{}
	}
	r.contexts[task.ID] = taskContext
	if task.ID == r.failOn {
		return nil, errors.New("model unavailable")
	}
	return &models.TaskOutput{TaskID: task.ID, Agent: task.Agent.Role, Raw: "out:" + task.ID}, nil
}

func task(id string, deps ...*models.Task) *models.Task {
	return &models.Task{
		ID:             id,
		Description:    "Do " + id,
		ExpectedOutput: "Result of " + id,
		Agent:          &models.Agent{Role: id + "er", Goal: "g", Backstory: "b"},
		Context:        deps,
		Status:         models.StatusPending,
	}
}

func TestRunExecutesInDeclarationOrder(t *testing.T) {
	a, b, c := task("a"), task("b"), task("c")
	exec := &recordingExecutor{}
	run := models.NewRun("r1", []*models.Task{a, b, c})

	out, err := New(exec, nil, nil).Run(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, exec.order)
	assert.Equal(t, "out:c", out.Raw)
	assert.Equal(t, models.StatusSuccess, run.Status)
	require.Len(t, run.Outputs, 3)
	for _, tk := range run.Tasks {
		assert.Equal(t, models.StatusSuccess, tk.Status)
	}
}

func TestRunWithoutDependenciesPassesNoContext(t *testing.T) {
	exec := &recordingExecutor{}
	run := models.NewRun("r1", []*models.Task{task("a"), task("b")})

	_, err := New(exec, nil, nil).Run(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, exec.order)
	assert.Empty(t, exec.contexts["a"])
	assert.Empty(t, exec.contexts["b"])
}

func TestRunContextIsDeclaredOutputsInDeclaredOrder(t *testing.T) {
	a, b, c := task("a"), task("b"), task("c")
	d := task("d", c, a)
	exec := &recordingExecutor{}

	_, err := New(exec, nil, nil).Run(context.Background(), models.NewRun("r1", []*models.Task{a, b, c, d}))
	require.NoError(t, err)
	assert.Equal(t, "out:c"+ContextDivider+"out:a", exec.contexts["d"])
	assert.NotContains(t, exec.contexts["d"], "out:b")
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	a, b, c := task("a"), task("b"), task("c")
	exec := &recordingExecutor{failOn: "b"}
	var events []Event
	obs := ObserverFunc(func(ev Event) { events = append(events, ev) })
	run := models.NewRun("r1", []*models.Task{a, b, c})

	out, err := New(exec, obs, nil).Run(context.Background(), run)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, []string{"a", "b"}, exec.order)

	var terr *TaskError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "b", terr.TaskID)
	assert.Equal(t, "ber", terr.Agent)

	assert.Equal(t, models.StatusFailed, run.Status)
	assert.Equal(t, models.StatusFailed, b.Status)
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Contains(t, run.Error, "model unavailable")

	last := events[len(events)-1]
	assert.Equal(t, EventRunStatus, last.Event)
	assert.Equal(t, models.StatusFailed, last.Payload.(map[string]any)["status"])
}

func TestRunRejectsInvalidTaskLists(t *testing.T) {
	a := task("a")
	later := task("later")
	noAgent := &models.Task{ID: "x"}

	cases := map[string][]*models.Task{
		"empty":           nil,
		"missing agent":   {noAgent},
		"forward context": {task("b", later), later},
		"duplicate id":    {a, task("a")},
		"context not run": {task("b", a)},
	}
	for name, tasks := range cases {
		t.Run(name, func(t *testing.T) {
			exec := &recordingExecutor{}
			run := models.NewRun("r", tasks)
			_, err := New(exec, nil, nil).Run(context.Background(), run)
			require.Error(t, err)
			assert.Empty(t, exec.order)
			assert.Equal(t, models.StatusFailed, run.Status)
		})
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec := &recordingExecutor{}
	_, err := New(exec, nil, nil).Run(ctx, models.NewRun("r", []*models.Task{task("a")}))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, exec.order)
}

func TestRunPublishesProgress(t *testing.T) {
	var names []string
	obs := ObserverFunc(func(ev Event) {
		assert.Equal(t, "r1", ev.RunID)
		names = append(names, ev.Event)
	})
	_, err := New(&recordingExecutor{}, obs, nil).Run(context.Background(), models.NewRun("r1", []*models.Task{task("a")}))
	require.NoError(t, err)
	assert.Equal(t, []string{EventRunStatus, EventTaskStatus, EventTaskStatus, EventTaskOutput, EventRunStatus}, names)
}

func TestPreviewIsTruncated(t *testing.T) {
	p := &Pipeline{PreviewMaxBytes: 4}
	preview := p.previewOutput(&models.TaskOutput{TaskID: "a", Raw: "abcdefgh"})
	assert.Equal(t, "abcd", preview["output"])
	assert.Equal(t, true, preview["preview_truncated"])
	assert.Equal(t, 8, preview["bytes_total"])
}

// cannedModel returns a fixed answer per task, keyed by the task description.
func cannedModel() *llmtest.FakeClient {
	return &llmtest.FakeClient{Respond: func(messages []llm.Message, specs []llm.ToolSpec) (*llm.Reply, error) {
		prompt := messages[1].Content
		var found []string
		for _, m := range messages {
			if m.Role == llm.RoleTool {
				found = append(found, m.Content)
			}
		}
		switch {
		case strings.HasPrefix(prompt, "Current Task: Research X") && len(specs) > 0 && len(found) == 0:
			return &llm.Reply{ToolCalls: []llm.ToolCall{{ID: "s1", Name: specs[0].Name, Arguments: `{"search_query":"X"}`}}}, nil
		case strings.HasPrefix(prompt, "Current Task: Research X") && len(found) > 0:
			return &llm.Reply{Content: "RESEARCH-NOTES on X\n" + strings.Join(found, "\n")}, nil
		case strings.HasPrefix(prompt, "Current Task: Research X"):
			return &llm.Reply{Content: "RESEARCH-NOTES on X"}, nil
		case strings.HasPrefix(prompt, "Current Task: Write"):
			return &llm.Reply{Content: "DRAFT-ARTICLE"}, nil
		case strings.HasPrefix(prompt, "Current Task: Edit"):
			return &llm.Reply{Content: "EDITED-ARTICLE"}, nil
		}
		return nil, errors.New("unexpected prompt")
	}}
}

func crewTasks(client llm.Client, withEdit bool) []*models.Task {
	agent := func(role string) *models.Agent {
		return &models.Agent{Role: role, Goal: "goal", Backstory: "story", LLM: client}
	}
	research := &models.Task{ID: "research", Description: "Research X", ExpectedOutput: "notes", Agent: agent("Researcher")}
	write := &models.Task{ID: "write", Description: "Write about X", ExpectedOutput: "article", Agent: agent("Writer"), Context: []*models.Task{research}}
	tasks := []*models.Task{research, write}
	if withEdit {
		tasks = append(tasks, &models.Task{ID: "edit", Description: "Edit the article", ExpectedOutput: "article", Agent: agent("Editor"), Context: []*models.Task{research, write}})
	}
	return tasks
}

func TestScenarioResearchOnly(t *testing.T) {
	client := cannedModel()
	tasks := crewTasks(client, false)[:1]
	out, err := New(&agents.ToolExecutor{}, nil, nil).Run(context.Background(), models.NewRun("r", tasks))
	require.NoError(t, err)
	assert.Equal(t, "RESEARCH-NOTES on X", out.Raw)
}

func TestScenarioWriteSeesResearch(t *testing.T) {
	client := cannedModel()
	out, err := New(&agents.ToolExecutor{}, nil, nil).Run(context.Background(), models.NewRun("r", crewTasks(client, false)))
	require.NoError(t, err)
	assert.Equal(t, "DRAFT-ARTICLE", out.Raw)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[1].UserPrompt(), "RESEARCH-NOTES on X")
}

func TestScenarioEditSeesBothInOrder(t *testing.T) {
	client := cannedModel()
	out, err := New(&agents.ToolExecutor{}, nil, nil).Run(context.Background(), models.NewRun("r", crewTasks(client, true)))
	require.NoError(t, err)
	assert.Equal(t, "EDITED-ARTICLE", out.Raw)

	calls := client.Calls()
	require.Len(t, calls, 3)
	prompt := calls[2].UserPrompt()
	research := strings.Index(prompt, "RESEARCH-NOTES on X")
	draft := strings.Index(prompt, "DRAFT-ARTICLE")
	require.GreaterOrEqual(t, research, 0)
	require.GreaterOrEqual(t, draft, 0)
	assert.Less(t, research, draft)
}

func TestScenarioSecondTaskFails(t *testing.T) {
	client := llmtest.NewFakeClient(llmtest.Text("RESEARCH-NOTES on X"), llmtest.Fail(errors.New("quota exceeded")))
	run := models.NewRun("r", crewTasks(client, false))

	out, err := New(&agents.ToolExecutor{}, nil, nil).Run(context.Background(), run)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, models.StatusFailed, run.Status)
	var terr *TaskError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "write", terr.TaskID)
}

func TestRunIsDeterministic(t *testing.T) {
	run := func() []*models.TaskOutput {
		tasks := crewTasks(cannedModel(), true)
		tasks[0].Agent.Tools = []tools.Tool{&tools.MockSearchTool{}}
		r := models.NewRun("r", tasks)
		_, err := New(&agents.ToolExecutor{}, nil, nil).Run(context.Background(), r)
		require.NoError(t, err)
		return r.Outputs
	}
	first, second := run(), run()
	require.Len(t, first, 3)
	assert.Equal(t, 1, first[0].ToolCalls)
	assert.Contains(t, first[0].Raw, "Overview of X")
	assert.Equal(t, first, second)
}
