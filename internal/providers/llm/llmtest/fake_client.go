// Package llmtest provides a scriptable llm.Client for tests.
package llmtest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/example/content-crew/internal/providers/llm"
)

// Call records one Chat invocation.
type Call struct {
	Messages []llm.Message
	Tools    []llm.ToolSpec
}

// UserPrompt returns the first user message of the call.
func (c Call) UserPrompt() string {
	for _, m := range c.Messages {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}

// Step is one scripted outcome: a reply or an error.
type Step struct {
	Reply *llm.Reply
	Err   error
}

func Text(s string) Step { return Step{Reply: &llm.Reply{Content: s}} }

func Fail(err error) Step { return Step{Err: err} }

func ToolCalls(calls ...llm.ToolCall) Step { return Step{Reply: &llm.Reply{ToolCalls: calls}} }

var ErrNoScriptedReply = errors.New("llmtest: no scripted reply left")

// FakeClient replays scripted steps in order, or asks Respond when set.
type FakeClient struct {
	Respond func(messages []llm.Message, tools []llm.ToolSpec) (*llm.Reply, error)

	mu    sync.Mutex
	steps []Step
	calls []Call
}

func NewFakeClient(steps ...Step) *FakeClient {
	return &FakeClient{steps: steps}
}

func (f *FakeClient) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolSpec) (*llm.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Messages: slices.Clone(messages), Tools: slices.Clone(tools)})
	if f.Respond != nil {
		return f.Respond(messages, tools)
	}
	if len(f.steps) == 0 {
		return nil, ErrNoScriptedReply
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	return step.Reply, step.Err
}

func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}
