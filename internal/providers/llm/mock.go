package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockClient is used for local runs without provider credentials.
// Its replies depend only on the conversation, so runs are repeatable.
type MockClient struct{}

func (m *MockClient) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var task string
	var toolResults []string
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			task = msg.Content
		case RoleTool:
			toolResults = append(toolResults, msg.Content)
		}
	}
	headline := firstLine(task)

	// search once when offered a search tool, then answer
	if len(toolResults) == 0 {
		for _, t := range tools {
			if t.Name == "internet_search" {
				args, _ := json.Marshal(map[string]string{"search_query": headline})
				return &Reply{ToolCalls: []ToolCall{{ID: "mock_call_1", Name: t.Name, Arguments: string(args)}}}, nil
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", headline)
	b.WriteString("This is a placeholder answer produced without a language model.\n")
	for i, r := range toolResults {
		fmt.Fprintf(&b, "\n- Source %d: %s", i+1, firstLine(r))
	}
	return &Reply{Content: strings.TrimSpace(b.String())}, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i != -1 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "Current Task:")
	return strings.TrimSpace(s)
}
