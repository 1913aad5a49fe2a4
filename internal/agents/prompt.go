package agents

import (
	"fmt"
	"strings"

	"github.com/example/content-crew/internal/models"
	"github.com/example/content-crew/internal/providers/llm"
)

// BuildMessages assembles the opening conversation for a task: the agent's
// persona as the system turn, the task and its context as the user turn.
func BuildMessages(task *models.Task, taskContext string) []llm.Message {
	a := task.Agent

	var sys strings.Builder
	fmt.Fprintf(&sys, "You are %s. %s\nYour personal goal is: %s", a.Role, strings.TrimSpace(a.Backstory), a.Goal)
	if len(a.Tools) > 0 {
		sys.WriteString("\n\nYou can use the following tools when you need up-to-date information:\n")
		for _, t := range a.Tools {
			fmt.Fprintf(&sys, "- %s: %s\n", t.Name(), t.Description())
		}
		sys.WriteString("Call a tool whenever it helps; answer without tools once you have enough information.")
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Current Task: %s\n\n", strings.TrimSpace(task.Description))
	fmt.Fprintf(&user, "This is the expected criteria for your final answer: %s\n", strings.TrimSpace(task.ExpectedOutput))
	user.WriteString("You MUST return the actual complete content as the final answer, not a summary.")
	if taskContext != "" {
		fmt.Fprintf(&user, "\n\nThis is the context you're working with:\n%s", taskContext)
	}
	user.WriteString("\n\nBegin! Give your best final answer.")

	return []llm.Message{llm.System(sys.String()), llm.User(user.String())}
}

const finalAnswerNudge = "You have reached the maximum number of tool calls for this task. " +
	"Do not call any more tools. Give your best final answer now, based on what you have gathered."
