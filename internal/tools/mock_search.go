package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// MockSearchTool stands in for internet_search when no search API is configured.
type MockSearchTool struct{}

func (m *MockSearchTool) Name() string { return "internet_search" }

func (m *MockSearchTool) Description() string {
	return "Search the internet for recent and relevant information on any topic (offline stand-in)."
}

func (m *MockSearchTool) Parameters() map[string]any { return schemaFor(&searchArgs{}) }

func (m *MockSearchTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args searchArgs
	if err := decodeArgs(m.Name(), arguments, &args); err != nil {
		return "", err
	}
	q := strings.TrimSpace(args.SearchQuery)
	if q == "" {
		return "", &ArgumentError{Tool: m.Name(), Err: errEmptyQuery}
	}
	return fmt.Sprintf("Title: Overview of %s\nLink: https://example.com/search?q=%s\nSnippet: Offline search result for %q.", q, strings.ReplaceAll(q, " ", "+"), q), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
