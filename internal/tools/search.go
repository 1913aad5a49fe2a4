package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/content-crew/internal/config"
)

const noResults = "No good Google Search Result was found"

type searchArgs struct {
	SearchQuery string `json:"search_query" jsonschema:"description=The query to search the internet for"`
}

// SerperSearchTool queries Google through the Serper API.
type SerperSearchTool struct {
	APIKey   string
	URL      string
	Results  int
	Country  string
	Language string
	Client   *http.Client
}

func NewSerperSearchTool(cfg config.Search) *SerperSearchTool {
	return &SerperSearchTool{
		APIKey:   cfg.APIKey,
		URL:      cfg.URL,
		Results:  cfg.Results,
		Country:  cfg.Country,
		Language: cfg.Language,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SerperSearchTool) Name() string { return "internet_search" }

func (s *SerperSearchTool) Description() string {
	return "Search the internet for recent and relevant information on any topic. Returns result titles, links and snippets."
}

func (s *SerperSearchTool) Parameters() map[string]any { return schemaFor(&searchArgs{}) }

func (s *SerperSearchTool) Execute(ctx context.Context, arguments string) (string, error) {
	var args searchArgs
	if err := decodeArgs(s.Name(), arguments, &args); err != nil {
		return "", err
	}
	query := strings.TrimSpace(args.SearchQuery)
	if query == "" {
		return "", &ArgumentError{Tool: s.Name(), Err: errEmptyQuery}
	}

	body, _ := json.Marshal(map[string]any{
		"q":   query,
		"num": s.Results,
		"gl":  s.Country,
		"hl":  s.Language,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("serper search: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("serper status %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	var out serperResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("serper decode: %w", err)
	}
	return formatSerper(out, s.Results), nil
}

type serperResponse struct {
	AnswerBox *struct {
		Answer             string   `json:"answer"`
		Snippet            string   `json:"snippet"`
		SnippetHighlighted []string `json:"snippetHighlighted"`
	} `json:"answerBox"`
	KnowledgeGraph *struct {
		Title       string            `json:"title"`
		Type        string            `json:"type"`
		Description string            `json:"description"`
		Attributes  map[string]string `json:"attributes"`
	} `json:"knowledgeGraph"`
	Organic []struct {
		Title      string            `json:"title"`
		Link       string            `json:"link"`
		Snippet    string            `json:"snippet"`
		Date       string            `json:"date"`
		Attributes map[string]string `json:"attributes"`
	} `json:"organic"`
}

// formatSerper turns a response into text for the model. A direct answer box
// wins outright; otherwise the knowledge graph and organic results are listed.
func formatSerper(r serperResponse, limit int) string {
	if ab := r.AnswerBox; ab != nil {
		switch {
		case ab.Answer != "":
			return ab.Answer
		case ab.Snippet != "":
			return strings.ReplaceAll(ab.Snippet, "\n", " ")
		case len(ab.SnippetHighlighted) > 0:
			return strings.Join(ab.SnippetHighlighted, " ")
		}
	}

	var blocks []string
	if kg := r.KnowledgeGraph; kg != nil {
		var b strings.Builder
		if kg.Title != "" {
			b.WriteString(kg.Title)
			if kg.Type != "" {
				b.WriteString(": " + kg.Type)
			}
			b.WriteString("\n")
		}
		if kg.Description != "" {
			b.WriteString(kg.Description + "\n")
		}
		for _, k := range sortedKeys(kg.Attributes) {
			fmt.Fprintf(&b, "%s %s: %s\n", kg.Title, k, kg.Attributes[k])
		}
		if s := strings.TrimSpace(b.String()); s != "" {
			blocks = append(blocks, s)
		}
	}

	for i, o := range r.Organic {
		if limit > 0 && i >= limit {
			break
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Title: %s\nLink: %s\n", o.Title, o.Link)
		if o.Date != "" {
			fmt.Fprintf(&b, "Date: %s\n", o.Date)
		}
		if o.Snippet != "" {
			fmt.Fprintf(&b, "Snippet: %s\n", o.Snippet)
		}
		for _, k := range sortedKeys(o.Attributes) {
			fmt.Fprintf(&b, "%s: %s\n", k, o.Attributes[k])
		}
		blocks = append(blocks, strings.TrimSpace(b.String()))
	}

	if len(blocks) == 0 {
		return noResults
	}
	return strings.Join(blocks, "\n---\n")
}
