// Package render turns a crew's final Markdown answer into HTML for the result page.
package render

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

// Formatter converts a raw model answer into markup safe to embed in a page.
type Formatter interface {
	Format(raw string) (template.HTML, error)
}

// New returns the formatter registered under kind ("markdown" or "raw").
func New(kind string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "markdown":
		return NewMarkdown(), nil
	case "raw":
		return Raw{}, nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", kind)
	}
}

// Markdown renders CommonMark plus GitHub extensions (tables, strikethrough,
// autolinks, task lists). Raw HTML in the answer is dropped.
type Markdown struct {
	md goldmark.Markdown
}

func NewMarkdown() *Markdown {
	return &Markdown{md: goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)}
}

func (m *Markdown) Format(raw string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(StripFence(raw)), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Raw shows the answer exactly as the model returned it, escaped inside <pre>.
type Raw struct{}

func (Raw) Format(raw string) (template.HTML, error) {
	return template.HTML("<pre>" + html.EscapeString(raw) + "</pre>"), nil
}

// StripFence removes a code fence wrapping the whole answer, as models
// sometimes return ```markdown ... ``` despite being told not to.
func StripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return t
	}
	body := strings.TrimPrefix(t, "```")
	idx := strings.IndexByte(body, '\n')
	if idx == -1 {
		return t
	}
	switch lang := strings.ToLower(strings.TrimSpace(body[:idx])); lang {
	case "", "markdown", "md":
	default:
		return t
	}
	body = strings.TrimSuffix(body[idx+1:], "```")
	return strings.TrimSpace(body)
}
