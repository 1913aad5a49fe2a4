package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/content-crew/internal/config"
)

type GeminiClient struct {
	client      *genai.Client
	Model       string
	Temperature float32
}

func NewGeminiClient(ctx context.Context, cfg config.LLM, opts ...option.ClientOption) (*GeminiClient, error) {
	c, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{
		client:      c,
		Model:       modelWithDefault(cfg.Model, "gemini-1.5-flash"),
		Temperature: float32(cfg.Temperature),
	}, nil
}

func (g *GeminiClient) Close() error { return g.client.Close() }

func (g *GeminiClient) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (*Reply, error) {
	model := g.client.GenerativeModel(g.Model)
	model.SetTemperature(g.Temperature)
	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toGenaiSchema(t.Parameters),
			})
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	system, history, err := toGenaiHistory(messages)
	if err != nil {
		return nil, err
	}
	if system != nil {
		model.SystemInstruction = system
	}
	if len(history) == 0 {
		return nil, errors.New("gemini: no messages to send")
	}
	cs := model.StartChat()
	cs.History = history[:len(history)-1]
	resp, err := cs.SendMessage(ctx, history[len(history)-1].Parts...)
	if err != nil {
		switch status.Code(err) {
		case codes.Unauthenticated, codes.PermissionDenied, codes.NotFound:
			return nil, &AuthError{Provider: config.ProviderGemini, Err: err}
		}
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: no candidates")
	}

	reply := &Reply{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			reply.Content += string(p)
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return nil, fmt.Errorf("gemini: encode %s args: %w", p.Name, err)
			}
			// Gemini does not assign call IDs; the executor needs one to pair results.
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:        "call_" + uuid.NewString(),
				Name:      p.Name,
				Arguments: string(args),
			})
		}
	}
	return reply, nil
}

// toGenaiHistory splits the conversation into a system instruction and chat turns.
// Consecutive tool results are grouped into one user turn, as Gemini expects
// all responses to a model turn's function calls together.
func toGenaiHistory(messages []Message) (*genai.Content, []*genai.Content, error) {
	var system *genai.Content
	var history []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.Text(m.Content))
		case RoleUser:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case RoleAssistant:
			var parts []genai.Part
			if m.Content != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if strings.TrimSpace(tc.Arguments) != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("gemini: decode %s arguments: %w", tc.Name, err)
					}
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			history = append(history, &genai.Content{Role: "model", Parts: parts})
		case RoleTool:
			part := genai.FunctionResponse{Name: m.Name, Response: map[string]any{"result": m.Content}}
			if n := len(history); n > 0 && isFunctionResponses(history[n-1]) {
				history[n-1].Parts = append(history[n-1].Parts, part)
				continue
			}
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		}
	}
	return system, history, nil
}

func isFunctionResponses(c *genai.Content) bool {
	if c.Role != "user" || len(c.Parts) == 0 {
		return false
	}
	_, ok := c.Parts[0].(genai.FunctionResponse)
	return ok
}

// toGenaiSchema converts the JSON schema subset produced for tool parameters.
func toGenaiSchema(s map[string]any) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{}
	if d, ok := s["description"].(string); ok {
		out.Description = d
	}
	switch s["type"] {
	case "object":
		out.Type = genai.TypeObject
	case "string":
		out.Type = genai.TypeString
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	}
	if props, ok := s["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[name] = toGenaiSchema(pm)
			}
		}
	}
	if items, ok := s["items"].(map[string]any); ok {
		out.Items = toGenaiSchema(items)
	}
	out.Required = stringList(s["required"])
	out.Enum = stringList(s["enum"])
	return out
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
