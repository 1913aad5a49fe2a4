package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/example/content-crew/internal/config"
)

// OpenAIClient talks to the chat completions API, either on api.openai.com
// (or a compatible base URL) or on an Azure OpenAI deployment.
type OpenAIClient struct {
	client      openai.Client
	provider    string
	Model       string
	Temperature float64
}

// NewAzureClient addresses the configured deployment; the deployment name is sent as the model.
func NewAzureClient(cfg config.LLM, opts ...option.RequestOption) *OpenAIClient {
	base := []option.RequestOption{
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
	}
	base = append(base, transportOptions(cfg)...)
	return &OpenAIClient{
		client:      openai.NewClient(append(base, opts...)...),
		provider:    config.ProviderAzure,
		Model:       cfg.Deployment,
		Temperature: cfg.Temperature,
	}
}

// NewOpenAIClient uses cfg.BaseURL when set. The base URL includes the version
// prefix, e.g. https://api.openai.com/v1/.
func NewOpenAIClient(cfg config.LLM, opts ...option.RequestOption) *OpenAIClient {
	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}
	base = append(base, transportOptions(cfg)...)
	return &OpenAIClient{
		client:      openai.NewClient(append(base, opts...)...),
		provider:    config.ProviderOpenAI,
		Model:       modelWithDefault(cfg.Model, "gpt-4o-mini"),
		Temperature: cfg.Temperature,
	}
}

// transportOptions maps timeout and retry settings onto the client's native policy.
func transportOptions(cfg config.LLM) []option.RequestOption {
	opts := []option.RequestOption{option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return opts
}

func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (*Reply, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.Model),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(c.Temperature),
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Parameters),
			},
		})
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
				return nil, &AuthError{Provider: c.provider, Err: err}
			}
		}
		return nil, fmt.Errorf("%s chat completion: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(c.provider + ": no choices")
	}
	msg := resp.Choices[0].Message
	reply := &Reply{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return reply, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case RoleAssistant:
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case RoleTool:
			out = append(out, openai.ChatCompletionMessageParamUnion{OfTool: &openai.ChatCompletionToolMessageParam{
				ToolCallID: m.ToolCallID,
				Content: openai.ChatCompletionToolMessageParamContentUnion{
					OfString: openai.String(m.Content),
				},
			}})
		}
	}
	return out
}
