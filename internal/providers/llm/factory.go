package llm

import (
	"context"
	"fmt"

	"github.com/example/content-crew/internal/config"
)

// New returns a Client for the configured provider.
// Supported providers:
// - azure:  endpoint, deployment, API key and API version (AZURE_* variables)
// - openai: OPENAI_API_KEY, optional OPENAI_API_BASE and LLM_MODEL
// - gemini: GOOGLE_API_KEY, optional LLM_MODEL
// - mock:   canned responses, no credentials
// Missing credentials are reported as *config.Error.
func New(ctx context.Context, cfg config.LLM) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case config.ProviderAzure:
		return NewAzureClient(cfg), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	case config.ProviderMock:
		return &MockClient{}, nil
	}
	return nil, &config.Error{Field: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
}

func modelWithDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
