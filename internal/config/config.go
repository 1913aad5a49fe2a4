package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted by LLM.Provider.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Search provider names accepted by Search.Provider.
const (
	SearchSerper = "serper"
	SearchMock   = "mock"
)

// Output renderers accepted by Crew.Render.
const (
	RenderMarkdown = "markdown"
	RenderRaw      = "raw"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	LLM    LLM          `yaml:"llm"`
	Search Search       `yaml:"search"`
	Crew   Crew         `yaml:"crew"`
	Log    Log          `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LLM is the configuration bundle handed to the language-model client.
type LLM struct {
	Provider   string `yaml:"provider"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIKey     string `yaml:"api_key"`
	APIVersion string `yaml:"api_version"`
	// Model is used by the openai and gemini providers; azure addresses the deployment.
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	Temperature   float64       `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	MaxIterations int           `yaml:"max_iterations"`
}

type Search struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	URL      string `yaml:"url"`
	Results  int    `yaml:"results"`
	Country  string `yaml:"country"`
	Language string `yaml:"language"`
}

type Crew struct {
	File      string `yaml:"file"`
	EditStage bool   `yaml:"edit_stage"`
	Render    string `yaml:"render"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Error reports a missing or invalid configuration value.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 10 * time.Minute,
		},
		LLM: LLM{
			Provider:      ProviderAzure,
			APIVersion:    "2024-06-01",
			Temperature:   0.3,
			Timeout:       45 * time.Second,
			MaxRetries:    2,
			MaxIterations: 20,
		},
		Search: Search{
			Provider: SearchSerper,
			URL:      "https://google.serper.dev/search",
			Results:  10,
			Country:  "us",
			Language: "en",
		},
		Crew: Crew{
			EditStage: true,
			Render:    RenderMarkdown,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads .env (if present), then the optional YAML file named by CONFIG_FILE,
// then applies environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	switch cfg.LLM.Provider {
	case ProviderAzure:
		setString(&cfg.LLM.Endpoint, "AZURE_OPENAI_ENDPOINT")
		setString(&cfg.LLM.Deployment, "AZURE_OPENAI_CHAT_DEPLOYMENT_NAME")
		setString(&cfg.LLM.APIKey, "AZURE_API_KEY")
		setString(&cfg.LLM.APIVersion, "AZURE_API_VERSION")
	case ProviderOpenAI:
		setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
		setString(&cfg.LLM.BaseURL, "OPENAI_API_BASE")
	case ProviderGemini:
		setString(&cfg.LLM.APIKey, "GOOGLE_API_KEY")
	}
	setString(&cfg.LLM.Model, "LLM_MODEL")
	if v := os.Getenv("LLM_HTTP_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return &Error{Field: "LLM_HTTP_TIMEOUT_MS", Reason: "must be a positive integer"}
		}
		cfg.LLM.Timeout = time.Duration(ms) * time.Millisecond
	}
	if err := setInt(&cfg.LLM.MaxRetries, "LLM_MAX_RETRIES"); err != nil {
		return err
	}
	if err := setInt(&cfg.LLM.MaxIterations, "AGENT_MAX_ITERATIONS"); err != nil {
		return err
	}

	if v := os.Getenv("SEARCH_PROVIDER"); v != "" {
		cfg.Search.Provider = strings.ToLower(strings.TrimSpace(v))
	}
	setString(&cfg.Search.APIKey, "SERPER_API_KEY")
	setString(&cfg.Search.URL, "SERPER_API_URL")
	if err := setInt(&cfg.Search.Results, "SEARCH_RESULTS"); err != nil {
		return err
	}

	setString(&cfg.Crew.File, "CREW_FILE")
	if v := os.Getenv("EDIT_STAGE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &Error{Field: "EDIT_STAGE", Reason: "must be a boolean"}
		}
		cfg.Crew.EditStage = b
	}
	if v := os.Getenv("OUTPUT_RENDER"); v != "" {
		cfg.Crew.Render = strings.ToLower(strings.TrimSpace(v))
	}

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return &Error{Field: key, Reason: "must be a non-negative integer"}
	}
	*dst = n
	return nil
}

// Validate checks that the selected providers have the credentials they need.
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	switch c.Crew.Render {
	case RenderMarkdown, RenderRaw:
	default:
		return &Error{Field: "crew.render", Reason: fmt.Sprintf("unknown renderer %q", c.Crew.Render)}
	}
	return nil
}

func (l LLM) Validate() error {
	switch l.Provider {
	case ProviderAzure:
		if l.Endpoint == "" {
			return &Error{Field: "AZURE_OPENAI_ENDPOINT", Reason: "not set"}
		}
		if l.Deployment == "" {
			return &Error{Field: "AZURE_OPENAI_CHAT_DEPLOYMENT_NAME", Reason: "not set"}
		}
		if l.APIKey == "" {
			return &Error{Field: "AZURE_API_KEY", Reason: "not set"}
		}
		if l.APIVersion == "" {
			return &Error{Field: "AZURE_API_VERSION", Reason: "not set"}
		}
	case ProviderOpenAI:
		if l.APIKey == "" {
			return &Error{Field: "OPENAI_API_KEY", Reason: "not set"}
		}
	case ProviderGemini:
		if l.APIKey == "" {
			return &Error{Field: "GOOGLE_API_KEY", Reason: "not set"}
		}
	case ProviderMock:
	default:
		return &Error{Field: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", l.Provider)}
	}
	return nil
}

func (s Search) Validate() error {
	switch s.Provider {
	case SearchSerper:
		if s.APIKey == "" {
			return &Error{Field: "SERPER_API_KEY", Reason: "not set"}
		}
	case SearchMock:
	default:
		return &Error{Field: "SEARCH_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", s.Provider)}
	}
	return nil
}
