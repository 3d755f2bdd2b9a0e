// Package config loads harness settings from a YAML file, a .env file and
// the process environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/example/rationale-probe/internal/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	DataDir    string          `yaml:"data_dir" validate:"required"`
	FewShotDir string          `yaml:"few_shot_dir" validate:"required"`
	Sampling   SamplingConfig  `yaml:"sampling"`
	Providers  ProvidersConfig `yaml:"providers"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// SamplingConfig controls test-mode subsampling of a batch.
type SamplingConfig struct {
	Seed int64 `yaml:"seed"`
	Size int   `yaml:"size" validate:"min=1"`
}

type ProvidersConfig struct {
	// Models maps a model identifier to the remote model name it calls.
	Models      map[models.Model]string `yaml:"models" validate:"required"`
	HTTPTimeout time.Duration           `yaml:"http_timeout" validate:"gt=0"`

	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Local     LocalConfig     `yaml:"local"`
}

type OpenAIConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url" validate:"omitempty,url"`
	MaxRetries int    `yaml:"max_retries" validate:"min=0"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	URL     string `yaml:"url" validate:"required,url"`
	Version string `yaml:"version" validate:"required"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

// LocalConfig points each local model at its generation server.
type LocalConfig struct {
	Endpoints map[models.Model]string `yaml:"endpoints"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// DefaultConfig returns the settings used when no file overrides them.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Sampling: SamplingConfig{
			Seed: 69,
			Size: 10,
		},
		Providers: ProvidersConfig{
			Models: map[models.Model]string{
				models.ModelDavinci3: "text-davinci-003",
				models.ModelTurbo:    "gpt-3.5-turbo-0301",
				models.ModelGPT4:     "gpt-4",
				models.ModelClaude:   "claude-3-5-sonnet-latest",
				models.ModelGemini:   "gemini-1.5-flash",
				models.ModelAlpaca:   "alpaca",
				models.ModelVicuna:   "vicuna",
			},
			HTTPTimeout: 45 * time.Second,
			OpenAI:      OpenAIConfig{MaxRetries: 2},
			Anthropic: AnthropicConfig{
				URL:     "https://api.anthropic.com/v1/messages",
				Version: "2023-06-01",
			},
			Local: LocalConfig{
				Endpoints: map[models.Model]string{
					models.ModelAlpaca: "http://localhost:8081",
					models.ModelVicuna: "http://localhost:8082",
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// .env and environment overrides. A missing file or .env is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	if cfg.FewShotDir == "" {
		cfg.FewShotDir = filepath.Join(cfg.DataDir, "few_shot")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for m := range c.Providers.Models {
		if _, err := m.Backend(); err != nil {
			return fmt.Errorf("invalid config: providers.models: %w", err)
		}
	}
	return nil
}

// RemoteName returns the provider-side model name for m.
func (c *Config) RemoteName(m models.Model) string {
	if name := c.Providers.Models[m]; name != "" {
		return name
	}
	return string(m)
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("PROBE_DATA_DIR")); v != "" {
		c.DataDir = v
	}
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		c.Providers.OpenAI.APIKey = key
	}
	if base := strings.TrimSpace(os.Getenv("OPENAI_API_BASE")); base != "" {
		c.Providers.OpenAI.BaseURL = strings.TrimRight(base, "/")
	}
	if key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		c.Providers.Anthropic.APIKey = key
	}
	if url := strings.TrimSpace(os.Getenv("ANTHROPIC_API_URL")); url != "" {
		c.Providers.Anthropic.URL = url
	}
	if key := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); key != "" {
		c.Providers.Gemini.APIKey = key
	}
	if c.Providers.Local.Endpoints == nil {
		c.Providers.Local.Endpoints = map[models.Model]string{}
	}
	if url := strings.TrimSpace(os.Getenv("ALPACA_ENDPOINT")); url != "" {
		c.Providers.Local.Endpoints[models.ModelAlpaca] = url
	}
	if url := strings.TrimSpace(os.Getenv("VICUNA_ENDPOINT")); url != "" {
		c.Providers.Local.Endpoints[models.ModelVicuna] = url
	}
	if v := os.Getenv("LLM_HTTP_TIMEOUT_MS"); v != "" {
		if d, err := time.ParseDuration(v + "ms"); err == nil && d > 0 {
			c.Providers.HTTPTimeout = d
		}
	}
}
