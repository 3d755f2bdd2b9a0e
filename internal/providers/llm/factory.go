package llm

import (
	"fmt"

	"github.com/example/rationale-probe/internal/config"
	"github.com/example/rationale-probe/internal/models"
)

// Factory builds the backend for one model identifier.
type Factory func(models.Model) (Backend, error)

// ConfigFactory builds real provider clients from cfg.
func ConfigFactory(cfg *config.Config) Factory {
	return func(m models.Model) (Backend, error) {
		return NewBackend(m, cfg)
	}
}

// MockFactory serves every model from a MockClient.
func MockFactory() Factory {
	return func(m models.Model) (Backend, error) {
		if _, err := m.Backend(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownModel, err)
		}
		return &MockClient{}, nil
	}
}

// NewBackend returns the client for m. Adding a model means adding an arm to
// models.Model.Backend and, for a new family, one case here.
func NewBackend(m models.Model, cfg *config.Config) (Backend, error) {
	kind, err := m.Backend()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownModel, err)
	}
	name := cfg.RemoteName(m)
	timeout := cfg.Providers.HTTPTimeout

	switch kind {
	case models.BackendOpenAIText, models.BackendOpenAIChat:
		return NewOpenAIClient(cfg.Providers.OpenAI, name, timeout), nil
	case models.BackendAnthropic:
		return NewAnthropicClient(cfg.Providers.Anthropic, name, timeout), nil
	case models.BackendGemini:
		return NewGeminiClient(cfg.Providers.Gemini.APIKey, name), nil
	case models.BackendLocal:
		return NewLocalClient(m, cfg.Providers.Local.Endpoints[m], timeout)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownModel, m)
}
