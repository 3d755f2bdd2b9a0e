package models

import (
	"fmt"
	"strings"
)

// Model identifies a completion backend. The identifier string is persisted
// inside failure records, so values must stay stable.
type Model string

const (
	ModelDavinci3 Model = "gpt_davinci-003"
	ModelTurbo    Model = "chat_turbo"
	ModelGPT4     Model = "chat_gpt4"
	ModelAlpaca   Model = "alpaca"
	ModelVicuna   Model = "chat_vicuna"
	ModelClaude   Model = "chat_claude"
	ModelGemini   Model = "chat_gemini"
)

// chatMarker is the substring that makes an identifier chat-style.
const chatMarker = "chat"

// Backend is the family of client a Model is dispatched to.
type Backend string

const (
	BackendOpenAIText Backend = "openai_text"
	BackendOpenAIChat Backend = "openai_chat"
	BackendAnthropic  Backend = "anthropic"
	BackendGemini     Backend = "gemini"
	BackendLocal      Backend = "local"
)

// AllModels lists every supported identifier.
func AllModels() []Model {
	return []Model{ModelDavinci3, ModelTurbo, ModelGPT4, ModelAlpaca, ModelVicuna, ModelClaude, ModelGemini}
}

func ParseModel(s string) (Model, error) {
	m := Model(s)
	if _, err := m.Backend(); err != nil {
		return "", err
	}
	return m, nil
}

// IsChat reports whether the model consumes a role-tagged message sequence.
func (m Model) IsChat() bool {
	return strings.Contains(string(m), chatMarker)
}

// Backend returns the client family for m, or an error for identifiers
// outside the enumeration.
func (m Model) Backend() (Backend, error) {
	switch m {
	case ModelDavinci3:
		return BackendOpenAIText, nil
	case ModelTurbo, ModelGPT4:
		return BackendOpenAIChat, nil
	case ModelClaude:
		return BackendAnthropic, nil
	case ModelGemini:
		return BackendGemini, nil
	case ModelAlpaca, ModelVicuna:
		return BackendLocal, nil
	}
	return "", fmt.Errorf("unsupported model type: %q", string(m))
}

func (m Model) String() string { return string(m) }
