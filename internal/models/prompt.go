package models

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is either a flattened text prompt or a message sequence.
// Exactly one representation is set, selected by the constructor.
type Prompt struct {
	text     string
	messages []Message
	chat     bool
}

func TextPrompt(text string) Prompt { return Prompt{text: text} }

func ChatPrompt(messages []Message) Prompt {
	return Prompt{messages: append([]Message(nil), messages...), chat: true}
}

func (p Prompt) IsChat() bool { return p.chat }

// Text returns the flattened prompt; empty for chat prompts.
func (p Prompt) Text() string { return p.text }

// Messages returns a copy of the message sequence; nil for text prompts.
func (p Prompt) Messages() []Message {
	if !p.chat {
		return nil
	}
	return append([]Message(nil), p.messages...)
}

// Options is the generation configuration bag shared by every backend.
type Options struct {
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	StopTokens       []string `json:"stop_tokens"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	PresencePenalty  float64  `json:"presence_penalty"`

	// Uncertainty asks a scoring backend for log-probabilities. It is a
	// call-time switch and never stored in a failure record.
	Uncertainty bool `json:"-"`
}

// DefaultOptions mirrors the defaults every stage starts from.
func DefaultOptions() Options {
	return Options{MaxTokens: 256, Temperature: 0, TopP: 1}
}

// WithMaxTokens returns a copy of o with MaxTokens set.
func (o Options) WithMaxTokens(n int) Options {
	o.MaxTokens = n
	return o
}

// WithStop returns a copy of o with the given stop tokens.
func (o Options) WithStop(tokens ...string) Options {
	o.StopTokens = append([]string(nil), tokens...)
	return o
}
