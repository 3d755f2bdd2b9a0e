package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/example/rationale-probe/internal/config"
	"github.com/example/rationale-probe/internal/models"
)

// AnthropicClient calls the Messages API.
type AnthropicClient struct {
	model     string
	url       string
	transport *httpTransport
}

func NewAnthropicClient(cfg config.AnthropicConfig, model string, timeout time.Duration) *AnthropicClient {
	headers := http.Header{}
	headers.Set("x-api-key", cfg.APIKey)
	headers.Set("anthropic-version", cfg.Version)
	return &AnthropicClient{
		model:     model,
		url:       cfg.URL,
		transport: newHTTPTransport("anthropic", timeout, headers),
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Temperature   float64            `json:"temperature"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *AnthropicClient) Complete(ctx context.Context, in models.Prompt, opts models.Options) (string, error) {
	req := anthropicRequest{
		Model:         c.model,
		MaxTokens:     opts.MaxTokens,
		Temperature:   opts.Temperature,
		StopSequences: opts.StopTokens,
	}
	if opts.TopP > 0 && opts.TopP < 1 {
		topP := opts.TopP
		req.TopP = &topP
	}

	// System instructions go in the top-level field; the API has no system role.
	var system []string
	for _, m := range in.Messages() {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")

	var resp anthropicResponse
	if err := c.transport.postJSON(ctx, c.url, req, &resp); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "" || block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errEmptyChoice
	}
	return sb.String(), nil
}
