package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"

	"github.com/example/rationale-probe/internal/models"
)

// GeminiClient is a chat backend over the Gemini API. The SDK client is
// created on first use.
type GeminiClient struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{apiKey: apiKey, model: model}
}

func (c *GeminiClient) Complete(ctx context.Context, in models.Prompt, opts models.Options) (string, error) {
	system, history, question, err := geminiTurns(in.Messages())
	if err != nil {
		return "", err
	}
	client, err := c.sdk(ctx)
	if err != nil {
		return "", err
	}

	gm := client.GenerativeModel(c.model)
	gm.SetTemperature(float32(opts.Temperature))
	gm.SetTopP(float32(opts.TopP))
	gm.SetMaxOutputTokens(int32(opts.MaxTokens))
	gm.StopSequences = opts.StopTokens
	gm.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
	}
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := gm.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(question))
	if err != nil {
		return "", wrapGeminiError(err)
	}
	text, ok := firstText(resp)
	if !ok {
		return "", errEmptyChoice
	}
	return text, nil
}

// Close releases the SDK client, if one was created.
func (c *GeminiClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.client = client
	return client, nil
}

// geminiTurns splits a message sequence into a system instruction, the chat
// history and the final user question.
func geminiTurns(msgs []models.Message) (string, []*genai.Content, string, error) {
	var system []string
	var turns []models.Message
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != models.RoleUser {
		return "", nil, "", errors.New("gemini: conversation must end with a user message")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(system, "\n\n"), history, turns[len(turns)-1].Content, nil
}

func firstText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil {
		return "", false
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				return string(t), true
			}
		}
	}
	return "", false
}

func wrapGeminiError(err error) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() > 0 {
		return newProviderError("gemini", apiErr.HTTPCode(), apiErr.Error())
	}
	return fmt.Errorf("gemini: %w", err)
}
