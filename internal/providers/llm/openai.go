package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/example/rationale-probe/internal/config"
	"github.com/example/rationale-probe/internal/models"
)

const (
	endOfText = "<|endoftext|>"
	// topLogprobs is requested on every text completion.
	topLogprobs = 5
)

// OpenAIClient serves both the text-completion and chat-completion models.
// The prompt shape picks the endpoint.
type OpenAIClient struct {
	client openai.Client
	model  string
}

func NewOpenAIClient(cfg config.OpenAIConfig, model string, timeout time.Duration) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(timeout),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: model}
}

func (c *OpenAIClient) Complete(ctx context.Context, in models.Prompt, opts models.Options) (string, error) {
	if in.IsChat() {
		return c.chat(ctx, in.Messages(), opts)
	}
	resp, err := c.client.Completions.New(ctx, c.completionParams(in.Text(), opts))
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyChoice
	}
	return strings.TrimSpace(resp.Choices[0].Text), nil
}

// CompleteScored returns every text-completion choice with its summed
// log-probability and first-token distribution.
func (c *OpenAIClient) CompleteScored(ctx context.Context, in models.Prompt, opts models.Options) ([]ScoredChoice, error) {
	if in.IsChat() {
		return nil, ErrNoScores
	}
	resp, err := c.client.Completions.New(ctx, c.completionParams(in.Text(), opts))
	if err != nil {
		return nil, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errEmptyChoice
	}
	out := make([]ScoredChoice, 0, len(resp.Choices))
	for _, ch := range resp.Choices {
		lp := ch.Logprobs
		out = append(out, scoreTokens(ch.Text, lp.Tokens, lp.TokenLogprobs, lp.TopLogprobs, opts.MaxTokens))
	}
	return out, nil
}

func (c *OpenAIClient) completionParams(prompt string, opts models.Options) openai.CompletionNewParams {
	params := openai.CompletionNewParams{
		Model:            openai.CompletionNewParamsModel(c.model),
		Prompt:           openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		MaxTokens:        openai.Int(int64(opts.MaxTokens)),
		Temperature:      openai.Float(opts.Temperature),
		TopP:             openai.Float(opts.TopP),
		FrequencyPenalty: openai.Float(opts.FrequencyPenalty),
		PresencePenalty:  openai.Float(opts.PresencePenalty),
		Logprobs:         openai.Int(topLogprobs),
	}
	if len(opts.StopTokens) > 0 {
		params.Stop = openai.CompletionNewParamsStopUnion{OfStringArray: opts.StopTokens}
	}
	return params
}

func (c *OpenAIClient) chat(ctx context.Context, msgs []models.Message, opts models.Options) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(c.model),
		Messages:         chatMessages(msgs),
		MaxTokens:        openai.Int(int64(opts.MaxTokens)),
		Temperature:      openai.Float(opts.Temperature),
		TopP:             openai.Float(opts.TopP),
		FrequencyPenalty: openai.Float(opts.FrequencyPenalty),
		PresencePenalty:  openai.Float(opts.PresencePenalty),
	}
	if len(opts.StopTokens) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopTokens}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyChoice
	}
	return resp.Choices[0].Message.Content, nil
}

func chatMessages(msgs []models.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// scoreTokens sums token log-probabilities up to the first end-of-text token,
// or maxTokens when none was generated.
func scoreTokens(text string, tokens []string, logprobs []float64, top []map[string]float64, maxTokens int) ScoredChoice {
	end := maxTokens
	for i, tok := range tokens {
		if tok == endOfText {
			end = i
			break
		}
	}
	var sum float64
	for i := 0; i < end && i < len(logprobs); i++ {
		sum += logprobs[i]
	}
	first := map[string]float64{}
	if len(top) > 0 && top[0] != nil {
		first = top[0]
	}
	return ScoredChoice{
		Completion:             strings.Trim(text, " ."),
		LogProbability:         sum,
		FirstTokenDistribution: first,
	}
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		return newProviderError("openai", apiErr.StatusCode, msg)
	}
	return fmt.Errorf("openai: %w", err)
}
