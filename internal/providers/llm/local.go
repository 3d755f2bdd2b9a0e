package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/rationale-probe/internal/models"
)

// minLocalTemperature is the lowest temperature local samplers accept.
const minLocalTemperature = 0.001

// LocalClient calls a text-generation server hosting one local model.
type LocalClient struct {
	endpoint  string
	template  convTemplate
	transport *httpTransport
}

type localRequest struct {
	Inputs     string          `json:"inputs"`
	Parameters localParameters `json:"parameters"`
}

type localParameters struct {
	MaxNewTokens int      `json:"max_new_tokens"`
	Temperature  float64  `json:"temperature"`
	TopP         float64  `json:"top_p,omitempty"`
	DoSample     bool     `json:"do_sample"`
	Stop         []string `json:"stop,omitempty"`
}

type localResponse struct {
	GeneratedText string `json:"generated_text"`
}

// NewLocalClient returns a client for m served at endpoint. Only the two
// local model identifiers have a conversation template.
func NewLocalClient(m models.Model, endpoint string, timeout time.Duration) (*LocalClient, error) {
	var tmpl convTemplate
	switch m {
	case models.ModelVicuna:
		tmpl = vicunaTemplate
	case models.ModelAlpaca:
		tmpl = alpacaTemplate
	default:
		return nil, fmt.Errorf("%w: no local template for %s", ErrUnknownModel, m)
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured for local model %s", m)
	}
	return &LocalClient{
		endpoint:  strings.TrimRight(endpoint, "/") + "/generate",
		template:  tmpl,
		transport: newHTTPTransport("local", timeout, nil),
	}, nil
}

func (c *LocalClient) Complete(ctx context.Context, in models.Prompt, opts models.Options) (string, error) {
	req := localRequest{
		Inputs: c.template.render(in),
		Parameters: localParameters{
			MaxNewTokens: opts.MaxTokens,
			Temperature:  max(opts.Temperature, minLocalTemperature),
			DoSample:     true,
			Stop:         opts.StopTokens,
		},
	}
	// top_p must be strictly below 1 for the server to apply it.
	if opts.TopP > 0 && opts.TopP < 1 {
		req.Parameters.TopP = opts.TopP
	}

	var resp localResponse
	if err := c.transport.postJSON(ctx, c.endpoint, req, &resp); err != nil {
		return "", err
	}
	return resp.GeneratedText, nil
}
