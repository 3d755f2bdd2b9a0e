package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/rationale-probe/internal/models"
)

// Gateway is the single call surface over every backend. Remote failures
// come back as failure Results; only misuse (unknown model, wrong prompt
// shape, misconfigured backend) is returned as an error.
type Gateway struct {
	factory Factory
	logger  *zap.Logger

	mu       sync.Mutex
	backends map[models.Model]Backend
}

func NewGateway(factory Factory, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{factory: factory, logger: logger, backends: map[models.Model]Backend{}}
}

// Complete issues one call. The returned Result is either the cleaned
// completion text or a Failure holding everything needed to reissue it.
func (g *Gateway) Complete(ctx context.Context, in models.Prompt, model models.Model, opts models.Options) (models.Result, error) {
	b, kind, err := g.prepare(in, model)
	if err != nil {
		return models.Result{}, err
	}

	text, err := b.Complete(ctx, in, callOptions(kind, opts))
	if err != nil {
		g.logger.Warn("completion failed",
			zap.String("model", model.String()),
			zap.Error(err),
		)
		return models.Failed(models.NewFailure(err, in, model, opts)), nil
	}
	return models.Success(cleanAnswer(text, model.IsChat())), nil
}

// Retry reissues the call recorded in f.
func (g *Gateway) Retry(ctx context.Context, f *models.Failure) (models.Result, error) {
	return g.Complete(ctx, f.Input(), f.Model, f.Options)
}

// ScoredResult is the uncertainty-mode answer: scored choices on success,
// a Failure otherwise.
type ScoredResult struct {
	Choices []ScoredChoice  `json:"choices,omitempty"`
	Failure *models.Failure `json:"failure,omitempty"`
}

// CompleteScored is Complete with per-choice log-probabilities. Only backends
// implementing Scorer support it.
func (g *Gateway) CompleteScored(ctx context.Context, in models.Prompt, model models.Model, opts models.Options) (ScoredResult, error) {
	b, kind, err := g.prepare(in, model)
	if err != nil {
		return ScoredResult{}, err
	}
	s, ok := b.(Scorer)
	if !ok {
		return ScoredResult{}, fmt.Errorf("%w: %s", ErrNoScores, model)
	}

	call := opts
	call.Uncertainty = true
	choices, err := s.CompleteScored(ctx, in, callOptions(kind, call))
	if errors.Is(err, ErrNoScores) {
		return ScoredResult{}, fmt.Errorf("%w: %s", err, model)
	}
	if err != nil {
		g.logger.Warn("scored completion failed",
			zap.String("model", model.String()),
			zap.Error(err),
		)
		// The record reissues as a plain completion; scores are only
		// requested through CompleteScored.
		opts.Uncertainty = false
		return ScoredResult{Failure: models.NewFailure(err, in, model, opts)}, nil
	}
	return ScoredResult{Choices: choices}, nil
}

// Close releases backends that hold resources.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for m, b := range g.backends {
		if c, ok := b.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
		delete(g.backends, m)
	}
	return errors.Join(errs...)
}

func (g *Gateway) prepare(in models.Prompt, model models.Model) (Backend, models.Backend, error) {
	kind, err := model.Backend()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnknownModel, err)
	}
	if in.IsChat() != model.IsChat() {
		return nil, "", fmt.Errorf("%w: %s takes chat=%t", ErrPromptShape, model, model.IsChat())
	}
	b, err := g.backend(model)
	if err != nil {
		return nil, "", err
	}
	return b, kind, nil
}

// backend returns the cached client for m, building it on first use.
func (g *Gateway) backend(m models.Model) (Backend, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.backends[m]; ok {
		return b, nil
	}
	b, err := g.factory(m)
	if err != nil {
		return nil, fmt.Errorf("init backend %s: %w", m, err)
	}
	g.backends[m] = b
	return b, nil
}

// callOptions adjusts opts to what the backend family accepts.
func callOptions(kind models.Backend, opts models.Options) models.Options {
	if kind == models.BackendLocal && opts.Temperature < minLocalTemperature {
		opts.Temperature = minLocalTemperature
	}
	return opts
}

// cleanAnswer trims the completion; chat answers also lose an echoed "A:" label.
func cleanAnswer(text string, chat bool) string {
	text = strings.TrimSpace(text)
	if chat {
		text = strings.TrimSpace(strings.TrimPrefix(text, "A:"))
	}
	return text
}
