package llm

import (
	"context"

	"github.com/example/rationale-probe/internal/models"
)

// Backend is one completion client. Implementations return remote failures
// as errors; the Gateway turns them into failure records.
type Backend interface {
	Complete(ctx context.Context, in models.Prompt, opts models.Options) (string, error)
}

// Scorer is implemented by backends that expose token log-probabilities.
type Scorer interface {
	CompleteScored(ctx context.Context, in models.Prompt, opts models.Options) ([]ScoredChoice, error)
}

// ScoredChoice is one completion choice with its likelihood.
type ScoredChoice struct {
	Completion     string  `json:"completion"`
	LogProbability float64 `json:"log_probability"`
	// FirstTokenDistribution maps the top candidate first tokens to their
	// log-probabilities.
	FirstTokenDistribution map[string]float64 `json:"first_token_distribution"`
}
