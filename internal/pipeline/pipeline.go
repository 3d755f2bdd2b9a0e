// Package pipeline holds the experiment stages. Each stage reads a batch,
// issues one completion per sample in order, and writes a new batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/example/rationale-probe/internal/batch"
	"github.com/example/rationale-probe/internal/codec"
	"github.com/example/rationale-probe/internal/config"
	"github.com/example/rationale-probe/internal/models"
	"github.com/example/rationale-probe/internal/prompt"
)

var (
	ErrUnknownStage  = errors.New("unknown stage")
	ErrInvalidParams = errors.New("invalid stage parameters")
)

const (
	rationaleTokens = 128
	benefitTokens   = 128
)

// Completer is the gateway surface stages call.
type Completer interface {
	Complete(ctx context.Context, in models.Prompt, model models.Model, opts models.Options) (models.Result, error)
}

// Env carries what every stage shares for one invocation.
type Env struct {
	Store     *batch.Store
	Gateway   Completer
	Assembler *prompt.Assembler
	Sampling  config.SamplingConfig
	Logger    *zap.Logger
	// Out receives the console notices.
	Out io.Writer
}

// Params selects what a stage reads and writes.
type Params struct {
	Input  string
	Output string
	Model  models.Model
	Domain models.Domain
	Safe   bool
	// Demo adds demonstrations to adversarial prompts.
	Demo bool
	// Test subsamples the input before calling any model.
	Test bool
}

// Result describes the batch a stage wrote.
type Result struct {
	Stage  string `json:"stage"`
	Path   string `json:"path"`
	Count  int    `json:"count"`
	Failed int    `json:"failed"`
}

type Stage interface {
	Name() string
	Run(ctx context.Context, env *Env, p Params) (Result, error)
}

// needs lists the parameters a stage cannot run without.
type needs struct {
	input bool
	model bool
}

type stage struct {
	name  string
	needs needs
	run   func(ctx context.Context, env *Env, p Params) (Result, error)
}

func (s *stage) Name() string { return s.name }

func (s *stage) Run(ctx context.Context, env *Env, p Params) (Result, error) {
	if p.Output == "" {
		return Result{}, fmt.Errorf("%w: %s needs an output name", ErrInvalidParams, s.name)
	}
	if s.needs.input && p.Input == "" {
		return Result{}, fmt.Errorf("%w: %s needs an input name", ErrInvalidParams, s.name)
	}
	if s.needs.model {
		if _, err := models.ParseModel(string(p.Model)); err != nil {
			return Result{}, fmt.Errorf("%w: %s: %v", ErrInvalidParams, s.name, err)
		}
	}
	if p.Domain == "" {
		p.Domain = models.DomainAll
	}

	res, err := s.run(ctx, env, p)
	if err != nil {
		return res, fmt.Errorf("%s: %w", s.name, err)
	}
	res.Stage = s.name
	env.logger().Info("stage complete",
		zap.String("stage", s.name),
		zap.String("model", p.Model.String()),
		zap.String("path", res.Path),
		zap.Int("count", res.Count),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

type Registry struct {
	stages map[string]Stage
}

func NewRegistry() *Registry {
	return &Registry{stages: map[string]Stage{}}
}

func (r *Registry) Register(s Stage) {
	r.stages[s.Name()] = s
}

func (r *Registry) Get(name string) (Stage, bool) {
	s, ok := r.stages[name]
	return s, ok
}

// Names returns the registered stage names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.stages))
	for name := range r.stages {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Run(ctx context.Context, name string, env *Env, p Params) (Result, error) {
	s, ok := r.Get(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	return s.Run(ctx, env, p)
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return io.Discard
	}
	return e.Out
}

func (e *Env) printf(format string, args ...any) {
	fmt.Fprintf(e.out(), format, args...)
}

// announce subsamples in test mode and prints the run banner.
func (e *Env) announce(label string, samples []models.Sample, test bool) []models.Sample {
	if test {
		samples = batch.Subsample(samples, e.Sampling.Seed, e.Sampling.Size)
	}
	e.printf("RUNNING %s ON %d EXAMPLES\n", label, len(samples))
	return samples
}

func (e *Env) complete(ctx context.Context, task prompt.Task, q prompt.Query, model models.Model, opts models.Options) (models.Result, error) {
	in, err := e.Assembler.Build(task, q, model.IsChat())
	if err != nil {
		return models.Result{}, err
	}
	return e.Gateway.Complete(ctx, in, model, opts)
}

// itemize stores a successful completion as its decoded item list.
func itemize(res models.Result) *models.Outcome {
	if !res.OK() {
		return res.Outcome()
	}
	return models.ItemsOutcome(codec.Decode(res.Text()))
}

func listOptions() models.Options {
	return models.DefaultOptions().WithStop(codec.StopToken)
}

func rationaleOptions() models.Options {
	return models.DefaultOptions().WithMaxTokens(rationaleTokens)
}
