package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/example/rationale-probe/internal/codec"
	"github.com/example/rationale-probe/internal/models"
	"github.com/example/rationale-probe/internal/prompt"
	"github.com/example/rationale-probe/internal/scoring"
)

// Stage families double as the batch directory names.
const (
	FamilyBaseline    = "baseline"
	FamilyParaphrase  = "paraphrase"
	FamilyBootstrap   = "bootstrap"
	FamilyAdversarial = "adversarial"
)

// Families lists every stage family.
func Families() []string {
	return []string{FamilyBaseline, FamilyParaphrase, FamilyBootstrap, FamilyAdversarial}
}

// Default returns a registry holding every stage.
func Default() *Registry {
	r := NewRegistry()
	for _, s := range []*stage{
		{name: "baseline.rationalize", needs: needs{model: true}, run: baselineRationalize},

		{name: "paraphrase.identify", needs: needs{model: true}, run: paraphraseIdentify},
		{name: "paraphrase.format", needs: needs{input: true}, run: paraphraseFormat},
		{name: "paraphrase.rationalize", needs: needs{input: true, model: true}, run: paraphraseRationalize},

		{name: "bootstrap.context", needs: needs{model: true}, run: bootstrapContext},
		{name: "bootstrap.advice", needs: needs{input: true, model: true}, run: bootstrapAdvice},
		{name: "bootstrap.format", needs: needs{input: true}, run: bootstrapFormat},
		{name: "bootstrap.rationalize", needs: needs{input: true, model: true}, run: bootstrapRationalize},

		{name: "adversarial.probe", needs: needs{model: true}, run: adversarialProbe},
		{name: "adversarial.format", needs: needs{input: true}, run: adversarialFormat},
		{name: "adversarial.suite", needs: needs{input: true, model: true}, run: adversarialSuite},
	} {
		r.Register(s)
	}
	for _, family := range Families() {
		r.Register(&stage{name: family + ".evaluate", needs: needs{input: true}, run: evaluate(family)})
	}
	return r
}

// rationalize asks the rationale question for every sample that has a
// scenario and stores the answer or failure in Rationale.
func rationalize(ctx context.Context, env *Env, samples []models.Sample, p Params, scenario func(models.Sample) (string, bool)) (int, error) {
	failed := 0
	for i := range samples {
		s, ok := scenario(samples[i])
		if !ok {
			env.logger().Warn("sample has no scenario, skipping", zap.Int("sample", i))
			continue
		}
		res, err := env.complete(ctx, prompt.TaskRationale, prompt.Query{Scenario: s}, p.Model, rationaleOptions())
		if err != nil {
			return failed, err
		}
		if !res.OK() {
			failed++
		}
		samples[i].Rationale = res.Outcome()
	}
	return failed, nil
}

func baseScenario(s models.Sample) (string, bool) {
	return prompt.Scenario(s.Prompt, s.Advice), s.Prompt != "" && s.Advice != ""
}

func save(env *Env, family string, p Params, samples []models.Sample, failed int) (Result, error) {
	path, err := env.Store.Save(family, p.Output, samples)
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Count: len(samples), Failed: failed}, nil
}

func baselineRationalize(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.ReadBase(p.Safe, p.Domain)
	if err != nil {
		return Result{}, err
	}
	samples = env.announce("RATIONALIZE", samples, p.Test)
	failed, err := rationalize(ctx, env, samples, p, baseScenario)
	if err != nil {
		return Result{}, err
	}
	return save(env, FamilyBaseline, p, samples, failed)
}

func paraphraseIdentify(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.ReadBase(p.Safe, p.Domain)
	if err != nil {
		return Result{}, err
	}
	samples = env.announce("SEMANTIC", samples, p.Test)

	failed := 0
	for i := range samples {
		q := prompt.Query{Context: samples[i].Prompt, Advice: samples[i].Advice}
		res, err := env.complete(ctx, prompt.TaskParaphrase, q, p.Model, listOptions())
		if err != nil {
			return Result{}, err
		}
		if !res.OK() {
			failed++
		}
		samples[i].Paraphrase = itemize(res)
	}
	return save(env, FamilyParaphrase, p, samples, failed)
}

// paraphraseFormat splits each paraphrase list into one sample per
// paraphrase. Items without a question mark are printed and dropped.
func paraphraseFormat(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.Load(FamilyParaphrase, p.Input)
	if err != nil {
		return Result{}, err
	}

	out := []models.Sample{}
	for i, s := range samples {
		items, ok := s.Paraphrase.Items()
		if !ok {
			env.logger().Warn("paraphrase is not a parsed list, skipping", zap.Int("sample", i))
			continue
		}
		if codec.Suspect(items) {
			env.printf("%q\n", items)
		}
		for _, item := range items {
			if !strings.Contains(item, "?") {
				env.printf("%s\n", item)
				continue
			}
			out = append(out, models.Sample{
				Domain:     s.Domain,
				Paraphrase: models.TextOutcome(strings.ReplaceAll(item, codec.StopToken, "")),
			})
		}
	}
	env.printf("%d\n", len(out))
	return save(env, FamilyParaphrase, p, out, 0)
}

func paraphraseRationalize(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.Load(FamilyParaphrase, p.Input)
	if err != nil {
		return Result{}, err
	}
	samples = env.announce("RATIONALIZE", samples, p.Test)
	failed, err := rationalize(ctx, env, samples, p, func(s models.Sample) (string, bool) {
		return s.Paraphrase.Text()
	})
	if err != nil {
		return Result{}, err
	}
	return save(env, FamilyParaphrase, p, samples, failed)
}

func bootstrapContext(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.ReadBase(false, p.Domain)
	if err != nil {
		return Result{}, err
	}
	samples = env.announce("BOOTSTRAP CONTEXT", samples, p.Test)

	failed := 0
	for i := range samples {
		q := prompt.Query{Context: samples[i].Prompt, Advice: samples[i].Advice}
		res, err := env.complete(ctx, prompt.TaskContextBootstrap, q, p.Model, listOptions())
		if err != nil {
			return Result{}, err
		}
		if !res.OK() {
			failed++
		}
		samples[i].NewContext = itemize(res)
	}
	return save(env, FamilyBootstrap, p, samples, failed)
}

// bootstrapAdvice asks for new advice in every generated context. Calls
// that fail are logged and contribute no pairs.
func bootstrapAdvice(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.Load(FamilyBootstrap, p.Input)
	if err != nil {
		return Result{}, err
	}
	samples = env.announce("BOOTSTRAP ADVICE", samples, p.Test)

	failed := 0
	for i := range samples {
		contexts, ok := samples[i].NewContext.Items()
		if !ok {
			env.logger().Warn("new_context is not a parsed list, skipping", zap.Int("sample", i))
			continue
		}
		pairs := []models.BootstrapPair{}
		for _, c := range contexts {
			q := prompt.Query{Context: c, Advice: samples[i].Advice}
			res, err := env.complete(ctx, prompt.TaskAdviceBootstrap, q, p.Model, listOptions())
			if err != nil {
				return Result{}, err
			}
			if !res.OK() {
				failed++
				env.logger().Warn("advice bootstrap failed, dropping context",
					zap.Int("sample", i),
					zap.String("context", c),
					zap.String("error", res.Failure().Error),
				)
				continue
			}
			for _, advice := range codec.Decode(res.Text()) {
				pairs = append(pairs, models.BootstrapPair{Prompt: c, Advice: advice})
			}
		}
		samples[i].Bootstrap = pairs
	}
	return save(env, FamilyBootstrap, p, samples, failed)
}

// bootstrapFormat flattens every bootstrap pair into its own sample.
func bootstrapFormat(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.Load(FamilyBootstrap, p.Input)
	if err != nil {
		return Result{}, err
	}
	out := []models.Sample{}
	for _, s := range samples {
		for _, pair := range s.Bootstrap {
			out = append(out, models.Sample{Prompt: pair.Prompt, Advice: pair.Advice, Domain: s.Domain})
		}
	}
	env.printf("%d\n", len(out))
	return save(env, FamilyBootstrap, p, out, 0)
}

func bootstrapRationalize(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.Load(FamilyBootstrap, p.Input)
	if err != nil {
		return Result{}, err
	}
	samples = env.announce("RATIONALIZE", samples, p.Test)
	failed, err := rationalize(ctx, env, samples, p, baseScenario)
	if err != nil {
		return Result{}, err
	}
	return save(env, FamilyBootstrap, p, samples, failed)
}

func adversarialProbe(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.ReadBase(false, p.Domain)
	if err != nil {
		return Result{}, err
	}
	samples = env.announce("INTERNAL PROBING", samples, p.Test)

	failed := 0
	for i := range samples {
		q := prompt.Query{Context: samples[i].Prompt, Advice: samples[i].Advice}
		res, err := env.complete(ctx, prompt.TaskBenefits, q, p.Model, models.DefaultOptions().WithMaxTokens(benefitTokens))
		if err != nil {
			return Result{}, err
		}
		if !res.OK() {
			failed++
		}
		samples[i].Benefits = itemize(res)
	}
	return save(env, FamilyAdversarial, p, samples, failed)
}

// adversarialFormat makes one sample per benefit. Single-item lists are
// printed for inspection but kept.
func adversarialFormat(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.Load(FamilyAdversarial, p.Input)
	if err != nil {
		return Result{}, err
	}
	out := []models.Sample{}
	for i, s := range samples {
		benefits, ok := s.Benefits.Items()
		if !ok {
			env.logger().Warn("benefits is not a parsed list, skipping", zap.Int("sample", i))
			continue
		}
		if codec.Suspect(benefits) {
			env.printf("%q\n", benefits)
		}
		for _, b := range benefits {
			out = append(out, models.Sample{Prompt: s.Prompt, Advice: s.Advice, Benefit: b, Domain: s.Domain})
		}
	}
	return save(env, FamilyAdversarial, p, out, 0)
}

func adversarialSuite(ctx context.Context, env *Env, p Params) (Result, error) {
	samples, err := env.Store.Load(FamilyAdversarial, p.Input)
	if err != nil {
		return Result{}, err
	}
	samples = env.announce("ADVERSARIAL SUITE", samples, p.Test)

	task := prompt.TaskAdversarialZeroShot
	if p.Demo {
		task = prompt.TaskAdversarial
	}
	failed := 0
	for i := range samples {
		q := prompt.Query{Context: samples[i].Prompt, Advice: samples[i].Advice, Knowledge: samples[i].Benefit}
		res, err := env.complete(ctx, task, q, p.Model, rationaleOptions())
		if err != nil {
			return Result{}, err
		}
		if !res.OK() {
			failed++
		}
		samples[i].Rationale = res.Outcome()
	}
	return save(env, FamilyAdversarial, p, samples, failed)
}

// evaluate scores a rationale batch of family and writes the report next to it.
func evaluate(family string) func(context.Context, *Env, Params) (Result, error) {
	return func(ctx context.Context, env *Env, p Params) (Result, error) {
		samples, err := env.Store.Load(family, p.Input)
		if err != nil {
			return Result{}, err
		}
		report, err := scoring.ComputeAccuracy(samples, p.Safe)
		if err != nil {
			return Result{}, err
		}
		path, err := env.Store.Save(family, p.Output, report)
		if err != nil {
			return Result{}, err
		}
		overall := report[models.OverallKey]
		env.logger().Info("accuracy",
			zap.String("family", family),
			zap.Float64("accuracy", overall.Accuracy),
			zap.Float64("error_rate", overall.ErrorRate),
			zap.Int("size", overall.Size),
		)
		return Result{Path: path, Count: len(samples)}, nil
	}
}
