package pipeline

import (
	"context"

	"github.com/example/rationale-probe/internal/batch"
	"github.com/example/rationale-probe/internal/codec"
	"github.com/example/rationale-probe/internal/models"
)

// listFields hold delimited lists; a recovered completion for one of them is
// decoded before it is stored.
var listFields = map[string]bool{
	"benefits":    true,
	"new_context": true,
	"paraphrase":  true,
}

// TransformFor returns the rerun transform for a batch field.
func TransformFor(field string) batch.Transform {
	if !listFields[field] {
		return nil
	}
	return func(text string) *models.Outcome {
		return models.ItemsOutcome(codec.Decode(text))
	}
}

// Rerun recovers the failed calls stored in field of family/name.
func Rerun(ctx context.Context, env *Env, runner *batch.Runner, family, name, field string) (batch.Summary, error) {
	return runner.Rerun(ctx, env.Store.Path(family, name), field, TransformFor(field))
}
