package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/example/rationale-probe/internal/models"
)

// ErrMissingField is returned when no record in a batch carries the field
// being recovered.
var ErrMissingField = errors.New("field not present in batch")

// NoErrorsNotice is printed when a batch has nothing to recover.
const NoErrorsNotice = "No errors found!"

// Retrier reissues a recorded failed call.
type Retrier interface {
	Retry(ctx context.Context, f *models.Failure) (models.Result, error)
}

// Transform converts a recovered completion into the stored field value,
// e.g. decoding a delimited list. A nil Transform stores the text as is.
type Transform func(text string) *models.Outcome

// Summary reports one recovery pass.
type Summary struct {
	Total     int `json:"total"`
	Failed    int `json:"failed"`
	Recovered int `json:"recovered"`
}

type Runner struct {
	retrier Retrier
	logger  *zap.Logger
	out     io.Writer
}

// NewRunner returns a Runner that prints console notices to out.
func NewRunner(retrier Retrier, logger *zap.Logger, out io.Writer) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{retrier: retrier, logger: logger, out: out}
}

// Rerun retries every record of the batch at path whose field holds a
// failure record, sequentially and in file order. Recovered values replace
// the failure; everything else is left byte for byte. The file is rewritten
// in place only when at least one failure was found.
func (r *Runner) Rerun(ctx context.Context, path, field string, transform Transform) (Summary, error) {
	var records []record
	if err := ReadJSON(path, &records); err != nil {
		return Summary{}, err
	}

	sum := Summary{Total: len(records)}
	seen := false
	for i := range records {
		raw, ok := records[i].get(field)
		if !ok {
			continue
		}
		seen = true

		var current models.Outcome
		if err := json.Unmarshal(raw, &current); err != nil {
			return sum, fmt.Errorf("record %d field %q: %w", i, field, err)
		}
		if !current.Failed() {
			continue
		}
		sum.Failed++

		res, err := r.retrier.Retry(ctx, current.Failure())
		if err != nil {
			return sum, fmt.Errorf("record %d: %w", i, err)
		}
		if !res.OK() {
			r.logger.Debug("retry still failing",
				zap.Int("record", i),
				zap.String("error", res.Failure().Error),
			)
			continue
		}

		next := res.Outcome()
		if transform != nil {
			next = transform(res.Text())
		}
		b, err := json.Marshal(next)
		if err != nil {
			return sum, fmt.Errorf("record %d: %w", i, err)
		}
		records[i].set(field, b)
		sum.Recovered++
	}

	if len(records) > 0 && !seen {
		return sum, fmt.Errorf("%w: %q in %s", ErrMissingField, field, path)
	}
	if sum.Failed == 0 {
		fmt.Fprintln(r.out, NoErrorsNotice)
		return sum, nil
	}

	if err := WriteJSON(path, records); err != nil {
		return sum, err
	}
	r.logger.Info("batch rerun complete",
		zap.String("path", path),
		zap.String("field", field),
		zap.Int("failed", sum.Failed),
		zap.Int("recovered", sum.Recovered),
	)
	return sum, nil
}
