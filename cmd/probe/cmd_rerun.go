package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/rationale-probe/internal/batch"
	"github.com/example/rationale-probe/internal/pipeline"
)

var (
	rerunFamily string
	rerunName   string
	rerunPath   string
	rerunField  string
)

// rerunCmd retries the failed calls recorded in a batch
var rerunCmd = &cobra.Command{
	Use:   "rerun",
	Short: "Retry the failed completions stored in a batch file",
	Long: `Retries every record whose field holds a failure record, using the exact
prompt, model and options stored with the failure. Recovered values replace the
failure and the file is rewritten in place. Records that fail again keep their
failure record, so the command can be repeated until it reports no errors.

Examples:
  probe rerun --family baseline --name turbo_unsafe --field rationale
  probe rerun --path data/adversarial/benefits.json --field benefits`,
	Args: cobra.NoArgs,
	RunE: runRerun,
}

func init() {
	rerunCmd.Flags().StringVar(&rerunFamily, "family", "", "Stage family directory of the batch")
	rerunCmd.Flags().StringVar(&rerunName, "name", "", "Batch name inside the family directory")
	rerunCmd.Flags().StringVar(&rerunPath, "path", "", "Batch file path (instead of --family/--name)")
	rerunCmd.Flags().StringVarP(&rerunField, "field", "f", "rationale", "Sample field holding the completions")
	rerunCmd.MarkFlagsMutuallyExclusive("path", "family")
	rerunCmd.MarkFlagsMutuallyExclusive("path", "name")
	rerunCmd.MarkFlagsRequiredTogether("family", "name")
}

func runRerun(cmd *cobra.Command, args []string) error {
	runner := batch.NewRunner(app.gateway, app.logger, cmd.OutOrStdout())

	var (
		sum batch.Summary
		err error
	)
	switch {
	case rerunPath != "":
		sum, err = runner.Rerun(cmd.Context(), rerunPath, rerunField, pipeline.TransformFor(rerunField))
	case rerunFamily != "":
		sum, err = pipeline.Rerun(cmd.Context(), app.env, runner, rerunFamily, rerunName, rerunField)
	default:
		return errors.New("either --path or --family and --name is required")
	}
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "recovered %d of %d failed records\n", sum.Recovered, sum.Failed)
	}
	return nil
}
