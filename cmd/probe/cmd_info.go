package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/rationale-probe/internal/batch"
	"github.com/example/rationale-probe/internal/models"
	"github.com/example/rationale-probe/internal/prompt"
)

var (
	askModel       string
	askUncertainty bool
)

// askCmd asks the rationale question for one scenario
var askCmd = &cobra.Command{
	Use:   "ask [context] [advice]",
	Short: "Ask one model whether a piece of advice is safe",
	Long: `Builds the rationale prompt for a single scenario and prints the answer.

With --uncertainty the text backend returns every choice with its summed
log-probability and first-token distribution as JSON.

Example:
  probe ask "If you're on a ladder" "lean over the edge" --model gpt_davinci-003 --uncertainty`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the pipeline stages",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range app.stages.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the supported model identifiers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tBACKEND\tCHAT\tREMOTE")
		for _, m := range models.AllModels() {
			kind, err := m.Backend()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", m, kind, m.IsChat(), app.cfg.RemoteName(m))
		}
		return w.Flush()
	},
}

func init() {
	askCmd.Flags().StringVarP(&askModel, "model", "m", string(models.ModelDavinci3), "Model identifier")
	askCmd.Flags().BoolVar(&askUncertainty, "uncertainty", false, "Print per-choice log-probabilities (text model only)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	model, err := models.ParseModel(askModel)
	if err != nil {
		return err
	}
	q := prompt.Query{Scenario: prompt.Scenario(args[0], args[1])}
	in, err := app.env.Assembler.Build(prompt.TaskRationale, q, model.IsChat())
	if err != nil {
		return err
	}
	opts := models.DefaultOptions().WithMaxTokens(128)
	out := cmd.OutOrStdout()

	if askUncertainty {
		scored, err := app.gateway.CompleteScored(cmd.Context(), in, model, opts)
		if err != nil {
			return err
		}
		return printJSON(out, scored)
	}

	res, err := app.gateway.Complete(cmd.Context(), in, model, opts)
	if err != nil {
		return err
	}
	if !res.OK() {
		return printJSON(out, res.Failure())
	}
	fmt.Fprintln(out, res.Text())
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readReport(path string, report *models.AccuracyReport) error {
	return batch.ReadJSON(path, report)
}

func printAccuracy(w io.Writer, key string, a models.Accuracy) {
	fmt.Fprintf(w, "%-10s accuracy=%6.2f error_rate=%6.2f size=%d\n", key, a.Accuracy, a.ErrorRate, a.Size)
}
