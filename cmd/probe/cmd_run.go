package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/rationale-probe/internal/models"
	"github.com/example/rationale-probe/internal/pipeline"
)

var (
	stageInput  string
	stageOutput string
	stageModel  string
	stageDomain string
	stageSafe   bool
	stageDemo   bool
	stageTest   bool
)

// runCmd executes one pipeline stage
var runCmd = &cobra.Command{
	Use:   "run [stage]",
	Short: "Run a single pipeline stage",
	Long: `Runs one named stage. Use "probe stages" to list them.

Examples:
  probe run baseline.rationalize --model chat_turbo --output turbo_unsafe
  probe run paraphrase.format --input turbo_identify --output turbo_formatted
  probe run adversarial.suite --input benefits --output gpt4_demo --model chat_gpt4 --demo`,
	Args: cobra.ExactArgs(1),
	RunE: runStage,
}

// evaluateCmd scores a rationale batch of a family
var evaluateCmd = &cobra.Command{
	Use:   "evaluate [family]",
	Short: "Compute per-domain accuracy for a rationale batch",
	Long: `Scores the rationales of <data_dir>/<family>/<input>.json against the safe
or unsafe ground truth and writes the report to <data_dir>/<family>/<output>.json.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: pipeline.Families(),
	RunE:      runEvaluate,
}

func init() {
	runCmd.Flags().StringVarP(&stageInput, "input", "i", "", "Input batch name inside the stage family directory")
	runCmd.Flags().StringVarP(&stageOutput, "output", "o", "", "Output batch name")
	runCmd.Flags().StringVarP(&stageModel, "model", "m", "", "Model identifier (see \"probe models\")")
	runCmd.Flags().StringVarP(&stageDomain, "domain", "d", string(models.DomainAll), "Restrict base examples to one domain")
	runCmd.Flags().BoolVar(&stageSafe, "safe", false, "Use the safe base examples and ground truth")
	runCmd.Flags().BoolVar(&stageDemo, "demo", false, "Include demonstrations in adversarial prompts")
	runCmd.Flags().BoolVar(&stageTest, "test", false, "Run on a seeded subsample only")
	_ = runCmd.MarkFlagRequired("output")

	evaluateCmd.Flags().StringVarP(&stageInput, "input", "i", "", "Rationale batch name")
	evaluateCmd.Flags().StringVarP(&stageOutput, "output", "o", "", "Report name")
	evaluateCmd.Flags().BoolVar(&stageSafe, "safe", false, "Score against the safe ground truth")
	_ = evaluateCmd.MarkFlagRequired("input")
	_ = evaluateCmd.MarkFlagRequired("output")
}

func stageParams() (pipeline.Params, error) {
	domain, err := models.ParseDomain(stageDomain)
	if err != nil {
		return pipeline.Params{}, err
	}
	return pipeline.Params{
		Input:  stageInput,
		Output: stageOutput,
		Model:  models.Model(stageModel),
		Domain: domain,
		Safe:   stageSafe,
		Demo:   stageDemo,
		Test:   stageTest,
	}, nil
}

func runStage(cmd *cobra.Command, args []string) error {
	p, err := stageParams()
	if err != nil {
		return err
	}
	res, err := app.stages.Run(cmd.Context(), args[0], app.env, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d samples to %s (%d failed)\n", res.Count, res.Path, res.Failed)
	return nil
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	family := strings.ToLower(args[0])
	p := pipeline.Params{
		Input:  stageInput,
		Output: stageOutput,
		Domain: models.DomainAll,
		Safe:   stageSafe,
	}
	res, err := app.stages.Run(cmd.Context(), family+".evaluate", app.env, p)
	if err != nil {
		return err
	}
	var report models.AccuracyReport
	if err := readReport(res.Path, &report); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, d := range models.Domains() {
		printAccuracy(out, string(d), report[string(d)])
	}
	printAccuracy(out, models.OverallKey, report[models.OverallKey])
	return nil
}
