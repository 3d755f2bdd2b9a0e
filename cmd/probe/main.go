package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/rationale-probe/internal/batch"
	"github.com/example/rationale-probe/internal/config"
	"github.com/example/rationale-probe/internal/logging"
	"github.com/example/rationale-probe/internal/pipeline"
	"github.com/example/rationale-probe/internal/prompt"
	"github.com/example/rationale-probe/internal/providers/llm"
)

var (
	// Global flags
	configPath string
	verbose    bool
	dryRun     bool

	// app is built once per invocation by PersistentPreRunE.
	app *application
)

type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	gateway *llm.Gateway
	env     *pipeline.Env
	stages  *pipeline.Registry
}

var rootCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe whether language models rationalize unsafe advice",
	Long: `probe runs the rationalization experiments against text and chat models.

Each stage reads a batch from the data directory, issues one completion per
sample and writes a new batch. Calls that fail are stored as failure records
and can be recovered later with "probe rerun".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApplication(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		app = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app == nil {
			return
		}
		if err := app.gateway.Close(); err != nil {
			app.logger.Warn("failed to close backends", zap.Error(err))
		}
		_ = app.logger.Sync()
	},
}

func newApplication(out io.Writer) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = logger.With(zap.String("run_id", uuid.NewString()))

	factory := llm.ConfigFactory(cfg)
	if dryRun {
		factory = llm.MockFactory()
		logger.Info("dry run: using the mock backend for every model")
	}
	gateway := llm.NewGateway(factory, logger)

	return &application{
		cfg:     cfg,
		logger:  logger,
		gateway: gateway,
		stages:  pipeline.Default(),
		env: &pipeline.Env{
			Store:     batch.NewStore(cfg.DataDir),
			Gateway:   gateway,
			Assembler: prompt.NewAssembler(prompt.FileSource{Dir: cfg.FewShotDir}),
			Sampling:  cfg.Sampling,
			Logger:    logger,
			Out:       out,
		},
	}, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "probe.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Answer every call with the offline mock backend")

	rootCmd.AddCommand(runCmd, rerunCmd, evaluateCmd, askCmd, stagesCmd, modelsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
