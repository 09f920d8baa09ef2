package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heigit/isobench/internal/config"
	"github.com/heigit/isobench/internal/isochrones"
	"github.com/heigit/isobench/internal/loadtest/engine"
	"github.com/heigit/isobench/internal/loadtest/output"
)

type runOptions struct {
	configFlags

	outputPath     string
	quiet          bool
	noColor        bool
	updateInterval time.Duration
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an isochrones range benchmark",
		Long: `Run every scenario of the benchmark matrix against the configured service.

Config file mode:
  isobench run -c bench.yaml

Overriding file values:
  isobench run -c bench.yaml --users 20 --unit time --parallel

Flags only:
  isobench run --base-url http://localhost:8082/ors --profile driving-car \
    --source data/heidelberg.csv --query-sizes 1,5,10 --ranges 300,600 --unit distance`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			return runBenchmark(cmd, cfg, opts, root.loggerOrNop())
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Write a JSON report to this file")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Disable progress output, print only PASSED or FAILED")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().DurationVar(&opts.updateInterval, "update-interval", time.Second, "Interval between progress updates")

	return cmd
}

// runBenchmark composes the scenario matrix, runs it and reports the result.
// It returns ErrRunFailed when the run finished but did not pass.
func runBenchmark(cmd *cobra.Command, cfg *config.Config, opts *runOptions, logger *zap.Logger) error {
	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		Writer:  cmd.OutOrStdout(),
		Quiet:   opts.quiet,
		NoColor: opts.noColor,
	})

	logConfigInfo(logger, cfg)

	descriptors := isochrones.BuildMatrix(cfg.MatrixConfig(), logger)
	composer := isochrones.NewComposer(cfg.ComposerConfig(), isochrones.NewBodyAssembler(logger), logger)
	scenarios := composer.ComposeAll(descriptors)

	console.PrintConfig(cfg, len(scenarios))

	eng, err := engine.NewEngine(cfg, scenarios, engine.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := runWithProgress(ctx, eng, console, opts)
	if result == nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	console.PrintSummary(result)

	if opts.outputPath != "" {
		if err := output.WriteReport(opts.outputPath, output.NewReport(cfg, result)); err != nil {
			return err
		}
		logger.Info("Report written", zap.String("path", opts.outputPath))
	}

	if runErr != nil {
		logger.Error("Run did not complete", zap.Error(runErr))
		return fmt.Errorf("%w: %v", ErrRunFailed, runErr)
	}
	if !result.Passed {
		return ErrRunFailed
	}
	return nil
}

// runWithProgress runs the engine and refreshes the progress display until
// it returns.
func runWithProgress(ctx context.Context, eng *engine.Engine, console *output.ConsoleOutput, opts *runOptions) (*engine.TestResult, error) {
	type outcome struct {
		result *engine.TestResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := eng.Run(ctx)
		done <- outcome{result, err}
	}()

	interval := opts.updateInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case o := <-done:
			return o.result, o.err
		case <-ticker.C:
			if !eng.IsRunning() || opts.quiet {
				continue
			}
			finished, total := eng.GetScenarioCounts()
			stats := output.StatsFromMetrics(eng.GetMetrics(), eng.GetProgress(), finished, total)
			if console.IsTTY() {
				console.Update(stats)
			} else {
				console.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// logConfigInfo logs the resolved configuration at startup.
func logConfigInfo(logger *zap.Logger, cfg *config.Config) {
	logger.Info("Starting benchmark",
		zap.String("name", cfg.Name),
		zap.Strings("source_files", cfg.SourceFiles),
		zap.String("profile", cfg.TargetProfile),
		zap.Int("users", cfg.NumConcurrentUsers),
		zap.Ints("query_sizes", cfg.QuerySizes),
		zap.Float64s("ranges", cfg.Ranges),
		zap.String("test_unit", cfg.TestUnit),
		zap.String("base_url", cfg.BaseURL),
		zap.Stringer("mode", cfg.Mode()),
		zap.String("feed_strategy", cfg.FeedStrategy),
		zap.Duration("timeout", cfg.Timeout.GetDuration(config.DefaultTimeout)),
	)
	logger.Info("Test type",
		zap.String("type", "isochrones range"),
		zap.String("injection", "at once users"),
	)
}
