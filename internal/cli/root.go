// Package cli implements the isobench command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/heigit/isobench/internal/logging"
)

var version = "0.1.0"

// ErrRunFailed is returned when a run finished but did not pass.
var ErrRunFailed = errors.New("benchmark run failed")

// rootOptions holds the persistent flags and the logger built from them.
type rootOptions struct {
	logLevel  string
	logFormat string
	logFile   string

	logger *zap.Logger
}

// NewRootCmd creates the isobench command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "isobench",
		Short:   "Load test the isochrones endpoint of an openrouteservice instance",
		Version: version,
		Long: `isobench expands a benchmark configuration into a matrix of scenarios
(range type x source file x query size), draws coordinates from CSV source
files and sends batched isochrone requests with all users started at once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var outputPaths []string
			if opts.logFile != "" {
				outputPaths = []string{opts.logFile}
			}
			logger, err := logging.New(logging.Options{
				Level:       opts.logLevel,
				Format:      logging.Format(opts.logFormat),
				OutputPaths: outputPaths,
			})
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", string(logging.FormatConsole), "Log format (console, json)")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file instead of stderr")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newMatrixCmd(opts))
	cmd.AddCommand(newReportCmd())

	return cmd
}

// Execute runs the root command with the process arguments.
// This is called by main.main().
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil && !errors.Is(err, ErrRunFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// loggerOrNop returns the configured logger, or a no-op logger when the
// persistent pre-run did not execute.
func (o *rootOptions) loggerOrNop() *zap.Logger {
	if o.logger == nil {
		return zap.NewNop()
	}
	return o.logger
}
