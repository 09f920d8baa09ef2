package cli

import (
	"github.com/spf13/cobra"

	"github.com/heigit/isobench/internal/isochrones"
	"github.com/heigit/isobench/internal/loadtest/output"
)

func newMatrixCmd(root *rootOptions) *cobra.Command {
	opts := &configFlags{}
	var noColor bool

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print the scenario matrix without running it",
		Long: `Expand the configuration into its scenarios and print them in execution
order, grouped by range type and source file. Source files are not read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			descriptors := isochrones.BuildMatrix(cfg.MatrixConfig(), root.loggerOrNop())
			output.NewConsoleOutput(output.ConsoleOutputConfig{
				Writer:  cmd.OutOrStdout(),
				NoColor: noColor,
			}).PrintMatrix(descriptors)
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}
