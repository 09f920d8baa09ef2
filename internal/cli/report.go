package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heigit/isobench/internal/loadtest/output"
)

func newReportCmd() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "report <file>",
		Short: "Print the summary of a saved JSON report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := output.ReadReport(args[0])
			if err != nil {
				return err
			}
			if r.Result == nil {
				return fmt.Errorf("report %s contains no result", args[0])
			}

			output.NewConsoleOutput(output.ConsoleOutputConfig{
				Writer:  cmd.OutOrStdout(),
				NoColor: noColor,
			}).PrintSummary(r.Result)

			if !r.Result.Passed {
				return ErrRunFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}
