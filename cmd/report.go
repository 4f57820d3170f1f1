package cmd

import (
	"github.com/signalnine/crucible/internal/report"
	"github.com/signalnine/crucible/internal/result"
	"github.com/spf13/cobra"
)

var (
	flagFormat     string
	flagPlugin     string
	flagReportRoot string
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [trace-file]",
		Short: "Summarize a trace-event file written by run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := result.Layout{Root: flagReportRoot}.TracePath(flagPlugin)
			if len(args) > 0 {
				path = args[0]
			}
			return report.Generate(path, flagFormat, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "table", "output format (table, markdown, json)")
	cmd.Flags().StringVar(&flagPlugin, "plugin", "native-ut", "plugin whose trace file to read when none is given")
	cmd.Flags().StringVar(&flagReportRoot, "root", ".", "run root the trace file was written to")
	return cmd
}
