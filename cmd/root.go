package cmd

import (
	"log/slog"

	"github.com/signalnine/crucible/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	logger    *slog.Logger
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "crucible",
		Short:        "Build, run and report on test targets",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(logLevel, logFormat, cmd.ErrOrStderr())
			slog.SetDefault(logger)
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "crucible.yaml", "config file path")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newValidateCmd())
	return root
}
