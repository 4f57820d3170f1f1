package cmd

import (
	"fmt"

	"github.com/signalnine/crucible/internal/plugin"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config without building or running anything",
		Long:  "Load and schema-check the config, then construct every builder, the coverage generator and every target.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := plugin.Check(cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d targets)\n", cfgFile, len(cfg.Targets))
			return nil
		},
	}
}
