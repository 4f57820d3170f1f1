package cmd

import (
	"fmt"

	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/plugin"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List enabled targets and their owners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, nil)
			if err != nil {
				return err
			}
			title := cases.Title(language.English)
			fmt.Fprintf(cmd.OutOrStdout(), "%s targets:\n", title.String(cfg.Plugin))
			plugin.List(cfg, cmd.OutOrStdout())
			return nil
		},
	}
}
