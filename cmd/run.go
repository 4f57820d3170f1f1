package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/plugin"
	"github.com/signalnine/crucible/internal/result"
	"github.com/spf13/cobra"
)

var (
	flagTarget       string
	flagRoot         string
	flagWorkspace    string
	flagTimeout      time.Duration
	flagPollInterval time.Duration
	flagArgs         []string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build and run test targets",
		RunE:  runTests,
	}
	cmd.Flags().StringVar(&flagTarget, "target", "all", "target name, comma separated names, or all")
	cmd.Flags().StringVar(&flagRoot, "root", ".", "directory for logs and trace events")
	cmd.Flags().StringVar(&flagWorkspace, "workspace", "", "override the config workspace")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "override the parallel batch timeout")
	cmd.Flags().DurationVar(&flagPollInterval, "poll-interval", 0, "override the parallel poll interval")
	cmd.Flags().StringSliceVar(&flagArgs, "args", nil, "config vars as key=value")
	return cmd
}

func loadConfig() (*config.Config, error) {
	overrides, err := config.ParseVarArgs(flagArgs)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadIn(cfgFile, flagWorkspace, overrides)
	if err != nil {
		return nil, err
	}
	applyRunFlags(cfg)
	return cfg, nil
}

func applyRunFlags(cfg *config.Config) {
	if flagTimeout > 0 {
		cfg.Timeout = flagTimeout
	}
	if flagPollInterval > 0 {
		cfg.PollInterval = flagPollInterval
	}
}

func runTests(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	layout, err := result.NewLayout(flagRoot)
	if err != nil {
		return result.Wrap(result.PluginConfig, err, "creating run root")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Run root: %s\n", layout.Root)

	p, err := plugin.New(cfg, plugin.Options{
		Layout: layout,
		Logger: logger,
		Out:    cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := p.Run(ctx, flagTarget); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All targets passed.")
	return nil
}
