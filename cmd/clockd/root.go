package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tnicklin/sysclock/config"
	"github.com/tnicklin/sysclock/logger"
)

var defaultConfigFiles = []string{"config/config.yaml", "config/secrets.yaml"}

type rootOptions struct {
	configFiles []string
	logLevel    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "clockd",
		Short: "SNTP-synchronized system clock",
		Long: `clockd keeps a UTC estimate corrected against an SNTP server and
records every exchange in a local sync history.

Examples:
  clockd run                     # Run the clock daemon
  clockd sync --verify           # One exchange, cross-checked against a full NTP query
  clockd history --since 6h      # Show recent exchanges`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.configFiles, "config", defaultConfigFiles,
		"YAML config files, merged in order")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"override logger.level from config")

	cmd.AddCommand(
		newRunCommand(opts),
		newSyncCommand(opts),
		newResolveCommand(opts),
		newHistoryCommand(opts),
	)
	return cmd
}

// load reads the configured files. With no config files present the
// defaults are used.
func (o *rootOptions) load() (*config.AppConfig, error) {
	cfg, err := config.LoadWithDefaults(o.configFiles...)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = config.Defaults()
	case err != nil:
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logger.Level = o.logLevel
	}
	return cfg, nil
}

func (o *rootOptions) loadWithLogger() (*config.AppConfig, *logger.DefaultLogger, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, appLogger, nil
}
