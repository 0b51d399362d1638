package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tnicklin/sysclock/sntp"
)

func newResolveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the time server address that would be used",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, appLogger, err := opts.loadWithLogger()
			if err != nil {
				return err
			}
			defer appLogger.Sync()

			r := sntp.NewResolver(sntp.ResolverParams{Config: cfg.SNTP, Logger: appLogger})
			fmt.Fprintln(cmd.OutOrStdout(), r.Resolve(cmd.Context()))
			return nil
		},
	}
}
