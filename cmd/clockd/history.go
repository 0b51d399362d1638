package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tnicklin/sysclock/store"
)

type historyOptions struct {
	since time.Duration
	limit int
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	hopts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded SNTP exchanges, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, appLogger, err := opts.loadWithLogger()
			if err != nil {
				return err
			}
			defer appLogger.Sync()

			ctx := cmd.Context()
			st := store.NewSQLiteStore(store.Params{Path: cfg.Store.Path, Logger: appLogger})
			if err := st.Open(ctx); err != nil {
				return fmt.Errorf("open sync history store: %w", err)
			}
			defer st.Close()
			if err := st.RestoreFromDisk(ctx, cfg.Store.Path); err != nil {
				return fmt.Errorf("restore sync history: %w", err)
			}

			records, err := st.ListSince(ctx, time.Now().Add(-hopts.since), hopts.limit)
			if err != nil {
				return fmt.Errorf("list sync history: %w", err)
			}
			return writeHistory(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().DurationVar(&hopts.since, "since", 24*time.Hour, "how far back to list")
	cmd.Flags().IntVar(&hopts.limit, "limit", 20, "maximum rows, 0 for all")
	return cmd
}

func writeHistory(w io.Writer, records []store.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tSERVER\tSTATUS\tSTRATUM\tOFFSET\tUPDATED")
	for _, r := range records {
		offset, updated := "-", "-"
		if r.Succeeded() {
			offset = fmt.Sprintf("%+.6fs", r.Offset.Float64())
			updated = r.Updated.Time().Format(time.RFC3339Nano)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.RecordedAt.Local().Format(time.DateTime), r.Server, r.Status, r.Stratum, offset, updated)
	}
	return tw.Flush()
}
