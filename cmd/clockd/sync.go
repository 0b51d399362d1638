package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tnicklin/sysclock/instant"
	"github.com/tnicklin/sysclock/sntp"
	"github.com/tnicklin/sysclock/sysclock"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one SNTP exchange and print the result",
		Long: `Run one SNTP exchange against the resolved server, seeded from the host
clock so the reported offset is the host clock error.

With --verify the same server is also queried with a full NTP client and
both offsets are printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, appLogger, err := opts.loadWithLogger()
			if err != nil {
				return err
			}
			defer appLogger.Sync()

			resolver := sntp.NewResolver(sntp.ResolverParams{Config: cfg.SNTP, Logger: appLogger})
			client := sntp.New(sntp.Params{Config: cfg.SNTP, Logger: appLogger})
			client.SetServer(resolver.Resolve(cmd.Context()))

			clockCfg := cfg.Clock
			clockCfg.ManualSync = true
			clk := sysclock.New(sysclock.Params{
				Config:   clockCfg,
				Client:   client,
				Logger:   appLogger,
				InitTime: instant.FromTime(time.Now()),
			})
			res := clk.ForceSync()
			printResult(cmd.OutOrStdout(), res, clk.TimezoneHours())
			if res.Status != sntp.Success {
				return fmt.Errorf("sync with %s: %w", res.Server, res.Err)
			}

			if verify {
				ref := sntp.NewReference(sntp.ReferenceParams{
					Server:  client.Server(),
					Port:    client.Port(),
					Timeout: client.Timeout(),
					Logger:  appLogger,
				})
				if err := ref.Sync(); err != nil {
					return fmt.Errorf("verify against %s: %w", client.Server(), err)
				}
				printVerify(cmd.OutOrStdout(), res.Offset.Duration(), ref.Offset(), ref.Stratum())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "cross-check the offset with a full NTP query")
	return cmd
}

func printResult(w io.Writer, res sntp.Result, tzHours float64) {
	fmt.Fprintf(w, "id:      %s\n", res.ID)
	fmt.Fprintf(w, "server:  %s\n", res.Server)
	fmt.Fprintf(w, "status:  %s\n", res.Status)
	if res.Status != sntp.Success {
		return
	}
	utc := res.Updated.Instant()
	fmt.Fprintf(w, "stratum: %d\n", res.Packet.Stratum)
	fmt.Fprintf(w, "offset:  %.6fs\n", res.Offset.Float64())
	fmt.Fprintf(w, "utc:     %s\n", utc.Time().Format(time.RFC3339Nano))
	if tzHours != 0 {
		d, t := utc.ShiftHours(tzHours).Calendar()
		fmt.Fprintf(w, "local:   %04d-%02d-%02d %02d:%02d:%02d (UTC%+g)\n",
			d.Year, d.Month, d.Day, t.Hour, t.Min, t.Sec, tzHours)
	}
}

func printVerify(w io.Writer, ours, reference time.Duration, stratum uint8) {
	fmt.Fprintf(w, "ntp offset:  %s (stratum %d)\n", reference, stratum)
	fmt.Fprintf(w, "difference:  %s\n", (ours - reference).Abs())
}
