package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tnicklin/sysclock/config"
	"github.com/tnicklin/sysclock/instant"
	"github.com/tnicklin/sysclock/logger"
	"github.com/tnicklin/sysclock/notify"
	"github.com/tnicklin/sysclock/sntp"
	"github.com/tnicklin/sysclock/store"
	"github.com/tnicklin/sysclock/sysclock"
	"github.com/tnicklin/sysclock/telemetry"
)

// resolveAfterFailures is the number of consecutive failed exchanges after
// which the server hostname is looked up again.
const resolveAfterFailures = 3

const shutdownTimeout = 30 * time.Second

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the clock daemon until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			params, err := build(ctx, opts)
			if err != nil {
				return err
			}
			return run(ctx, params)
		},
	}
}

type runParams struct {
	Config   *config.AppConfig
	Logger   logger.Logger
	Metrics  *telemetry.MetricsProvider
	Store    *store.SQLiteStore
	Resolver *sntp.Resolver
	Client   *sntp.Client
	Notifier notify.Notifier
}

func build(ctx context.Context, opts *rootOptions) (runParams, error) {
	cfg, appLogger, err := opts.loadWithLogger()
	if err != nil {
		return runParams{}, err
	}

	mp, err := telemetry.InitMetrics(ctx, cfg.Metrics)
	if err != nil {
		return runParams{}, fmt.Errorf("initialize metrics: %w", err)
	}

	notifier, err := newNotifier(cfg.Notify, appLogger)
	if err != nil {
		return runParams{}, err
	}

	return runParams{
		Config:  cfg,
		Logger:  appLogger,
		Metrics: mp,
		Store: store.NewSQLiteStore(store.Params{
			Path:   cfg.Store.Path,
			Logger: appLogger.With("component", "store"),
		}),
		Resolver: sntp.NewResolver(sntp.ResolverParams{
			Config: cfg.SNTP,
			Logger: appLogger,
		}),
		Client: sntp.New(sntp.Params{
			Config: cfg.SNTP,
			Logger: appLogger.With("component", "sntp"),
		}),
		Notifier: notifier,
	}, nil
}

// newNotifier posts to Discord when a token is configured and logs
// otherwise.
func newNotifier(cfg notify.Config, l logger.Logger) (notify.Notifier, error) {
	if cfg.Discord.Token == "" {
		return notify.NewLog(l), nil
	}
	d, err := notify.NewDiscord(notify.DiscordParams{Config: cfg.Discord})
	if err != nil {
		return nil, fmt.Errorf("create discord notifier: %w", err)
	}
	return d, nil
}

// run starts all components and runs the application until ctx is done.
func run(ctx context.Context, p runParams) error {
	defer p.Logger.Sync()

	if err := p.Store.Open(ctx); err != nil {
		return fmt.Errorf("open sync history store: %w", err)
	}
	if err := p.Store.RestoreFromDisk(ctx, p.Config.Store.Path); err != nil {
		p.Logger.WarnW("restore from disk", "error", err)
	}

	p.Client.SetServer(p.Resolver.Resolve(ctx))

	clk := sysclock.New(sysclock.Params{
		Config:   p.Config.Clock,
		Client:   p.Client,
		Logger:   p.Logger,
		InitTime: seedInitTime(ctx, p.Store, p.Logger),
	})
	watcher := notify.NewWatcher(notify.WatcherParams{
		Config:   p.Config.Notify,
		Notifier: p.Notifier,
		Logger:   p.Logger,
	})
	clk.OnSync(syncHook(ctx, p, clk, watcher))

	now := clk.CurrentTime()
	p.Logger.InfoW("clock started",
		"utc", now.Time().Format(time.RFC3339Nano),
		"server", p.Client.Server(),
		"resync_interval", clk.ResyncInterval(),
	)

	loop := sysclock.NewLoop(sysclock.LoopParams{
		Poller: clk,
		OnTick: func() { watcher.Check(ctx) },
		Logger: p.Logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := loop.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	err := g.Wait()

	p.Logger.InfoW("shutting down", "status", fmt.Sprintf("%+v", clk.Status()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if serr := p.Store.Shutdown(shutdownCtx); serr != nil {
		err = errors.Join(err, fmt.Errorf("shutdown store: %w", serr))
	}
	if merr := p.Metrics.Shutdown(shutdownCtx); merr != nil {
		p.Logger.ErrorW("shutdown metrics", "error", merr)
	}
	return err
}

// seedInitTime returns the corrected time of the last successful exchange
// on record, or zero so the configured init time applies.
func seedInitTime(ctx context.Context, st store.Store, l logger.Logger) instant.Instant {
	rec, err := st.LastSuccess(ctx)
	if err != nil {
		l.WarnW("read last successful sync", "error", err)
		return instant.Instant{}
	}
	if rec == nil {
		return instant.Instant{}
	}
	l.InfoW("seeding clock from sync history",
		"updated", rec.Updated.Time().Format(time.RFC3339Nano),
		"recorded_at", rec.RecordedAt,
	)
	return rec.Updated
}

// syncHook persists each exchange, feeds the staleness watcher and looks
// the server up again after repeated failures.
func syncHook(ctx context.Context, p runParams, clk *sysclock.SystemClock, w *notify.Watcher) func(sntp.Result) {
	retention := p.Config.Store.Retention()
	return func(res sntp.Result) {
		if err := p.Store.RecordSync(ctx, store.RecordFromResult(res, time.Now())); err != nil {
			p.Logger.ErrorW("record sync", "id", res.ID, "error", err)
		}
		w.Observe(ctx, res)

		if res.Status == sntp.Success {
			if retention > 0 {
				if _, err := p.Store.Prune(ctx, time.Now().Add(-retention)); err != nil {
					p.Logger.WarnW("prune sync history", "error", err)
				}
			}
			return
		}

		failures := clk.Status().ConsecutiveFailures
		if failures > 0 && failures%resolveAfterFailures == 0 {
			addr := p.Resolver.Resolve(ctx)
			p.Client.SetServer(addr)
			p.Logger.InfoW("time server re-resolved", "address", addr, "failures", failures)
		}
	}
}
