package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/api"
	"github.com/good-yellow-bee/staleguard/internal/api/health"
	"github.com/good-yellow-bee/staleguard/internal/metrics"
	"github.com/good-yellow-bee/staleguard/internal/scheduler"
	"github.com/good-yellow-bee/staleguard/pkg/config"
)

var (
	serveAddress    string
	serveNoSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run alerts on schedule",
	Long: `Start the HTTP API, the cron scheduler and, when enabled, the Prometheus
metrics endpoint. Stops cleanly on SIGINT or SIGTERM; an in-flight alert
run is allowed to finish its current entity.

Examples:
  staleguard serve -c staleguard.yaml
  staleguard serve -c staleguard.yaml --address :8081 --no-schedule`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withApp(ctx, func(ctx context.Context, a *app) error {
			if serveAddress != "" {
				a.cfg.HTTP.Address = serveAddress
			}
			return serve(ctx, a)
		})
	},
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	logger := a.logger

	info := config.GetBuildInfo()
	metrics.SetBuildInfo(info.Version, info.Commit, info.BuildTime)

	srv, err := api.New(&api.Config{
		Address:            cfg.HTTP.Address,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		RunTimeout:         mustDuration(cfg.Schedule.RunTimeout),
		Verbose:            cfg.HTTP.Verbose || verbose,
	}, a.orch, a.store.AlertHistory(), logger)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewSQLiteChecker(a.store))
	if a.redisState != nil {
		srv.RegisterHealthChecker(health.NewRedisChecker(a.redisState))
	}

	g, ctx := errgroup.WithContext(ctx)

	logger.Info("starting staleguard",
		zap.String("version", info.Version),
		zap.String("state_backend", cfg.State.Backend),
		zap.Bool("dry_run", cfg.Alerts.DryRun),
		zap.Strings("notifiers", a.notifier.Names()),
	)

	g.Go(func() error {
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("run API server: %w", err)
		}
		return nil
	})

	if !serveNoSchedule {
		sched, err := scheduler.New(a.orch, scheduler.Config{
			Schedule:   cfg.Schedule.Cron,
			Location:   cfg.location(),
			RunTimeout: mustDuration(cfg.Schedule.RunTimeout),
			RunOnStart: cfg.Schedule.RunOnStart,
		}, logger.Named("scheduler"))
		if err != nil {
			return fmt.Errorf("create scheduler: %w", err)
		}
		g.Go(func() error {
			return sched.Run(ctx)
		})
	}

	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Address, logger.Named("metrics"))
		g.Go(func() error {
			if err := ms.Run(ctx); err != nil {
				return fmt.Errorf("run metrics server: %w", err)
			}
			return nil
		})
	}

	if cfg.Rules.Watch && cfg.Rules.File != "" {
		w, err := alerting.NewCatalogWatcher(cfg.Rules.File, a.catalog, logger.Named("rules"))
		if err != nil {
			return fmt.Errorf("watch rules: %w", err)
		}
		g.Go(func() error {
			defer w.Close()
			return w.Run(ctx)
		})
	}

	err = g.Wait()
	logger.Info("staleguard stopped")
	return err
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddress, "address", "a", "", "HTTP listen address (overrides http.address)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "disable the cron scheduler")
	rootCmd.AddCommand(serveCmd)
}
