package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/leetsync/leetsync-stats/config"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler"
	httpapi "github.com/leetsync/leetsync-stats/internal/interface/http"
	"github.com/leetsync/leetsync-stats/pkg/logger"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the nightly scheduler and the ops HTTP server",
		Long: `Run the daily stats batch on its schedule until SIGINT or SIGTERM.

The batch runs at SCHEDULER_HOUR:SCHEDULER_MINUTE in APP_TIMEZONE, or on
STATS_SCHEDULE_CRON when set. With METRICS_ENABLED the ops server listens on
METRICS_PORT for /health, /metrics and the read API.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			return opts.serve(cmd.Context(), cfg)
		},
	}
}

func (o *globalOptions) serve(ctx context.Context, cfg *config.Config) error {
	a := o.newApp(cfg, fx.Invoke(registerServe))
	if err := a.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}

	var exitCode int
	select {
	case <-ctx.Done():
	case sig := <-a.Wait():
		exitCode = sig.ExitCode
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout(cfg))
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("serve: stopped with exit code %d", exitCode)
	}
	return nil
}

// registerServe hooks the scheduler and the ops server into the lifecycle.
func registerServe(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	sched *scheduler.Scheduler,
	server *httpapi.Server,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting leetsync-stats worker",
				logger.String("version", cfg.App.Version),
				logger.String("timezone", cfg.App.Location.String()),
				logger.Bool("scheduler_enabled", cfg.Scheduler.Enabled),
				logger.Bool("dry_run", cfg.Stats.DryRun),
			)

			if err := sched.Start(context.Background()); err != nil {
				return err
			}
			for _, job := range sched.ListJobs() {
				log.Info("job scheduled",
					logger.String("job", job.Name),
					logger.Bool("enabled", job.Enabled),
					logger.Time("next_run", job.NextRun),
				)
			}

			if cfg.Observability.MetricsEnabled {
				errCh := server.StartAsync()
				go func() {
					if err, ok := <-errCh; ok && err != nil {
						log.Error("ops server failed", logger.Err(err))
						_ = shutdowner.Shutdown(fx.ExitCode(1))
					}
				}()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down worker")
			if err := server.Shutdown(ctx); err != nil {
				log.Warn("ops server shutdown failed", logger.Err(err))
			}
			if err := sched.Stop(); err != nil {
				log.Warn("scheduler stop failed", logger.Err(err))
			}
			log.Info("shutdown completed")
			return nil
		},
	})
}
