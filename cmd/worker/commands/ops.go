package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leetsync/leetsync-stats/internal/infrastructure/persistence/postgres"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler/jobs"
)

func newHealthCommand(opts *globalOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the fact source and the stats cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}

			var job *jobs.DailyStatsJob
			return opts.withApp(cmd.Context(), cfg, func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				if err := job.HealthCheck(ctx); err != nil {
					return fmt.Errorf("unhealthy: %w", err)
				}
				fmt.Fprintln(opts.stdout, "healthy")
				return nil
			}, &job)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "overall check timeout")
	return cmd
}

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Apply or roll back the fact-source schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}

			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}

			var conn *postgres.Connection
			return opts.withApp(cmd.Context(), cfg, func(ctx context.Context) error {
				migrator, err := postgres.NewMigrator(conn.Pool())
				if err != nil {
					return err
				}
				defer func() { _ = migrator.Close() }()

				switch action {
				case "up":
					err = migrator.Up(ctx)
				case "down":
					err = migrator.Down(ctx)
				}
				if err != nil {
					return err
				}

				version, err := migrator.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.stdout, "schema version %d\n", version)
				return nil
			}, &conn)
		},
	}
	return cmd
}
