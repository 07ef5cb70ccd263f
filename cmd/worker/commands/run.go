package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler/jobs"
)

// runOptions holds the flags shared by run and user.
type runOptions struct {
	date   string
	dryRun bool
}

func (r *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.date, "date", "", "ISO day to aggregate (default: yesterday in APP_TIMEZONE)")
	cmd.Flags().BoolVar(&r.dryRun, "dry-run", false, "compute stats without writing them")
}

func newRunCommand(opts *globalOptions) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Aggregate one day for every active user",
		Long: `Aggregate one calendar day for every user with an accepted submission.

Users that fail are reported and do not stop the others. Re-running a day
that was already committed changes nothing. The command fails when the fact
source is unreachable or when every user failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.runBatch(cmd.Context(), ro)
		},
	}
	ro.bind(cmd)
	return cmd
}

func (o *globalOptions) runBatch(ctx context.Context, ro *runOptions) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	cfg.Stats.DryRun = cfg.Stats.DryRun || ro.dryRun

	var job *jobs.DailyStatsJob
	return o.withApp(ctx, cfg, func(ctx context.Context) error {
		date := ro.date
		if date == "" {
			date = job.Yesterday()
		}

		result, runErr := job.RunForDate(ctx, date)
		if result != nil {
			if err := renderBatch(o.stdout, result, cfg.Stats.DryRun); err != nil {
				return err
			}
		}
		if runErr != nil {
			return runErr
		}
		if result.Failed > 0 && result.Processed == 0 {
			return fmt.Errorf("run: all %d users failed on %s", result.Failed, result.Date)
		}
		return nil
	}, &job)
}

func newUserCommand(opts *globalOptions) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "user <username>",
		Short: "Aggregate one day for a single user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runUser(cmd.Context(), args[0], ro)
		},
	}
	ro.bind(cmd)
	return cmd
}

func (o *globalOptions) runUser(ctx context.Context, username string, ro *runOptions) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	cfg.Stats.DryRun = cfg.Stats.DryRun || ro.dryRun

	var job *jobs.DailyStatsJob
	return o.withApp(ctx, cfg, func(ctx context.Context) error {
		date := ro.date
		if date == "" {
			date = job.Yesterday()
		}

		res, err := job.ProcessUser(ctx, username, date)
		if err != nil {
			return err
		}
		if res == nil {
			return errors.New("user: no result")
		}
		return renderUserResult(o.stdout, res, cfg.Stats.DryRun)
	}, &job)
}
