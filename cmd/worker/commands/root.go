// Package commands implements the worker CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/leetsync/leetsync-stats/config"
	"github.com/leetsync/leetsync-stats/internal/app"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	verbose bool

	// stdout receives results. Logs never go here.
	stdout io.Writer
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &globalOptions{stdout: os.Stdout}

	root := &cobra.Command{
		Use:   "leetsync-stats",
		Short: "Daily stats aggregation for solved problems",
		Long: `leetsync-stats folds each user's accepted submissions into a daily
snapshot, a lifetime rollup and a streak, once per calendar day.

Commands:
  serve    Run the nightly scheduler and the ops HTTP server
  run      Aggregate one day for every active user
  user     Aggregate one day for a single user
  show     Print a user's stored stats
  health   Check the fact source and the stats cache
  migrate  Apply or roll back the fact-source schema`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.stdout = cmd.OutOrStdout()
		},
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log dependency-injection events")

	root.AddCommand(
		newServeCommand(opts),
		newRunCommand(opts),
		newUserCommand(opts),
		newShowCommand(opts),
		newHealthCommand(opts),
		newMigrateCommand(opts),
		newVersionCommand(opts, version),
	)
	return root
}

func newVersionCommand(opts *globalOptions, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(opts.stdout, "leetsync-stats %s\n", version)
		},
	}
}

// loadConfig reads .env and the environment. Commands that print to stdout
// send logs to stderr.
func loadConfig(logToStderr bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logToStderr {
		cfg.Observability.LogOutput = os.Stderr
	}
	return cfg, nil
}

// newApp builds the container and populates targets.
func (o *globalOptions) newApp(cfg *config.Config, extra ...fx.Option) *fx.App {
	opts := []fx.Option{fx.Supply(cfg), app.Module}
	if o.verbose {
		opts = append(opts, app.WithEventLogger())
	} else {
		opts = append(opts, fx.NopLogger)
	}
	return fx.New(append(opts, extra...)...)
}

// withApp starts the container, runs fn and stops the container.
func (o *globalOptions) withApp(ctx context.Context, cfg *config.Config, fn func(ctx context.Context) error, targets ...any) error {
	a := o.newApp(cfg, fx.Populate(targets...))
	if err := a.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout(cfg))
		defer cancel()
		_ = a.Stop(stopCtx)
	}()

	return fn(ctx)
}

func stopTimeout(cfg *config.Config) time.Duration {
	if cfg.App.ShutdownTimeout > 0 {
		return cfg.App.ShutdownTimeout
	}
	return 30 * time.Second
}
