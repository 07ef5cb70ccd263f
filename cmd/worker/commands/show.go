package commands

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/leetsync/leetsync-stats/internal/application/query"
)

// ErrNoStats is returned by show when nothing is stored for the user.
var ErrNoStats = errors.New("no stats stored for user")

type showOptions struct {
	date   string
	days   int
	asJSON bool
}

func newShowCommand(opts *globalOptions) *cobra.Command {
	so := &showOptions{}

	cmd := &cobra.Command{
		Use:   "show <username>",
		Short: "Print a user's stored stats",
		Long: `Print the lifetime rollup, the streak and the recent daily snapshots of
one user as stored in the stats cache. Nothing is recomputed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.show(cmd.Context(), args[0], so)
		},
	}
	cmd.Flags().StringVar(&so.date, "date", "", "last day of the window (default: yesterday)")
	cmd.Flags().IntVar(&so.days, "days", query.MaxWindowDays, "window length in days")
	cmd.Flags().BoolVar(&so.asJSON, "json", false, "print JSON instead of tables")
	return cmd
}

func (o *globalOptions) show(ctx context.Context, username string, so *showOptions) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}

	var users *query.GetUserStatsHandler
	return o.withApp(ctx, cfg, func(ctx context.Context) error {
		dto, err := users.Handle(ctx, query.GetUserStatsQuery{
			Username: username,
			EndDate:  so.date,
			Days:     so.days,
		})
		if err != nil {
			return err
		}
		if !dto.Found() {
			return ErrNoStats
		}

		if so.asJSON {
			enc := json.NewEncoder(o.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(dto)
		}
		return renderUserStats(o.stdout, dto)
	}, &users)
}
