package memory

import (
	"context"
	"errors"

	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/pkg/timeutil"
)

// Overlay reads through to a base repository and keeps every write in
// memory. Dry runs use it to compute a batch against live state without
// changing that state.
type Overlay struct {
	base  stats.Repository
	local *Store
}

var _ stats.Repository = (*Overlay)(nil)

// NewOverlay wraps base. opts configure the in-memory layer.
func NewOverlay(base stats.Repository, opts ...Option) *Overlay {
	return &Overlay{base: base, local: NewStore(opts...)}
}

// Writes returns the number of live entries written to the overlay.
func (o *Overlay) Writes() int {
	return o.local.Len()
}

// GetTotal prefers the overlay copy.
func (o *Overlay) GetTotal(ctx context.Context, username string) (*stats.TotalStats, error) {
	if t, err := o.local.GetTotal(ctx, username); err == nil {
		return t, nil
	}
	return o.base.GetTotal(ctx, username)
}

// GetStreak prefers the overlay copy.
func (o *Overlay) GetStreak(ctx context.Context, username string) (*stats.StreakStats, error) {
	if s, err := o.local.GetStreak(ctx, username); err == nil {
		return s, nil
	}
	return o.base.GetStreak(ctx, username)
}

// GetDaily prefers the overlay copy.
func (o *Overlay) GetDaily(ctx context.Context, username, date string) (*stats.DailyStats, error) {
	if d, err := o.local.GetDaily(ctx, username, date); err == nil {
		return d, nil
	}
	return o.base.GetDaily(ctx, username, date)
}

// RecentDaily merges both layers, overlay first.
func (o *Overlay) RecentDaily(ctx context.Context, username, end string, days int) ([]stats.DailyStats, error) {
	base, err := o.base.RecentDaily(ctx, username, end, days)
	if err != nil {
		return nil, err
	}
	local, err := o.local.RecentDaily(ctx, username, end, days)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]stats.DailyStats, len(base)+len(local))
	for _, d := range base {
		byDate[d.Date] = d
	}
	for _, d := range local {
		byDate[d.Date] = d
	}

	out := make([]stats.DailyStats, 0, len(byDate))
	for i := 0; i < days; i++ {
		date, err := timeutil.AddDays(end, -i)
		if err != nil {
			return nil, err
		}
		if d, ok := byDate[date]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// IsCommitted checks both layers.
func (o *Overlay) IsCommitted(ctx context.Context, username, date string) (bool, error) {
	if ok, _ := o.local.IsCommitted(ctx, username, date); ok {
		return true, nil
	}
	return o.base.IsCommitted(ctx, username, date)
}

// CommitDay writes to the overlay only. A day committed in the base is
// reported as ErrAlreadyCommitted.
func (o *Overlay) CommitDay(ctx context.Context, username, date string, records ...stats.Record) error {
	done, err := o.base.IsCommitted(ctx, username, date)
	if err != nil {
		return err
	}
	if done {
		return stats.ErrAlreadyCommitted
	}
	return o.local.CommitDay(ctx, username, date, records...)
}

// Ping checks the base.
func (o *Overlay) Ping(ctx context.Context) error {
	if o.base == nil {
		return errors.New("overlay has no base repository")
	}
	return o.base.Ping(ctx)
}
