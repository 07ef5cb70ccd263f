package stats

import "context"

// FactSource is the analytic store that groups a day's raw submissions.
// Dates are ISO calendar days in the engine's configured zone.
type FactSource interface {
	// EnsureReady fails with ErrFactSourceNotReady when the backing table
	// cannot be queried.
	EnsureReady(ctx context.Context) error

	// ListActiveUsers returns users with at least one accepted submission on date.
	ListActiveUsers(ctx context.Context, date string) ([]string, error)

	// QueryDailyFacts returns the summary, difficulty, tag and problem rows
	// for one user and day.
	QueryDailyFacts(ctx context.Context, username, date string) ([]FactRow, error)
}

// Repository is the stats cache. Records are keyed by (username, StatType).
type Repository interface {
	// GetTotal returns ErrNotFound when the user has no rollup yet.
	GetTotal(ctx context.Context, username string) (*TotalStats, error)

	// GetStreak returns ErrNotFound when the user has no streak yet.
	GetStreak(ctx context.Context, username string) (*StreakStats, error)

	// GetDaily returns ErrNotFound when the snapshot is absent or expired.
	GetDaily(ctx context.Context, username, date string) (*DailyStats, error)

	// RecentDaily returns the snapshots present for the days ending on end,
	// newest first. Missing days are skipped.
	RecentDaily(ctx context.Context, username, end string, days int) ([]DailyStats, error)

	// IsCommitted reports whether CommitDay already succeeded for the user and date.
	IsCommitted(ctx context.Context, username, date string) (bool, error)

	// CommitDay stores every record under its StatType with its expiry and
	// sets the completion marker for date, all or nothing. It returns
	// ErrAlreadyCommitted when the marker is already set.
	CommitDay(ctx context.Context, username, date string, records ...Record) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
