// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/leetsync/leetsync-stats/internal/domain/shared"
	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER STATS QUERY
// Reads a user's committed records and the recent-activity window. Nothing
// is recomputed from facts.
// ══════════════════════════════════════════════════════════════════════════════

// MaxWindowDays caps the window. Daily snapshots expire after a week, so a
// longer window would only add empty days.
const MaxWindowDays = 7

// GetUserStatsQuery contains the parameters for reading a user's stats.
type GetUserStatsQuery struct {
	Username string

	// EndDate is the last day of the window. Empty means yesterday.
	EndDate string

	// Days is the window length (default and maximum 7).
	Days int
}

// Validate checks the query, trims the username and fills defaults.
func (q *GetUserStatsQuery) Validate() error {
	u, err := shared.NewUsername(q.Username)
	if err != nil {
		return err
	}
	q.Username = u.String()
	if q.EndDate != "" {
		if err := stats.ValidateDate(q.EndDate); err != nil {
			return err
		}
	}
	if q.Days <= 0 || q.Days > MaxWindowDays {
		q.Days = MaxWindowDays
	}
	return nil
}

// UserStatsDTO is the read model for one user.
type UserStatsDTO struct {
	Username string `json:"username"`
	EndDate  string `json:"endDate"`

	// Total and Streak are nil when the user has never been aggregated.
	Total  *stats.TotalStats  `json:"total,omitempty"`
	Streak *stats.StreakStats `json:"streak,omitempty"`

	// CurrentStreak is the streak as of EndDate. A stored streak with a gap
	// of more than one day before EndDate has lapsed and reads as 0.
	CurrentStreak int `json:"currentStreak"`

	Recent []stats.DailyStats  `json:"recent"`
	Window stats.WindowSummary `json:"window"`
}

// Found reports whether any record exists for the user.
func (d *UserStatsDTO) Found() bool {
	return d.Total != nil || d.Streak != nil || len(d.Recent) > 0
}

// GetUserStatsHandler handles GetUserStatsQuery.
type GetUserStatsHandler struct {
	repo stats.Repository
	loc  *time.Location
	now  func() time.Time
}

// NewGetUserStatsHandler creates a new handler. loc defines "yesterday".
func NewGetUserStatsHandler(repo stats.Repository, loc *time.Location) *GetUserStatsHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &GetUserStatsHandler{repo: repo, loc: loc, now: time.Now}
}

// WithClock returns a copy of the handler using now.
func (h *GetUserStatsHandler) WithClock(now func() time.Time) *GetUserStatsHandler {
	cp := *h
	cp.now = now
	return &cp
}

// Handle executes the query.
func (h *GetUserStatsHandler) Handle(ctx context.Context, q GetUserStatsQuery) (*UserStatsDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_user_stats: %w", err)
	}
	if q.EndDate == "" {
		q.EndDate = timeutil.ISODate(timeutil.Yesterday(h.now(), h.loc), h.loc)
	}

	dto := &UserStatsDTO{Username: q.Username, EndDate: q.EndDate}

	total, err := h.repo.GetTotal(ctx, q.Username)
	switch {
	case err == nil:
		dto.Total = total
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("get_user_stats: failed to read total: %w", err)
	}

	streak, err := h.repo.GetStreak(ctx, q.Username)
	switch {
	case err == nil:
		dto.Streak = streak
		dto.CurrentStreak = currentStreak(streak, q.EndDate)
	case !shared.IsNotFound(err):
		return nil, fmt.Errorf("get_user_stats: failed to read streak: %w", err)
	}

	recent, err := h.repo.RecentDaily(ctx, q.Username, q.EndDate, q.Days)
	if err != nil {
		return nil, fmt.Errorf("get_user_stats: failed to read daily snapshots: %w", err)
	}
	if recent == nil {
		recent = []stats.DailyStats{}
	}
	dto.Recent = recent
	dto.Window = stats.SummarizeWindow(recent, q.Days)

	return dto, nil
}

func currentStreak(s *stats.StreakStats, endDate string) int {
	if s.LastActiveDate == "" || s.LastActiveDate >= endDate {
		return s.CurrentStreak
	}
	if timeutil.IsConsecutiveDay(s.LastActiveDate, endDate) {
		// endDate may not be aggregated yet.
		return s.CurrentStreak
	}
	return 0
}
