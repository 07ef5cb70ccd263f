// Package command contains write operations (CQRS - Commands).
// Commands are responsible for changing the state of the system.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leetsync/leetsync-stats/internal/domain/shared"
	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE USER STATS COMMAND
// Folds one user's day of solved problems into the daily snapshot, the
// lifetime rollup and the streak, and commits all three together.
// ══════════════════════════════════════════════════════════════════════════════

// AggregateUserStatsCommand contains the data needed to aggregate one user-day.
type AggregateUserStatsCommand struct {
	// Username is the platform handle.
	Username string

	// Date is the ISO calendar day to aggregate.
	Date string
}

// Validate checks the command and trims the username to the handle that
// keys the fact source and the stats cache.
func (c *AggregateUserStatsCommand) Validate() error {
	u, err := shared.NewUsername(c.Username)
	if err != nil {
		return err
	}
	c.Username = u.String()
	return stats.ValidateDate(c.Date)
}

// AggregateUserStatsResult contains the outcome for one user-day.
type AggregateUserStatsResult struct {
	Username string
	Date     string

	// Skipped is set when the user solved nothing; nothing was written.
	Skipped bool

	// AlreadyDone is set when the day had been committed before; nothing was written.
	AlreadyDone bool

	// SolvedCount is the number of distinct problems solved on Date.
	SolvedCount int

	// Daily, Total and Streak are the committed records. Nil unless committed.
	Daily  *stats.DailyStats
	Total  *stats.TotalStats
	Streak *stats.StreakStats

	// ProcessedAt is when the pipeline finished.
	ProcessedAt time.Time
}

// Committed reports whether this call wrote the day.
func (r *AggregateUserStatsResult) Committed() bool {
	return !r.Skipped && !r.AlreadyDone
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AggregateUserStatsHandler handles the AggregateUserStatsCommand.
type AggregateUserStatsHandler struct {
	facts stats.FactSource
	repo  stats.Repository
	log   *logger.Logger
	now   func() time.Time
}

// NewAggregateUserStatsHandler creates a new AggregateUserStatsHandler.
func NewAggregateUserStatsHandler(
	facts stats.FactSource,
	repo stats.Repository,
	log *logger.Logger,
) *AggregateUserStatsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AggregateUserStatsHandler{
		facts: facts,
		repo:  repo,
		log:   log.With(logger.Component("aggregate_user_stats")),
		now:   time.Now,
	}
}

// WithClock returns a copy of the handler that reads time from now.
func (h *AggregateUserStatsHandler) WithClock(now func() time.Time) *AggregateUserStatsHandler {
	c := *h
	c.now = now
	return &c
}

// Handle executes the aggregate user stats command.
//
// The merge into the lifetime rollup is not idempotent, so the completion
// marker is checked before any fact is read and is written in the same
// commit as the three records. A retry after a successful commit therefore
// reports AlreadyDone instead of merging the day twice.
func (h *AggregateUserStatsHandler) Handle(ctx context.Context, cmd AggregateUserStatsCommand) (*AggregateUserStatsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("aggregate_user_stats: validation failed: %w", err)
	}

	result := &AggregateUserStatsResult{Username: cmd.Username, Date: cmd.Date}
	log := h.log.With(logger.Username(cmd.Username), logger.StatDate(cmd.Date))

	done, err := h.repo.IsCommitted(ctx, cmd.Username, cmd.Date)
	if err != nil {
		return nil, fmt.Errorf("aggregate_user_stats: failed to check completion marker: %w", err)
	}
	if done {
		log.Debug("day already committed, skipping")
		result.AlreadyDone = true
		result.ProcessedAt = h.now()
		return result, nil
	}

	rows, err := h.facts.QueryDailyFacts(ctx, cmd.Username, cmd.Date)
	if err != nil {
		return nil, fmt.Errorf("aggregate_user_stats: failed to fetch facts: %w", err)
	}

	facts := stats.ParseFacts(rows)
	result.SolvedCount = facts.TotalSolved

	if facts.IsEmpty() {
		log.Debug("no problems solved, nothing to write")
		result.Skipped = true
		result.ProcessedAt = h.now()
		return result, nil
	}

	daily, total, streak, err := h.build(ctx, cmd, facts)
	if err != nil {
		return nil, err
	}

	err = h.repo.CommitDay(ctx, cmd.Username, cmd.Date, daily, total, streak)
	if errors.Is(err, stats.ErrAlreadyCommitted) {
		log.Warn("day committed concurrently, discarding merge")
		result.AlreadyDone = true
		result.ProcessedAt = h.now()
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate_user_stats: failed to commit: %w", err)
	}

	result.Daily, result.Total, result.Streak = daily, total, streak
	result.ProcessedAt = h.now()

	log.Info("stats committed",
		logger.SolvedCount(facts.TotalSolved),
		logger.Int("lifetime_solved", total.TotalSolvedCount),
		logger.Int("current_streak", streak.CurrentStreak),
	)

	return result, nil
}

// build produces the three records from the day's facts and prior state.
func (h *AggregateUserStatsHandler) build(
	ctx context.Context,
	cmd AggregateUserStatsCommand,
	facts stats.DailyFacts,
) (*stats.DailyStats, *stats.TotalStats, *stats.StreakStats, error) {
	daily := stats.BuildDailyStats(cmd.Username, cmd.Date, facts, h.now())

	prevTotal, err := h.repo.GetTotal(ctx, cmd.Username)
	if err != nil && !shared.IsNotFound(err) {
		return nil, nil, nil, fmt.Errorf("aggregate_user_stats: failed to load lifetime stats: %w", err)
	}
	total := stats.MergeTotal(prevTotal, cmd.Username, facts)

	prevStreak, err := h.repo.GetStreak(ctx, cmd.Username)
	if err != nil && !shared.IsNotFound(err) {
		return nil, nil, nil, fmt.Errorf("aggregate_user_stats: failed to load streak: %w", err)
	}
	streak, err := stats.AdvanceStreak(prevStreak, cmd.Username, cmd.Date)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("aggregate_user_stats: failed to advance streak: %w", err)
	}

	return &daily, &total, &streak, nil
}
