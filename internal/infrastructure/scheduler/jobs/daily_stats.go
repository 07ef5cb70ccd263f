// Package jobs contains the scheduled jobs run by the worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/leetsync/leetsync-stats/internal/application/command"
	"github.com/leetsync/leetsync-stats/internal/domain/shared"
	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/metrics"
	"github.com/leetsync/leetsync-stats/pkg/circuitbreaker"
	"github.com/leetsync/leetsync-stats/pkg/logger"
	"github.com/leetsync/leetsync-stats/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY STATS JOB
// ══════════════════════════════════════════════════════════════════════════════

// UserAggregator runs the per-user pipeline.
type UserAggregator interface {
	Handle(ctx context.Context, cmd command.AggregateUserStatsCommand) (*command.AggregateUserStatsResult, error)
}

// Pinger reports whether the stats cache is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Recorder receives batch and per-user outcomes. *metrics.Metrics implements it.
type Recorder interface {
	RecordBatch(outcome string, activeUsers int, d time.Duration, finishedAt time.Time)
	RecordUser(outcome string)
}

// DailyStatsConfig contains configuration for the daily stats job.
type DailyStatsConfig struct {
	// Concurrency is the number of users processed in parallel.
	Concurrency int

	// Timeout bounds the whole batch. Zero disables it.
	Timeout time.Duration

	// UserTimeout bounds one user's pipeline. Zero disables it.
	UserTimeout time.Duration

	// Location defines calendar days. "Yesterday" is computed here.
	Location *time.Location
}

// DefaultDailyStatsConfig returns sensible defaults.
func DefaultDailyStatsConfig() DailyStatsConfig {
	loc, err := timeutil.LoadLocation(timeutil.DefaultZone)
	if err != nil {
		loc = time.UTC
	}
	return DailyStatsConfig{
		Concurrency: 8,
		Timeout:     30 * time.Minute,
		UserTimeout: 2 * time.Minute,
		Location:    loc,
	}
}

// UserFailure records one user whose pipeline returned an error.
type UserFailure struct {
	Username string
	Err      error

	// Retryable is set when the backend was down, slow or shed by the
	// breaker. A rerun for the same date may succeed.
	Retryable bool
}

func newUserFailure(username string, err error) UserFailure {
	return UserFailure{
		Username: username,
		Err:      err,
		Retryable: shared.IsRetryable(err) ||
			errors.Is(err, circuitbreaker.ErrCircuitOpen) ||
			errors.Is(err, circuitbreaker.ErrTooManyRequests),
	}
}

// BatchResult summarises one run over a date.
type BatchResult struct {
	RunID string
	Date  string

	// Total is the number of active users found.
	Total int

	// Processed counts users whose pipeline finished without error:
	// Committed + Skipped + AlreadyDone.
	Processed   int
	Committed   int
	Skipped     int
	AlreadyDone int
	Failed      int

	// Failures is sorted by username.
	Failures []UserFailure

	StartedAt time.Time
	Duration  time.Duration
}

// Summary returns the one-line run report.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("Successfully processed stats for %d/%d users on %s", r.Processed, r.Total, r.Date)
}

// Outcome classifies the batch for metrics.
func (r *BatchResult) Outcome() string {
	switch {
	case r.Failed == 0:
		return metrics.BatchSucceeded
	case r.Processed > 0:
		return metrics.BatchPartial
	default:
		return metrics.BatchFailed
	}
}

// DailyStatsJob aggregates yesterday's solved problems for every active user.
//
// A failure to reach the fact source or to list users aborts the run. A
// failure for one user is logged, counted and does not stop the others.
// Users are processed in parallel up to Concurrency.
type DailyStatsJob struct {
	facts    stats.FactSource
	handler  UserAggregator
	cache    Pinger
	recorder Recorder
	log      *logger.Logger
	config   DailyStatsConfig
	now      func() time.Time

	mu   sync.RWMutex
	last *BatchResult
}

// NewDailyStatsJob creates a new daily stats job. recorder may be nil.
func NewDailyStatsJob(
	facts stats.FactSource,
	handler UserAggregator,
	cache Pinger,
	recorder Recorder,
	log *logger.Logger,
	config DailyStatsConfig,
) *DailyStatsJob {
	if log == nil {
		log = logger.Nop()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	return &DailyStatsJob{
		facts:    facts,
		handler:  handler,
		cache:    cache,
		recorder: recorder,
		log:      log.With(logger.Component("daily_stats")),
		config:   config,
		now:      time.Now,
	}
}

// WithClock overrides the clock used to compute yesterday.
func (j *DailyStatsJob) WithClock(now func() time.Time) *DailyStatsJob {
	j.now = now
	return j
}

// Name returns the job name.
func (j *DailyStatsJob) Name() string {
	return "daily_stats"
}

// Description returns a human-readable description.
func (j *DailyStatsJob) Description() string {
	return "Aggregates yesterday's solved problems into daily, lifetime and streak stats"
}

// Yesterday returns the ISO date of the previous calendar day in the job's zone.
func (j *DailyStatsJob) Yesterday() string {
	return timeutil.ISODate(timeutil.Yesterday(j.now(), j.config.Location), j.config.Location)
}

// Run processes yesterday.
func (j *DailyStatsJob) Run(ctx context.Context) error {
	result, err := j.RunForDate(ctx, j.Yesterday())
	if err != nil {
		return err
	}
	if result.Failed > 0 && result.Processed == 0 {
		return fmt.Errorf("daily_stats: all %d users failed on %s", result.Failed, result.Date)
	}
	return nil
}

// LastResult returns the result of the most recent finished batch, or nil.
func (j *DailyStatsJob) LastResult() *BatchResult {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.last
}

// RunForDate processes every user active on date.
//
// It returns an error without a result when the run cannot start. When the
// context is cancelled mid-run it returns the partial result with the
// context error; users not reached are left untouched.
func (j *DailyStatsJob) RunForDate(ctx context.Context, date string) (*BatchResult, error) {
	if err := stats.ValidateDate(date); err != nil {
		return nil, fmt.Errorf("daily_stats: %w", err)
	}

	result := &BatchResult{
		RunID:     uuid.NewString(),
		Date:      date,
		StartedAt: j.now(),
	}
	log := j.log.WithRunID(result.RunID).With(logger.StatDate(date))
	ctx = logger.WithContext(ctx, log)

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	log.Info("starting daily stats batch")

	if err := j.facts.EnsureReady(ctx); err != nil {
		j.finish(result, log, metrics.BatchFailed)
		return nil, fmt.Errorf("daily_stats: fact source not ready: %w", err)
	}

	users, err := j.facts.ListActiveUsers(ctx, date)
	if err != nil {
		j.finish(result, log, metrics.BatchFailed)
		return nil, fmt.Errorf("daily_stats: failed to list active users: %w", err)
	}
	users = dedupe(users)
	result.Total = len(users)

	log.Info("found active users", logger.Int("count", result.Total))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(j.config.Concurrency)

	for _, username := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := j.processUser(ctx, username, date)

			mu.Lock()
			defer mu.Unlock()
			j.tally(result, username, res, err, log)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Failures, func(a, b int) bool {
		return result.Failures[a].Username < result.Failures[b].Username
	})

	if err := ctx.Err(); err != nil {
		outcome := metrics.BatchFailed
		if result.Processed > 0 {
			outcome = metrics.BatchPartial
		}
		j.finish(result, log, outcome)
		return result, fmt.Errorf("daily_stats: batch interrupted after %d/%d users: %w",
			result.Processed+result.Failed, result.Total, err)
	}

	j.finish(result, log, result.Outcome())
	return result, nil
}

// ProcessUser runs the pipeline for a single user outside a batch.
func (j *DailyStatsJob) ProcessUser(ctx context.Context, username, date string) (*command.AggregateUserStatsResult, error) {
	res, err := j.processUser(ctx, username, date)
	if j.recorder != nil {
		j.recorder.RecordUser(userOutcome(res, err))
	}
	return res, err
}

// HealthCheck verifies that the fact source is queryable and the cache answers.
func (j *DailyStatsJob) HealthCheck(ctx context.Context) error {
	var errs []error
	if err := j.facts.EnsureReady(ctx); err != nil {
		errs = append(errs, fmt.Errorf("fact source: %w", err))
	}
	if j.cache != nil {
		if err := j.cache.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stats cache: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (j *DailyStatsJob) processUser(ctx context.Context, username, date string) (res *command.AggregateUserStatsResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("daily_stats: panic processing %s: %v", username, r)
		}
	}()

	if j.config.UserTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.UserTimeout)
		defer cancel()
	}

	return j.handler.Handle(ctx, command.AggregateUserStatsCommand{Username: username, Date: date})
}

func (j *DailyStatsJob) tally(
	result *BatchResult,
	username string,
	res *command.AggregateUserStatsResult,
	err error,
	log *logger.Logger,
) {
	if j.recorder != nil {
		j.recorder.RecordUser(userOutcome(res, err))
	}

	if err != nil {
		result.Failed++
		failure := newUserFailure(username, err)
		result.Failures = append(result.Failures, failure)
		log.Error("failed to process user",
			logger.Username(username),
			logger.Bool("retryable", failure.Retryable),
			logger.Err(err),
		)
		return
	}

	result.Processed++
	switch {
	case res.AlreadyDone:
		result.AlreadyDone++
	case res.Skipped:
		result.Skipped++
	default:
		result.Committed++
	}
}

// finish records the batch. Runs that never listed users are not kept as
// the last result.
func (j *DailyStatsJob) finish(result *BatchResult, log *logger.Logger, outcome string) {
	finishedAt := j.now()
	result.Duration = finishedAt.Sub(result.StartedAt)

	if j.recorder != nil {
		j.recorder.RecordBatch(outcome, result.Total, result.Duration, finishedAt)
	}
	if outcome == metrics.BatchFailed && result.Total == 0 && result.Processed == 0 && result.Failed == 0 {
		return
	}

	j.mu.Lock()
	j.last = result
	j.mu.Unlock()

	log.Info(result.Summary(),
		logger.Int("committed", result.Committed),
		logger.Int("skipped", result.Skipped),
		logger.Int("already_done", result.AlreadyDone),
		logger.Int("failed", result.Failed),
		logger.Duration("duration", result.Duration),
	)
}

func userOutcome(res *command.AggregateUserStatsResult, err error) string {
	switch {
	case err != nil:
		return metrics.UserFailed
	case res.AlreadyDone:
		return metrics.UserAlreadyDone
	case res.Skipped:
		return metrics.UserSkipped
	default:
		return metrics.UserCommitted
	}
}

func dedupe(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
