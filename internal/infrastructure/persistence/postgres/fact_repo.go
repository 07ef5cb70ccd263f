package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/pkg/circuitbreaker"
	"github.com/leetsync/leetsync-stats/pkg/logger"
	"github.com/leetsync/leetsync-stats/pkg/ratelimit"
	"github.com/leetsync/leetsync-stats/pkg/retry"
	"github.com/leetsync/leetsync-stats/pkg/timeutil"
)

// dailyFactsQuery groups one user's accepted submissions for one day.
// Every problem is reduced to a single row (average runtime and memory over
// its attempts) before tags are exploded, so a problem solved five times
// counts once. All cells are returned as text; ParseFacts reads them.
const dailyFactsQuery = `
WITH daily_submissions AS (
    SELECT
        title_slug,
        MAX(title)            AS title,
        MAX(difficulty_level) AS difficulty_level,
        MAX(tags)             AS tags,
        AVG(runtime_ms)       AS avg_runtime_ms,
        AVG(memory_mb)        AS avg_memory_mb
    FROM ac_submissions
    WHERE username = $1
      AND submitted_at >= $2
      AND submitted_at < $3
    GROUP BY title_slug
),
exploded_tags AS (
    SELECT DISTINCT
        d.title_slug,
        d.difficulty_level,
        btrim(t.tag) AS tag,
        d.avg_runtime_ms,
        d.avg_memory_mb
    FROM daily_submissions d
    CROSS JOIN LATERAL unnest(string_to_array(d.tags, ',')) AS t(tag)
    WHERE d.tags IS NOT NULL AND btrim(t.tag) <> ''
)
SELECT metric_type, metric_key, cnt, sum_runtime, sum_memory, sum_difficulty
FROM (
    SELECT 0 AS ord, 'summary' AS metric_type, 'solved_count' AS metric_key,
           COUNT(*)::text AS cnt, '0' AS sum_runtime, '0' AS sum_memory, '0' AS sum_difficulty
    FROM daily_submissions

    UNION ALL

    SELECT 1, 'difficulty', difficulty_level::text,
           COUNT(*)::text, '0', '0', '0'
    FROM daily_submissions
    WHERE difficulty_level IS NOT NULL
    GROUP BY difficulty_level

    UNION ALL

    SELECT 2, 'tag', tag,
           COUNT(*)::text,
           COALESCE(SUM(avg_runtime_ms), 0)::text,
           COALESCE(SUM(avg_memory_mb), 0)::text,
           COALESCE(SUM(difficulty_level), 0)::text
    FROM exploded_tags
    GROUP BY tag

    UNION ALL

    SELECT 3, 'problem', title, '', '', '', ''
    FROM daily_submissions
) facts
ORDER BY ord, metric_key`

const activeUsersQuery = `
SELECT DISTINCT username
FROM ac_submissions
WHERE submitted_at >= $1
  AND submitted_at < $2
ORDER BY username`

const tableReadyQuery = `SELECT to_regclass('public.ac_submissions') IS NOT NULL`

// FactRepository implements stats.FactSource over ac_submissions.
// Calls are paced by a token bucket, go through a circuit breaker and are
// retried on transient errors.
type FactRepository struct {
	db           Querier
	loc          *time.Location
	limiter      *ratelimit.Limiter
	breaker      *circuitbreaker.CircuitBreaker
	retrier      *retry.Retrier
	queryTimeout time.Duration
	log          *logger.Logger
}

var _ stats.FactSource = (*FactRepository)(nil)

// FactOption configures a FactRepository.
type FactOption func(*FactRepository)

// WithBreaker sets the circuit breaker.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) FactOption {
	return func(r *FactRepository) { r.breaker = cb }
}

// WithRetrier sets the retry policy. Only transient errors are retried.
func WithRetrier(rt *retry.Retrier) FactOption {
	return func(r *FactRepository) { r.retrier = rt }
}

// WithLimiter paces query attempts. A nil limiter disables pacing.
func WithLimiter(l *ratelimit.Limiter) FactOption {
	return func(r *FactRepository) { r.limiter = l }
}

// WithQueryTimeout bounds each query attempt.
func WithQueryTimeout(d time.Duration) FactOption {
	return func(r *FactRepository) {
		if d > 0 {
			r.queryTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) FactOption {
	return func(r *FactRepository) { r.log = l }
}

// NewFactRepository creates a fact source whose calendar days are computed in loc.
func NewFactRepository(db Querier, loc *time.Location, opts ...FactOption) *FactRepository {
	r := &FactRepository{
		db:           db,
		loc:          loc,
		queryTimeout: DefaultConfig().QueryTimeout,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = circuitbreaker.FactSourceBreaker(nil)
	}
	if r.retrier == nil {
		r.retrier = retry.FactSourceRetrier()
	}
	r.retrier = r.retrier.With(
		retry.WithRetryIf(IsTransient),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			r.log.Warn("fact source call failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Err(err),
			)
		}),
	)
	return r
}

// EnsureReady checks that ac_submissions exists and is queryable.
func (r *FactRepository) EnsureReady(ctx context.Context) error {
	var ready bool
	err := r.call(ctx, func(ctx context.Context) error {
		return r.db.QueryRow(ctx, tableReadyQuery).Scan(&ready)
	})
	if err != nil {
		return stats.ErrFactSourceNotReady.Wrap(err)
	}
	if !ready {
		return stats.ErrFactSourceNotReady
	}
	return nil
}

// ListActiveUsers returns users with an accepted submission on date.
func (r *FactRepository) ListActiveUsers(ctx context.Context, date string) ([]string, error) {
	start, end, err := r.dayRange(date)
	if err != nil {
		return nil, err
	}

	var users []string
	err = r.call(ctx, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, activeUsersQuery, start, end)
		if err != nil {
			return err
		}
		defer rows.Close()

		users = users[:0]
		for rows.Next() {
			var username string
			if err := rows.Scan(&username); err != nil {
				return fmt.Errorf("failed to scan username: %w", err)
			}
			users = append(users, username)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active users for %s: %w", date, notReadyIfMissing(err))
	}

	return users, nil
}

// QueryDailyFacts returns the fact rows for one user and day.
func (r *FactRepository) QueryDailyFacts(ctx context.Context, username, date string) ([]stats.FactRow, error) {
	start, end, err := r.dayRange(date)
	if err != nil {
		return nil, err
	}

	var facts []stats.FactRow
	err = r.call(ctx, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, dailyFactsQuery, username, start, end)
		if err != nil {
			return err
		}
		defer rows.Close()

		facts = facts[:0]
		for rows.Next() {
			var (
				row        stats.FactRow
				metricType string
			)
			err := rows.Scan(
				&metricType,
				&row.MetricKey,
				&row.Count,
				&row.SumRuntimeMs,
				&row.SumMemoryMb,
				&row.SumDifficultyLevel,
			)
			if err != nil {
				return fmt.Errorf("failed to scan fact row: %w", err)
			}
			row.MetricType = stats.MetricType(metricType)
			facts = append(facts, row)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query daily facts for %s on %s: %w", username, date, notReadyIfMissing(err))
	}

	return facts, nil
}

// BreakerState exposes the circuit state for health reporting.
func (r *FactRepository) BreakerState() circuitbreaker.State {
	return r.breaker.State()
}

// notReadyIfMissing turns a missing ac_submissions table into
// ErrFactSourceNotReady so callers see the same error EnsureReady reports.
func notReadyIfMissing(err error) error {
	if IsUndefinedTable(err) {
		return stats.ErrFactSourceNotReady.Wrap(err)
	}
	return err
}

func (r *FactRepository) dayRange(date string) (time.Time, time.Time, error) {
	day, err := timeutil.ParseISODate(date, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, stats.ErrInvalidDate.Wrap(err)
	}
	start, end := timeutil.DayRange(day, r.loc)
	return start, end, nil
}

func (r *FactRepository) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.retrier.Do(ctx, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return r.breaker.Execute(ctx, func(ctx context.Context) error {
			qctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
			defer cancel()

			// Our own deadline is a slow backend and counts against the
			// breaker. The caller's deadline stays a context error.
			err := fn(qctx)
			if err != nil && ctx.Err() == nil && errors.Is(qctx.Err(), context.DeadlineExceeded) {
				return stats.ErrFactSourceTimeout.Wrap(fmt.Errorf("no answer within %s", r.queryTimeout))
			}
			return err
		})
	})
}
