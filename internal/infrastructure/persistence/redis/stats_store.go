package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/pkg/retry"
	"github.com/leetsync/leetsync-stats/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

// PrefixStats namespaces every stats key.
const PrefixStats = "stats:"

// DefaultMarkerTTL keeps completion markers one day longer than the daily
// snapshots they guard.
const DefaultMarkerTTL = stats.DailyTTL + 24*time.Hour

// StatsKey returns the key of a user's record. The username is a hash tag,
// so all keys of one user map to the same cluster slot and can share a
// transaction.
func StatsKey(username string, st stats.StatType) string {
	return fmt.Sprintf("%s{%s}:%s", PrefixStats, username, st)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS STORE
// ══════════════════════════════════════════════════════════════════════════════

// StatsStore implements stats.Repository on Redis.
type StatsStore struct {
	cache     *Cache
	retrier   *retry.Retrier
	markerTTL time.Duration
	now       func() time.Time
}

var _ stats.Repository = (*StatsStore)(nil)

// StoreOption configures a StatsStore.
type StoreOption func(*StatsStore)

// WithMarkerTTL sets how long completion markers live. Zero keeps them forever.
func WithMarkerTTL(ttl time.Duration) StoreOption {
	return func(s *StatsStore) {
		if ttl >= 0 {
			s.markerTTL = ttl
		}
	}
}

// WithRetrier overrides the retry policy for cache calls.
func WithRetrier(r *retry.Retrier) StoreOption {
	return func(s *StatsStore) {
		s.retrier = r
	}
}

// WithClock overrides the clock used to turn record expiries into TTLs.
func WithClock(now func() time.Time) StoreOption {
	return func(s *StatsStore) {
		s.now = now
	}
}

// NewStatsStore creates a new StatsStore.
func NewStatsStore(cache *Cache, opts ...StoreOption) *StatsStore {
	s := &StatsStore{
		cache:     cache,
		markerTTL: DefaultMarkerTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.retrier == nil {
		s.retrier = retry.CacheRetrier()
	}
	s.retrier = s.retrier.With(retry.WithRetryIf(isTransient))
	return s
}

// GetTotal returns the lifetime rollup.
func (s *StatsStore) GetTotal(ctx context.Context, username string) (*stats.TotalStats, error) {
	var total stats.TotalStats
	if err := s.get(ctx, StatsKey(username, stats.StatTotal), &total); err != nil {
		return nil, err
	}
	return &total, nil
}

// GetStreak returns the streak state.
func (s *StatsStore) GetStreak(ctx context.Context, username string) (*stats.StreakStats, error) {
	var streak stats.StreakStats
	if err := s.get(ctx, StatsKey(username, stats.StatStreaks), &streak); err != nil {
		return nil, err
	}
	return &streak, nil
}

// GetDaily returns one day's snapshot.
func (s *StatsStore) GetDaily(ctx context.Context, username, date string) (*stats.DailyStats, error) {
	var daily stats.DailyStats
	if err := s.get(ctx, StatsKey(username, stats.DailyStatType(date)), &daily); err != nil {
		return nil, err
	}
	return &daily, nil
}

// RecentDaily reads the snapshots of the days ending on end with one MGET.
func (s *StatsStore) RecentDaily(ctx context.Context, username, end string, days int) ([]stats.DailyStats, error) {
	if err := stats.ValidateDate(end); err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, nil
	}

	keys := make([]string, 0, days)
	for i := 0; i < days; i++ {
		date, err := timeutil.AddDays(end, -i)
		if err != nil {
			return nil, err
		}
		keys = append(keys, StatsKey(username, stats.DailyStatType(date)))
	}

	raw, err := retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (map[string]string, error) {
		return s.cache.MGet(ctx, keys...)
	})
	if err != nil {
		return nil, fmt.Errorf("read recent daily stats for %s: %w", username, err)
	}

	out := make([]stats.DailyStats, 0, len(raw))
	for _, key := range keys {
		val, ok := raw[key]
		if !ok {
			continue
		}
		var daily stats.DailyStats
		if err := json.Unmarshal([]byte(val), &daily); err != nil {
			return nil, fmt.Errorf("%w: key %s: %v", ErrCacheSerialization, key, err)
		}
		out = append(out, daily)
	}

	return out, nil
}

// IsCommitted reports whether the completion marker for the day exists.
func (s *StatsStore) IsCommitted(ctx context.Context, username, date string) (bool, error) {
	key := StatsKey(username, stats.DoneStatType(date))
	return retry.DoWithData(ctx, s.retrier, func(ctx context.Context) (bool, error) {
		return s.cache.Exists(ctx, key)
	})
}

// CommitDay writes the records and the completion marker in one
// transaction guarded by the marker. A retried commit whose first attempt
// reached Redis finds the marker set and reports ErrAlreadyCommitted.
func (s *StatsStore) CommitDay(ctx context.Context, username, date string, records ...stats.Record) error {
	if err := stats.ValidateDate(date); err != nil {
		return err
	}

	now := s.now()
	marker := StatsKey(username, stats.DoneStatType(date))

	writes := make([]Write, 0, len(records)+1)
	for _, r := range records {
		var ttl time.Duration
		if exp := r.ExpiresAt(); !exp.IsZero() {
			ttl = exp.Sub(now)
			if ttl <= 0 {
				return fmt.Errorf("commit %s for %s: record already expired at %s", r.StatType(), username, exp.Format(time.RFC3339))
			}
		}
		writes = append(writes, Write{Key: StatsKey(username, r.StatType()), Value: r, TTL: ttl})
	}
	writes = append(writes, Write{Key: marker, Value: now.UTC().Format(time.RFC3339), TTL: s.markerTTL})

	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.cache.WriteIfAbsent(ctx, marker, writes...)
	})
	if errors.Is(err, ErrGuardFailed) {
		return stats.ErrAlreadyCommitted
	}
	if err != nil {
		return fmt.Errorf("commit stats for %s on %s: %w", username, date, err)
	}
	return nil
}

// Ping checks connectivity.
func (s *StatsStore) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

func (s *StatsStore) get(ctx context.Context, key string, dest any) error {
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.cache.Get(ctx, key, dest)
	})
	if errors.Is(err, ErrCacheMiss) {
		return stats.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return nil
}

// isTransient reports network-level failures worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
