// Package memory provides an in-process stats.Repository. The CLI uses it
// for dry runs; tests use it where a real cache adds nothing.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/pkg/timeutil"
)

type key struct {
	username string
	statType stats.StatType
}

type entry struct {
	record    stats.Record
	expiresAt time.Time
}

// Store keeps records in a map guarded by a mutex. Expired entries are
// treated as absent on read.
type Store struct {
	mu        sync.RWMutex
	entries   map[key]entry
	markerTTL time.Duration
	now       func() time.Time
}

var _ stats.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMarkerTTL sets how long completion markers live. Zero keeps them forever.
func WithMarkerTTL(ttl time.Duration) Option {
	return func(s *Store) { s.markerTTL = ttl }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entries:   make(map[key]entry),
		markerTTL: stats.DailyTTL + 24*time.Hour,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed stores records directly, bypassing the completion marker.
func (s *Store) Seed(username string, records ...stats.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.entries[key{username, r.StatType()}] = entry{record: r, expiresAt: r.ExpiresAt()}
	}
}

// Len returns the number of live entries, markers included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	n := 0
	for _, e := range s.entries {
		if e.live(now) {
			n++
		}
	}
	return n
}

func (e entry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

func (s *Store) lookup(username string, st stats.StatType) (stats.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key{username, st}]
	if !ok || !e.live(s.now()) {
		return nil, false
	}
	return e.record, true
}

// GetTotal returns the lifetime rollup.
func (s *Store) GetTotal(_ context.Context, username string) (*stats.TotalStats, error) {
	r, ok := s.lookup(username, stats.StatTotal)
	if !ok {
		return nil, stats.ErrNotFound
	}
	total := *r.(*stats.TotalStats)
	total.Tags = cloneTags(total.Tags)
	return &total, nil
}

// GetStreak returns the streak state.
func (s *Store) GetStreak(_ context.Context, username string) (*stats.StreakStats, error) {
	r, ok := s.lookup(username, stats.StatStreaks)
	if !ok {
		return nil, stats.ErrNotFound
	}
	streak := *r.(*stats.StreakStats)
	return &streak, nil
}

// GetDaily returns one day's snapshot.
func (s *Store) GetDaily(_ context.Context, username, date string) (*stats.DailyStats, error) {
	r, ok := s.lookup(username, stats.DailyStatType(date))
	if !ok {
		return nil, stats.ErrNotFound
	}
	daily := *r.(*stats.DailyStats)
	daily.ProblemsSolved = append([]string(nil), daily.ProblemsSolved...)
	return &daily, nil
}

// RecentDaily returns the snapshots present for the days ending on end,
// newest first.
func (s *Store) RecentDaily(ctx context.Context, username, end string, days int) ([]stats.DailyStats, error) {
	if err := stats.ValidateDate(end); err != nil {
		return nil, err
	}

	var out []stats.DailyStats
	for i := 0; i < days; i++ {
		date, err := timeutil.AddDays(end, -i)
		if err != nil {
			return nil, err
		}
		daily, err := s.GetDaily(ctx, username, date)
		if err != nil {
			continue
		}
		out = append(out, *daily)
	}
	return out, nil
}

// IsCommitted reports whether the completion marker for the day exists.
func (s *Store) IsCommitted(_ context.Context, username, date string) (bool, error) {
	_, ok := s.lookup(username, stats.DoneStatType(date))
	return ok, nil
}

// CommitDay stores the records and the marker under one lock.
func (s *Store) CommitDay(_ context.Context, username, date string, records ...stats.Record) error {
	if err := stats.ValidateDate(date); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	markerKey := key{username, stats.DoneStatType(date)}
	if e, ok := s.entries[markerKey]; ok && e.live(now) {
		return stats.ErrAlreadyCommitted
	}

	for _, r := range records {
		if exp := r.ExpiresAt(); !exp.IsZero() && !now.Before(exp) {
			return fmt.Errorf("commit %s for %s: record already expired", r.StatType(), username)
		}
	}

	for _, r := range records {
		s.entries[key{username, r.StatType()}] = entry{record: clone(r), expiresAt: r.ExpiresAt()}
	}

	var markerExp time.Time
	if s.markerTTL > 0 {
		markerExp = now.Add(s.markerTTL)
	}
	s.entries[markerKey] = entry{record: marker(date), expiresAt: markerExp}

	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// marker is the completion marker record.
type marker string

func (m marker) StatType() stats.StatType { return stats.DoneStatType(string(m)) }
func (m marker) ExpiresAt() time.Time     { return time.Time{} }

// clone copies a record so later mutation by the caller does not leak in.
func clone(r stats.Record) stats.Record {
	switch v := r.(type) {
	case *stats.TotalStats:
		c := *v
		c.Tags = cloneTags(v.Tags)
		return &c
	case *stats.StreakStats:
		c := *v
		return &c
	case *stats.DailyStats:
		c := *v
		c.ProblemsSolved = append([]string(nil), v.ProblemsSolved...)
		return &c
	default:
		return r
	}
}

func cloneTags(tags map[string]stats.TagAverage) map[string]stats.TagAverage {
	if tags == nil {
		return nil
	}
	out := make(map[string]stats.TagAverage, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
