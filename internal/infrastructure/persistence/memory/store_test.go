package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetsync/leetsync-stats/internal/domain/stats"
)

func TestStore_CommitAndExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return now }))

	facts := stats.DailyFacts{TotalSolved: 1, DifficultyCounts: map[stats.Difficulty]int{stats.DifficultyMedium: 1}}
	daily := stats.BuildDailyStats("alice", "2025-06-01", facts, now)
	total := stats.MergeTotal(nil, "alice", facts)

	require.NoError(t, store.CommitDay(ctx, "alice", "2025-06-01", &daily, &total))
	assert.Equal(t, 3, store.Len())

	// Mutating the caller's copy does not change the stored record.
	total.TotalSolvedCount = 99
	got, err := store.GetTotal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalSolvedCount)

	err = store.CommitDay(ctx, "alice", "2025-06-01", &total)
	assert.ErrorIs(t, err, stats.ErrAlreadyCommitted)

	now = now.Add(stats.DailyTTL)
	_, err = store.GetDaily(ctx, "alice", "2025-06-01")
	assert.ErrorIs(t, err, stats.ErrNotFound)

	committed, _ := store.IsCommitted(ctx, "alice", "2025-06-01")
	assert.True(t, committed)

	now = now.Add(24 * time.Hour)
	committed, _ = store.IsCommitted(ctx, "alice", "2025-06-01")
	assert.False(t, committed)
}

func TestStore_RecentDailyNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return now }))

	for _, date := range []string{"2025-05-30", "2025-06-01"} {
		d := stats.BuildDailyStats("alice", date, stats.DailyFacts{TotalSolved: 1}, now)
		store.Seed("alice", &d)
	}

	got, err := store.RecentDaily(ctx, "alice", "2025-06-01", 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-06-01", got[0].Date)
	assert.Equal(t, "2025-05-30", got[1].Date)
}

func TestStore_MissingAndInvalid(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.GetStreak(ctx, "ghost")
	assert.ErrorIs(t, err, stats.ErrNotFound)

	err = store.CommitDay(ctx, "ghost", "not-a-date")
	assert.ErrorIs(t, err, stats.ErrInvalidDate)
	assert.NoError(t, store.Ping(ctx))
}
