package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetsync/leetsync-stats/internal/domain/stats"
)

func TestOverlay_WritesStayLocal(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	clock := WithClock(func() time.Time { return now })

	base := NewStore(clock)
	prior := stats.TotalStats{Username: "alice", TotalSolvedCount: 10}
	base.Seed("alice", &prior)

	overlay := NewOverlay(base, clock)

	got, err := overlay.GetTotal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalSolvedCount)

	facts := stats.DailyFacts{TotalSolved: 2}
	merged := stats.MergeTotal(got, "alice", facts)
	daily := stats.BuildDailyStats("alice", "2025-06-01", facts, now)
	require.NoError(t, overlay.CommitDay(ctx, "alice", "2025-06-01", &daily, &merged))

	got, err = overlay.GetTotal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 12, got.TotalSolvedCount)

	baseTotal, err := base.GetTotal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 10, baseTotal.TotalSolvedCount)

	done, err := overlay.IsCommitted(ctx, "alice", "2025-06-01")
	require.NoError(t, err)
	assert.True(t, done)

	done, _ = base.IsCommitted(ctx, "alice", "2025-06-01")
	assert.False(t, done)
	assert.Equal(t, 3, overlay.Writes())
}

func TestOverlay_RespectsBaseMarker(t *testing.T) {
	ctx := context.Background()
	base := NewStore()
	require.NoError(t, base.CommitDay(ctx, "alice", "2025-06-01"))

	overlay := NewOverlay(base)
	err := overlay.CommitDay(ctx, "alice", "2025-06-01")
	assert.ErrorIs(t, err, stats.ErrAlreadyCommitted)
}

func TestOverlay_RecentDailyMergesLayers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	clock := WithClock(func() time.Time { return now })

	base := NewStore(clock)
	older := stats.BuildDailyStats("alice", "2025-05-30", stats.DailyFacts{TotalSolved: 1}, now)
	base.Seed("alice", &older)

	overlay := NewOverlay(base, clock)
	newer := stats.BuildDailyStats("alice", "2025-06-01", stats.DailyFacts{TotalSolved: 3}, now)
	require.NoError(t, overlay.CommitDay(ctx, "alice", "2025-06-01", &newer))

	got, err := overlay.RecentDaily(ctx, "alice", "2025-06-01", 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-06-01", got[0].Date)
	assert.Equal(t, "2025-05-30", got[1].Date)
}
