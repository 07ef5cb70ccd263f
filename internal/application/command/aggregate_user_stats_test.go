package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/persistence/memory"
)

type fakeFacts struct {
	rows  map[string][]stats.FactRow // key: username|date
	err   error
	calls int
}

func (f *fakeFacts) EnsureReady(context.Context) error { return nil }

func (f *fakeFacts) ListActiveUsers(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeFacts) QueryDailyFacts(_ context.Context, username, date string) ([]stats.FactRow, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[username+"|"+date], nil
}

// failingCommitRepo fails CommitDay and delegates the rest.
type failingCommitRepo struct {
	*memory.Store
	err error
}

func (r failingCommitRepo) CommitDay(context.Context, string, string, ...stats.Record) error {
	return r.err
}

var clock = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func scenario() []stats.FactRow {
	return []stats.FactRow{
		{MetricType: stats.MetricSummary, MetricKey: "solved_count", Count: "3"},
		{MetricType: stats.MetricDifficulty, MetricKey: "1", Count: "2"},
		{MetricType: stats.MetricDifficulty, MetricKey: "2", Count: "1"},
		{MetricType: stats.MetricTag, MetricKey: "array", Count: "2", SumRuntimeMs: "20", SumMemoryMb: "10", SumDifficultyLevel: "1"},
		{MetricType: stats.MetricProblem, MetricKey: "Two Sum"},
	}
}

func newHandler(facts stats.FactSource, repo stats.Repository) *AggregateUserStatsHandler {
	return NewAggregateUserStatsHandler(facts, repo, nil).WithClock(func() time.Time { return clock })
}

func TestAggregateUserStats_FirstDay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.WithClock(func() time.Time { return clock }))
	facts := &fakeFacts{rows: map[string][]stats.FactRow{"alice|2025-06-01": scenario()}}

	res, err := newHandler(facts, store).Handle(ctx, AggregateUserStatsCommand{Username: "alice", Date: "2025-06-01"})
	require.NoError(t, err)

	assert.True(t, res.Committed())
	assert.Equal(t, 3, res.SolvedCount)
	assert.Equal(t, 3, res.Total.TotalSolvedCount)
	assert.InDelta(t, 66.67, res.Total.Difficulty.Easy.Percentage, 0.01)
	assert.InDelta(t, 0.5, res.Total.Tags["array"].AverageDifficultyLevel, 1e-9)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, 1, res.Streak.LongestStreak)
	assert.Equal(t, clock, res.ProcessedAt)

	daily, err := store.GetDaily(ctx, "alice", "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 3, daily.YesterdaySolvedCount)
	assert.Equal(t, clock.Add(stats.DailyTTL).Unix(), daily.TTL)
}

func TestAggregateUserStats_RerunDoesNotDoubleCount(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.WithClock(func() time.Time { return clock }))
	facts := &fakeFacts{rows: map[string][]stats.FactRow{"alice|2025-06-01": scenario()}}
	h := newHandler(facts, store)
	cmd := AggregateUserStatsCommand{Username: "alice", Date: "2025-06-01"}

	_, err := h.Handle(ctx, cmd)
	require.NoError(t, err)

	res, err := h.Handle(ctx, cmd)
	require.NoError(t, err)
	assert.True(t, res.AlreadyDone)
	assert.False(t, res.Committed())
	assert.Equal(t, 1, facts.calls, "facts are not read again")

	total, err := store.GetTotal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, total.TotalSolvedCount)
}

func TestAggregateUserStats_ZeroDayWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.WithClock(func() time.Time { return clock }))
	facts := &fakeFacts{rows: map[string][]stats.FactRow{
		"alice|2025-06-02": {{MetricType: stats.MetricSummary, MetricKey: "solved_count", Count: "0"}},
	}}

	res, err := newHandler(facts, store).Handle(ctx, AggregateUserStatsCommand{Username: "alice", Date: "2025-06-02"})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, store.Len())

	committed, _ := store.IsCommitted(ctx, "alice", "2025-06-02")
	assert.False(t, committed)
}

func TestAggregateUserStats_StreakResetsAfterMissedDay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.WithClock(func() time.Time { return clock }))
	facts := &fakeFacts{rows: map[string][]stats.FactRow{
		"alice|2025-05-30": scenario(),
		"alice|2025-05-31": scenario(),
		"alice|2025-06-02": scenario(),
	}}
	h := newHandler(facts, store)

	// 2025-06-01 has no activity, so the batch never processes it.
	for _, date := range []string{"2025-05-30", "2025-05-31", "2025-06-02"} {
		_, err := h.Handle(ctx, AggregateUserStatsCommand{Username: "alice", Date: date})
		require.NoError(t, err)
	}

	streak, err := store.GetStreak(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 2, streak.LongestStreak)

	total, err := store.GetTotal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 9, total.TotalSolvedCount)
	assert.Equal(t, 6, total.Tags["array"].Count)
}

func TestAggregateUserStats_Errors(t *testing.T) {
	ctx := context.Background()
	fetchErr := errors.New("fact source down")
	commitErr := errors.New("cache down")

	tests := []struct {
		name    string
		cmd     AggregateUserStatsCommand
		facts   *fakeFacts
		repo    func() stats.Repository
		wantErr error
	}{
		{
			name:    "invalid date",
			cmd:     AggregateUserStatsCommand{Username: "alice", Date: "06/01"},
			facts:   &fakeFacts{},
			repo:    func() stats.Repository { return memory.NewStore() },
			wantErr: stats.ErrInvalidDate,
		},
		{
			name:    "fetch failure",
			cmd:     AggregateUserStatsCommand{Username: "alice", Date: "2025-06-01"},
			facts:   &fakeFacts{err: fetchErr},
			repo:    func() stats.Repository { return memory.NewStore() },
			wantErr: fetchErr,
		},
		{
			name:  "commit failure",
			cmd:   AggregateUserStatsCommand{Username: "alice", Date: "2025-06-01"},
			facts: &fakeFacts{rows: map[string][]stats.FactRow{"alice|2025-06-01": scenario()}},
			repo: func() stats.Repository {
				return failingCommitRepo{Store: memory.NewStore(), err: commitErr}
			},
			wantErr: commitErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newHandler(tt.facts, tt.repo()).Handle(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAggregateUserStats_ConcurrentCommitIsAlreadyDone(t *testing.T) {
	ctx := context.Background()
	repo := failingCommitRepo{Store: memory.NewStore(), err: stats.ErrAlreadyCommitted}
	facts := &fakeFacts{rows: map[string][]stats.FactRow{"alice|2025-06-01": scenario()}}

	res, err := newHandler(facts, repo).Handle(ctx, AggregateUserStatsCommand{Username: "alice", Date: "2025-06-01"})
	require.NoError(t, err)
	assert.True(t, res.AlreadyDone)
	assert.Nil(t, res.Total)
}

func TestAggregateUserStats_TrimsUsername(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.WithClock(func() time.Time { return clock }))
	facts := &fakeFacts{rows: map[string][]stats.FactRow{"alice|2025-06-01": scenario()}}

	res, err := newHandler(facts, store).Handle(ctx, AggregateUserStatsCommand{Username: " alice\t", Date: "2025-06-01"})
	require.NoError(t, err)

	assert.Equal(t, "alice", res.Username)
	assert.True(t, res.Committed())
	assert.Equal(t, "alice", res.Total.Username)

	total, err := store.GetTotal(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, total.TotalSolvedCount)

	_, err = store.GetTotal(ctx, " alice\t")
	assert.ErrorIs(t, err, stats.ErrNotFound)
}
