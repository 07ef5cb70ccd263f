package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eps = 1e-9

func TestNewBreakdown_PercentagesMatchCounts(t *testing.T) {
	tests := []struct {
		counts map[Difficulty]int
		total  int
	}{
		{map[Difficulty]int{DifficultyEasy: 2, DifficultyMedium: 1}, 3},
		{map[Difficulty]int{DifficultyEasy: 1, DifficultyMedium: 1, DifficultyHard: 1}, 7},
		{map[Difficulty]int{DifficultyHard: 9}, 9},
		{map[Difficulty]int{}, 4},
	}

	for _, tt := range tests {
		b := NewBreakdown(tt.counts, tt.total)
		sum := 0.0
		for _, lvl := range []DifficultyLevel{b.Easy, b.Medium, b.Hard} {
			assert.InDelta(t, 100*float64(lvl.Count)/float64(tt.total), lvl.Percentage, eps)
			sum += lvl.Percentage
		}
		assert.LessOrEqual(t, sum, 100+eps)
		assert.LessOrEqual(t, b.Sum(), tt.total)
	}
}

func TestNewBreakdown_ZeroTotal(t *testing.T) {
	b := NewBreakdown(map[Difficulty]int{DifficultyEasy: 1}, 0)
	assert.Equal(t, DifficultyLevel{Count: 1}, b.Easy)
	assert.Zero(t, b.Medium.Percentage)
}

func TestBuildDailyStats(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	daily := BuildDailyStats("alice", "2025-06-01", ParseFacts(scenarioRows()), now)

	assert.Equal(t, "alice", daily.Username)
	assert.Equal(t, "2025-06-01", daily.Date)
	assert.Equal(t, 3, daily.YesterdaySolvedCount)
	assert.Equal(t, 2, daily.Difficulty.Easy.Count)
	assert.InDelta(t, 66.6667, daily.Difficulty.Easy.Percentage, 1e-3)
	assert.InDelta(t, 33.3333, daily.Difficulty.Medium.Percentage, 1e-3)
	assert.Len(t, daily.ProblemsSolved, 3)
	assert.Equal(t, now.Add(7*24*time.Hour).Unix(), daily.TTL)

	assert.Equal(t, StatType("DAILY#2025-06-01"), daily.StatType())
	assert.True(t, now.Add(DailyTTL).Equal(daily.ExpiresAt()))
}

func TestBuildDailyStats_NoProblemsIsEmptySlice(t *testing.T) {
	daily := BuildDailyStats("bob", "2025-06-01", DailyFacts{TotalSolved: 1}, time.Now())
	assert.NotNil(t, daily.ProblemsSolved)
	assert.Empty(t, daily.ProblemsSolved)
}

func TestMergeTotal_EndToEndScenario(t *testing.T) {
	total := MergeTotal(nil, "alice", ParseFacts(scenarioRows()))

	assert.Equal(t, "alice", total.Username)
	assert.Equal(t, 3, total.TotalSolvedCount)
	assert.Equal(t, 2, total.Difficulty.Easy.Count)
	assert.InDelta(t, 66.7, total.Difficulty.Easy.Percentage, 0.05)
	assert.Equal(t, 1, total.Difficulty.Medium.Count)
	assert.InDelta(t, 33.3, total.Difficulty.Medium.Percentage, 0.05)
	assert.Equal(t, DifficultyLevel{}, total.Difficulty.Hard)

	require.Contains(t, total.Tags, "array")
	arr := total.Tags["array"]
	assert.Equal(t, 2, arr.Count)
	assert.InDelta(t, 10, arr.AverageRuntimeMs, eps)
	assert.InDelta(t, 5, arr.AverageMemoryMb, eps)
	assert.InDelta(t, 0.5, arr.AverageDifficultyLevel, eps)

	streak, err := AdvanceStreak(nil, "alice", "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 1, streak.LongestStreak)
}

func TestMergeTotal_WeightedAverage(t *testing.T) {
	prev := &TotalStats{
		Username:         "alice",
		TotalSolvedCount: 10,
		Difficulty:       NewBreakdown(map[Difficulty]int{DifficultyEasy: 10}, 10),
		Tags: map[string]TagAverage{
			"array": {Count: 10, AverageRuntimeMs: 50, AverageMemoryMb: 20, AverageDifficultyLevel: 1},
		},
	}
	day := DailyFacts{
		TotalSolved:      5,
		DifficultyCounts: map[Difficulty]int{DifficultyHard: 5},
		TagTotals: map[string]TagTotal{
			"array": {Count: 5, SumRuntimeMs: 300, SumMemoryMb: 50, SumDifficultyLevel: 15},
			"heap":  {Count: 2, SumRuntimeMs: 8, SumMemoryMb: 4, SumDifficultyLevel: 4},
		},
	}

	got := MergeTotal(prev, "alice", day)

	assert.Equal(t, 15, got.TotalSolvedCount)
	arr := got.Tags["array"]
	assert.Equal(t, 15, arr.Count)
	assert.InDelta(t, (50.0*10+300)/15, arr.AverageRuntimeMs, eps)
	assert.InDelta(t, (20.0*10+50)/15, arr.AverageMemoryMb, eps)
	assert.InDelta(t, (1.0*10+15)/15, arr.AverageDifficultyLevel, eps)

	assert.Equal(t, TagAverage{Count: 2, AverageRuntimeMs: 4, AverageMemoryMb: 2, AverageDifficultyLevel: 2}, got.Tags["heap"])

	// Percentages are recomputed against the new lifetime total.
	assert.Equal(t, 10, got.Difficulty.Easy.Count)
	assert.Equal(t, 5, got.Difficulty.Hard.Count)
	assert.InDelta(t, 100*10.0/15, got.Difficulty.Easy.Percentage, eps)
	assert.InDelta(t, 100*5.0/15, got.Difficulty.Hard.Percentage, eps)

	// prev is untouched.
	assert.Equal(t, 10, prev.TotalSolvedCount)
	assert.Equal(t, 10, prev.Tags["array"].Count)
	assert.NotContains(t, prev.Tags, "heap")
}

// Merging the same day twice double-counts. The completion marker in the
// repository is what keeps this from happening in a batch.
func TestMergeTotal_NotIdempotent(t *testing.T) {
	facts := ParseFacts(scenarioRows())

	once := MergeTotal(nil, "alice", facts)
	twice := MergeTotal(&once, "alice", facts)

	assert.Equal(t, 2*once.TotalSolvedCount, twice.TotalSolvedCount)
	assert.Equal(t, 2*once.Difficulty.Easy.Count, twice.Difficulty.Easy.Count)
	assert.Equal(t, 2*once.Tags["array"].Count, twice.Tags["array"].Count)
	// Averages are unchanged because the same day is added again.
	assert.InDelta(t, once.Tags["array"].AverageRuntimeMs, twice.Tags["array"].AverageRuntimeMs, eps)
}

func TestSummarizeWindow(t *testing.T) {
	days := []DailyStats{
		{Date: "2025-06-07", YesterdaySolvedCount: 4, Difficulty: NewBreakdown(map[Difficulty]int{DifficultyEasy: 3, DifficultyHard: 1}, 4)},
		{Date: "2025-06-05", YesterdaySolvedCount: 3, Difficulty: NewBreakdown(map[Difficulty]int{DifficultyMedium: 3}, 3)},
		{Date: "2025-06-05", YesterdaySolvedCount: 3, Difficulty: NewBreakdown(map[Difficulty]int{DifficultyMedium: 3}, 3)},
	}

	s := SummarizeWindow(days, 7)

	assert.Equal(t, 7, s.Days)
	assert.Equal(t, 2, s.ActiveDays)
	assert.Equal(t, 7, s.TotalSolved)
	assert.InDelta(t, 1.0, s.AveragePerDay, eps)
	assert.Equal(t, 3, s.Difficulty.Easy.Count)
	assert.Equal(t, 3, s.Difficulty.Medium.Count)
	assert.InDelta(t, 100*3.0/7, s.Difficulty.Medium.Percentage, eps)

	empty := SummarizeWindow(nil, 0)
	assert.Equal(t, DefaultWindowDays, empty.Days)
	assert.Zero(t, empty.AveragePerDay)
}

func TestStatType(t *testing.T) {
	daily := DailyStatType("2025-01-02")
	assert.True(t, daily.IsDaily())
	assert.False(t, daily.IsMarker())
	date, ok := daily.Date()
	assert.True(t, ok)
	assert.Equal(t, "2025-01-02", date)

	done := DoneStatType("2025-01-02")
	assert.True(t, done.IsMarker())
	assert.Equal(t, "DONE#2025-01-02", done.String())

	_, ok = StatTotal.Date()
	assert.False(t, ok)
	assert.True(t, (&TotalStats{}).ExpiresAt().IsZero())
	assert.True(t, (&StreakStats{}).ExpiresAt().IsZero())
}

func TestValidateDate(t *testing.T) {
	assert.NoError(t, ValidateDate("2024-02-29"))
	for _, bad := range []string{"", "2023-02-29", "06/01/2025", "2025-6-1"} {
		err := ValidateDate(bad)
		assert.ErrorIs(t, err, ErrInvalidDate, bad)
	}
}
