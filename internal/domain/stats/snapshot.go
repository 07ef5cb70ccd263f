package stats

import (
	"slices"
	"time"
)

// DifficultyLevel is one bucket of a breakdown.
type DifficultyLevel struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DifficultyBreakdown splits a solved count by difficulty.
type DifficultyBreakdown struct {
	Easy   DifficultyLevel `json:"easy"`
	Medium DifficultyLevel `json:"medium"`
	Hard   DifficultyLevel `json:"hard"`
}

// NewBreakdown computes each bucket's share of total. Every percentage is
// 100*count/total, or 0 when total is 0.
func NewBreakdown(counts map[Difficulty]int, total int) DifficultyBreakdown {
	return DifficultyBreakdown{
		Easy:   newLevel(counts[DifficultyEasy], total),
		Medium: newLevel(counts[DifficultyMedium], total),
		Hard:   newLevel(counts[DifficultyHard], total),
	}
}

func newLevel(count, total int) DifficultyLevel {
	if total <= 0 {
		return DifficultyLevel{Count: count}
	}
	return DifficultyLevel{
		Count:      count,
		Percentage: 100 * float64(count) / float64(total),
	}
}

// Counts returns the bucket counts keyed by level.
func (b DifficultyBreakdown) Counts() map[Difficulty]int {
	return map[Difficulty]int{
		DifficultyEasy:   b.Easy.Count,
		DifficultyMedium: b.Medium.Count,
		DifficultyHard:   b.Hard.Count,
	}
}

// Sum returns the total across the three buckets.
func (b DifficultyBreakdown) Sum() int {
	return b.Easy.Count + b.Medium.Count + b.Hard.Count
}

// DailyStats is the snapshot of one user's day. It is written once and
// expires DailyTTL after creation.
type DailyStats struct {
	Username             string              `json:"username"`
	Date                 string              `json:"date"`
	YesterdaySolvedCount int                 `json:"yesterdaySolvedCount"`
	Difficulty           DifficultyBreakdown `json:"difficulty"`
	ProblemsSolved       []string            `json:"problemsSolved"`
	// TTL is the expiry in epoch seconds.
	TTL int64 `json:"ttl"`
}

// BuildDailyStats turns a day's facts into its snapshot. Percentages are
// against the day's own total.
func BuildDailyStats(username, date string, facts DailyFacts, now time.Time) DailyStats {
	problems := slices.Clone(facts.ProblemTitles)
	if problems == nil {
		problems = []string{}
	}

	return DailyStats{
		Username:             username,
		Date:                 date,
		YesterdaySolvedCount: facts.TotalSolved,
		Difficulty:           NewBreakdown(facts.DifficultyCounts, facts.TotalSolved),
		ProblemsSolved:       problems,
		TTL:                  now.Add(DailyTTL).Unix(),
	}
}
