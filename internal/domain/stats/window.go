package stats

// DefaultWindowDays is the length of the recent-activity window.
const DefaultWindowDays = 7

// WindowSummary is a read-time view over the recent daily snapshots. It is
// computed on demand and never stored.
type WindowSummary struct {
	Days          int                 `json:"days"`
	ActiveDays    int                 `json:"activeDays"`
	TotalSolved   int                 `json:"totalSolved"`
	AveragePerDay float64             `json:"averagePerDay"`
	Difficulty    DifficultyBreakdown `json:"difficulty"`
}

// SummarizeWindow aggregates the snapshots of the last window days. Days
// without a snapshot count as zero, so the average is over the full window.
func SummarizeWindow(days []DailyStats, window int) WindowSummary {
	if window <= 0 {
		window = DefaultWindowDays
	}

	summary := WindowSummary{Days: window}
	counts := make(map[Difficulty]int, 3)
	seen := make(map[string]struct{}, len(days))

	for _, d := range days {
		if _, dup := seen[d.Date]; dup {
			continue
		}
		seen[d.Date] = struct{}{}

		if d.YesterdaySolvedCount > 0 {
			summary.ActiveDays++
		}
		summary.TotalSolved += d.YesterdaySolvedCount
		for level, n := range d.Difficulty.Counts() {
			counts[level] += n
		}
	}

	summary.AveragePerDay = float64(summary.TotalSolved) / float64(window)
	summary.Difficulty = NewBreakdown(counts, summary.TotalSolved)
	return summary
}
