package stats

// TagAverage is the running per-tag profile of a user.
type TagAverage struct {
	Count                  int     `json:"count"`
	AverageRuntimeMs       float64 `json:"averageRuntimeMs"`
	AverageMemoryMb        float64 `json:"averageMemoryMb"`
	AverageDifficultyLevel float64 `json:"averageDifficultyLevel"`
}

// TotalStats is a user's lifetime rollup. It is created on the first active
// day and merged once per active day afterwards.
type TotalStats struct {
	Username         string                `json:"username"`
	TotalSolvedCount int                   `json:"totalSolvedCount"`
	Difficulty       DifficultyBreakdown   `json:"difficulty"`
	Tags             map[string]TagAverage `json:"tags"`
}

// MergeTotal folds one day of facts into the lifetime rollup. A nil prev
// starts a new rollup from the day alone.
//
// Only the running average and count are kept per tag, so an existing
// average is turned back into a sum before the day's sum is added:
//
//	newAvg = (oldAvg*oldCount + daySum) / (oldCount + dayCount)
//
// MergeTotal does no deduplication. Applying the same day twice counts it
// twice; callers guard against that with the completion marker. prev is
// never modified.
func MergeTotal(prev *TotalStats, username string, facts DailyFacts) TotalStats {
	out := TotalStats{
		Username: username,
		Tags:     make(map[string]TagAverage, len(facts.TagTotals)),
	}

	counts := facts.DifficultyCounts
	if prev != nil {
		out.TotalSolvedCount = prev.TotalSolvedCount
		for tag, avg := range prev.Tags {
			out.Tags[tag] = avg
		}

		counts = prev.Difficulty.Counts()
		for level, n := range facts.DifficultyCounts {
			counts[level] += n
		}
	}

	out.TotalSolvedCount += facts.TotalSolved
	out.Difficulty = NewBreakdown(counts, out.TotalSolvedCount)

	for tag, day := range facts.TagTotals {
		if day.Count <= 0 {
			continue
		}
		old, ok := out.Tags[tag]
		if !ok || old.Count <= 0 {
			out.Tags[tag] = dayAverage(day)
			continue
		}
		out.Tags[tag] = mergeTag(old, day)
	}

	return out
}

func dayAverage(day TagTotal) TagAverage {
	n := float64(day.Count)
	return TagAverage{
		Count:                  day.Count,
		AverageRuntimeMs:       day.SumRuntimeMs / n,
		AverageMemoryMb:        day.SumMemoryMb / n,
		AverageDifficultyLevel: day.SumDifficultyLevel / n,
	}
}

func mergeTag(old TagAverage, day TagTotal) TagAverage {
	count := old.Count + day.Count
	return TagAverage{
		Count:                  count,
		AverageRuntimeMs:       weightedAverage(old.AverageRuntimeMs, old.Count, day.SumRuntimeMs, day.Count),
		AverageMemoryMb:        weightedAverage(old.AverageMemoryMb, old.Count, day.SumMemoryMb, day.Count),
		AverageDifficultyLevel: weightedAverage(old.AverageDifficultyLevel, old.Count, day.SumDifficultyLevel, day.Count),
	}
}

func weightedAverage(oldAvg float64, oldCount int, daySum float64, dayCount int) float64 {
	total := oldCount + dayCount
	if total <= 0 {
		return 0
	}
	return (oldAvg*float64(oldCount) + daySum) / float64(total)
}
