package stats

import "github.com/leetsync/leetsync-stats/pkg/timeutil"

// StreakStats tracks consecutive active days. LongestStreak is a high-water
// mark and never decreases; CurrentStreak resets to 0 on a missed day.
type StreakStats struct {
	Username      string `json:"username"`
	CurrentStreak int    `json:"currentStreak"`
	LongestStreak int    `json:"longestStreak"`
	// LastActiveDate is the ISO date of the last day counted in CurrentStreak.
	LastActiveDate string `json:"lastActiveDate,omitempty"`
}

// Active reports whether the state machine is in the active state.
func (s StreakStats) Active() bool {
	return s.CurrentStreak > 0
}

// NextStreak is one transition of the streak state machine.
//
//	solved, no prior state    -> current 1, longest 1
//	solved, current n         -> current n+1, longest max(longest, n+1)
//	not solved                -> current 0, longest unchanged
func NextStreak(prev *StreakStats, username string, solved bool) StreakStats {
	next := StreakStats{Username: username}
	if prev != nil {
		next.CurrentStreak = prev.CurrentStreak
		next.LongestStreak = prev.LongestStreak
		next.LastActiveDate = prev.LastActiveDate
	}

	if !solved {
		next.CurrentStreak = 0
		return next
	}

	next.CurrentStreak++
	next.LongestStreak = max(next.LongestStreak, next.CurrentStreak)
	return next
}

// AdvanceStreak records an active day. Inactive days are never processed
// (nothing is written for them), so a gap since LastActiveDate is detected
// here and applied as a missed-day transition before the active one.
// Advancing twice for the same date is a no-op; a date before
// LastActiveDate is rejected.
func AdvanceStreak(prev *StreakStats, username, date string) (StreakStats, error) {
	if err := ValidateDate(date); err != nil {
		return StreakStats{}, err
	}

	if prev != nil && prev.LastActiveDate != "" {
		switch {
		case prev.LastActiveDate == date:
			same := *prev
			same.Username = username
			return same, nil
		case date < prev.LastActiveDate:
			return StreakStats{}, ErrOutOfOrderDate
		case !timeutil.IsConsecutiveDay(prev.LastActiveDate, date):
			missed := NextStreak(prev, username, false)
			prev = &missed
		}
	}

	next := NextStreak(prev, username, true)
	next.LastActiveDate = date
	return next, nil
}
