// Package stats contains the aggregation core: parsing a day's facts,
// building the daily snapshot, merging the lifetime rollup and advancing the
// streak. Everything here is pure; I/O lives behind the ports in
// repository.go.
package stats

import (
	"strings"
	"time"
)

// DailyTTL is how long a daily snapshot stays readable after creation.
const DailyTTL = 7 * 24 * time.Hour

// ═══════════════════════════════════════════════════════════════════════════
// STAT TYPES
// ═══════════════════════════════════════════════════════════════════════════

// StatType is the second half of a stats key. The user name is the first.
type StatType string

const (
	// StatTotal identifies the lifetime rollup.
	StatTotal StatType = "TOTAL"
	// StatStreaks identifies the streak state.
	StatStreaks StatType = "STREAKS"

	dailyPrefix = "DAILY#"
	donePrefix  = "DONE#"
)

// DailyStatType returns the stat type of the snapshot for an ISO date.
func DailyStatType(date string) StatType {
	return StatType(dailyPrefix + date)
}

// DoneStatType returns the stat type of the completion marker for an ISO date.
func DoneStatType(date string) StatType {
	return StatType(donePrefix + date)
}

// IsDaily reports whether st names a daily snapshot.
func (st StatType) IsDaily() bool {
	return strings.HasPrefix(string(st), dailyPrefix)
}

// IsMarker reports whether st names a completion marker.
func (st StatType) IsMarker() bool {
	return strings.HasPrefix(string(st), donePrefix)
}

// Date returns the ISO date carried by a DAILY# or DONE# stat type.
func (st StatType) Date() (string, bool) {
	s := string(st)
	switch {
	case strings.HasPrefix(s, dailyPrefix):
		return strings.TrimPrefix(s, dailyPrefix), true
	case strings.HasPrefix(s, donePrefix):
		return strings.TrimPrefix(s, donePrefix), true
	default:
		return "", false
	}
}

// String returns the string representation.
func (st StatType) String() string {
	return string(st)
}

// Record is one of the persisted stats shapes: *DailyStats, *TotalStats or
// *StreakStats.
type Record interface {
	// StatType is the key under which the record is stored.
	StatType() StatType
	// ExpiresAt is the absolute expiry. The zero time means never.
	ExpiresAt() time.Time
}

var (
	_ Record = (*DailyStats)(nil)
	_ Record = (*TotalStats)(nil)
	_ Record = (*StreakStats)(nil)
)

// StatType implements Record.
func (d *DailyStats) StatType() StatType { return DailyStatType(d.Date) }

// ExpiresAt implements Record.
func (d *DailyStats) ExpiresAt() time.Time {
	if d.TTL <= 0 {
		return time.Time{}
	}
	return time.Unix(d.TTL, 0)
}

// StatType implements Record.
func (t *TotalStats) StatType() StatType { return StatTotal }

// ExpiresAt implements Record.
func (t *TotalStats) ExpiresAt() time.Time { return time.Time{} }

// StatType implements Record.
func (s *StreakStats) StatType() StatType { return StatStreaks }

// ExpiresAt implements Record.
func (s *StreakStats) ExpiresAt() time.Time { return time.Time{} }
