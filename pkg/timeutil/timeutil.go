// Package timeutil provides calendar-day helpers bound to an explicit
// time zone. Every "yesterday" in the stats engine is computed in one
// configured zone, so none of these functions read the process-local zone.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultZone is the zone the daily batch uses when none is configured.
const DefaultZone = "America/Los_Angeles"

// ISODateLayout is the layout used for stat keys and CLI flags.
const ISODateLayout = "2006-01-02"

// LoadLocation loads a zone by IANA name, falling back to DefaultZone for "".
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayRange returns the half-open interval [start, end) covering t's calendar
// day in loc. The interval is 23 or 25 hours long on DST transition days.
func DayRange(t time.Time, loc *time.Location) (start, end time.Time) {
	start = StartOfDay(t, loc)
	return start, start.AddDate(0, 0, 1)
}

// Yesterday returns midnight of the day before now in loc.
func Yesterday(now time.Time, loc *time.Location) time.Time {
	return StartOfDay(now, loc).AddDate(0, 0, -1)
}

// ISODate formats t as YYYY-MM-DD in loc.
func ISODate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(ISODateLayout)
}

// ParseISODate parses YYYY-MM-DD as midnight in loc.
func ParseISODate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(ISODateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return t, nil
}

// AddDays shifts an ISO date string by n calendar days.
func AddDays(isoDate string, n int) (string, error) {
	t, err := time.Parse(ISODateLayout, isoDate)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", isoDate, err)
	}
	return t.AddDate(0, 0, n).Format(ISODateLayout), nil
}

// IsConsecutiveDay reports whether next is the calendar day after prev.
// Both are ISO date strings.
func IsConsecutiveDay(prev, next string) bool {
	want, err := AddDays(prev, 1)
	return err == nil && want == next
}
