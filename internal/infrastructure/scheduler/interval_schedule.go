package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule runs a job at a fixed interval after the previous check.
type IntervalSchedule struct {
	Interval time.Duration
}

var _ Schedule = (*IntervalSchedule)(nil)

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns t plus the interval.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the schedule in "@every" form.
func (s *IntervalSchedule) String() string {
	return "@every " + s.Interval.String()
}

// DailySchedule fires once a day at Hour:Minute wall-clock time in Location.
// A wall-clock time skipped by DST is normalised by time.Date.
type DailySchedule struct {
	Hour     int
	Minute   int
	Location *time.Location
}

var _ Schedule = DailySchedule{}

// Next returns the first occurrence strictly after t.
func (s DailySchedule) Next(t time.Time) time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, s.Minute, 0, 0, loc)
	if !next.After(t) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.Hour, s.Minute, 0, 0, loc)
	}
	return next
}

// String returns the schedule as "daily HH:MM zone".
func (s DailySchedule) String() string {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return fmt.Sprintf("daily %02d:%02d %s", s.Hour, s.Minute, loc)
}
