package scheduler

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron expression evaluated in a fixed
// location: minute hour day-of-month month day-of-week.
// Examples:
//   - "0 2 * * *"    - every day at 02:00
//   - "*/15 * * * *" - every 15 minutes
//   - "0 0 * * 0"    - every Sunday at midnight
//
// Fields accept *, n, n-m, */s, n-m/s and comma lists of those. As in
// classic cron, when both day fields are restricted a time matches if
// either one does.
type CronExpression struct {
	raw      string
	location *time.Location
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)

	daysRestricted     bool
	weekdaysRestricted bool
}

var _ Schedule = (*CronExpression)(nil)

// ParseCronExpression parses expr. A nil loc means UTC.
func ParseCronExpression(expr string, loc *time.Location) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}
	if loc == nil {
		loc = time.UTC
	}

	ce := &CronExpression{
		raw:                expr,
		location:           loc,
		daysRestricted:     fields[2] != "*",
		weekdaysRestricted: fields[4] != "*",
	}

	specs := []struct {
		name     string
		field    string
		min, max int
		dst      *[]int
	}{
		{"minute", fields[0], 0, 59, &ce.minutes},
		{"hour", fields[1], 0, 23, &ce.hours},
		{"day", fields[2], 1, 31, &ce.days},
		{"month", fields[3], 1, 12, &ce.months},
		{"weekday", fields[4], 0, 6, &ce.weekdays},
	}
	for _, s := range specs {
		values, err := parseField(s.field, s.min, s.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", s.name, err)
		}
		*s.dst = values
	}

	return ce, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for constants.
func MustParseCronExpression(expr string, loc *time.Location) *CronExpression {
	ce, err := ParseCronExpression(expr, loc)
	if err != nil {
		panic(err)
	}
	return ce
}

// ParseSchedule accepts either a cron expression or "@every <duration>".
func ParseSchedule(expr string, loc *time.Location) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if rest, ok := strings.CutPrefix(expr, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("invalid interval %q: %w", rest, err)
		}
		if d < time.Second {
			return nil, fmt.Errorf("invalid interval %q: must be at least 1s", rest)
		}
		return NewIntervalSchedule(d), nil
	}
	if expr == "@daily" || expr == "@midnight" {
		expr = "0 0 * * *"
	}
	return ParseCronExpression(expr, loc)
}

func parseField(field string, min, max int) ([]int, error) {
	var out []int
	for _, part := range strings.Split(field, ",") {
		values, err := parsePart(part, min, max)
		if err != nil {
			return nil, err
		}
		out = append(out, values...)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func parsePart(part string, min, max int) ([]int, error) {
	rng, stepStr, hasStep := strings.Cut(part, "/")

	step := 1
	if hasStep {
		s, err := strconv.Atoi(stepStr)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid step %q", stepStr)
		}
		step = s
	}

	start, end := min, max
	switch {
	case rng == "*":
	case strings.Contains(rng, "-"):
		lo, hi, _ := strings.Cut(rng, "-")
		var err error
		if start, err = parseBound(lo, min, max); err != nil {
			return nil, err
		}
		if end, err = parseBound(hi, min, max); err != nil {
			return nil, err
		}
		if start > end {
			return nil, fmt.Errorf("invalid range %q", rng)
		}
	default:
		v, err := parseBound(rng, min, max)
		if err != nil {
			return nil, err
		}
		start = v
		if !hasStep {
			end = v
		}
	}

	values := make([]int, 0, (end-start)/step+1)
	for i := start; i <= end; i += step {
		values = append(values, i)
	}
	return values, nil
}

func parseBound(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value out of range [%d-%d]: %d", min, max, v)
	}
	return v, nil
}

// String returns the original expression and its zone.
func (ce *CronExpression) String() string {
	return ce.raw + " " + ce.location.String()
}

// Next returns the first matching minute strictly after t, or the zero
// time if none falls within a year. Wall-clock minutes skipped by a DST
// jump never match.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.In(ce.location).Truncate(time.Minute).Add(time.Minute)

	const horizon = 366 * 24 * 60
	for i := 0; i < horizon; i++ {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	if !slices.Contains(ce.minutes, t.Minute()) ||
		!slices.Contains(ce.hours, t.Hour()) ||
		!slices.Contains(ce.months, int(t.Month())) {
		return false
	}

	dayOK := slices.Contains(ce.days, t.Day())
	weekdayOK := slices.Contains(ce.weekdays, int(t.Weekday()))
	if ce.daysRestricted && ce.weekdaysRestricted {
		return dayOK || weekdayOK
	}
	return dayOK && weekdayOK
}
