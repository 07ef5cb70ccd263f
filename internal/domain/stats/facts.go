package stats

import (
	"math"
	"strconv"
	"strings"
)

// Difficulty is the problem difficulty level as the fact source reports it.
type Difficulty int

const (
	DifficultyEasy   Difficulty = 1
	DifficultyMedium Difficulty = 2
	DifficultyHard   Difficulty = 3
)

// IsValid reports whether d is one of the three known levels.
func (d Difficulty) IsValid() bool {
	return d >= DifficultyEasy && d <= DifficultyHard
}

// String returns the lower-case level name.
func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "easy"
	case DifficultyMedium:
		return "medium"
	case DifficultyHard:
		return "hard"
	default:
		return "unknown"
	}
}

// MetricType tags the rows returned by the fact source.
type MetricType string

const (
	MetricSummary    MetricType = "summary"
	MetricDifficulty MetricType = "difficulty"
	MetricTag        MetricType = "tag"
	MetricProblem    MetricType = "problem"
)

// FactRow is one raw row of the fact source result. Numeric cells stay
// textual because the source may emit sparse placeholder rows with empty
// cells; ParseFacts decides how to read them.
type FactRow struct {
	MetricType         MetricType
	MetricKey          string
	Count              string
	SumRuntimeMs       string
	SumMemoryMb        string
	SumDifficultyLevel string
}

// TagTotal is a tag's raw sums for one day. Count is the number of
// (problem, tag) pairs.
type TagTotal struct {
	Count              int
	SumRuntimeMs       float64
	SumMemoryMb        float64
	SumDifficultyLevel float64
}

// DailyFacts is one user's activity for one day, as parsed from the fact
// source. It is never persisted as-is.
type DailyFacts struct {
	TotalSolved      int
	DifficultyCounts map[Difficulty]int
	TagTotals        map[string]TagTotal
	ProblemTitles    []string
}

// IsEmpty reports whether the day contributes nothing downstream.
func (f DailyFacts) IsEmpty() bool {
	return f.TotalSolved == 0
}

// ParseFacts folds the fact source rows for one user and day into
// DailyFacts. It never fails: empty or malformed numeric cells read as zero,
// unknown metric types and difficulty keys outside 1..3 are ignored, and tag
// rows with a zero count are dropped. Repeated keys accumulate, so the
// result does not depend on row order (problem titles excepted, which keep
// the order they arrived in).
func ParseFacts(rows []FactRow) DailyFacts {
	facts := DailyFacts{
		DifficultyCounts: make(map[Difficulty]int),
		TagTotals:        make(map[string]TagTotal),
	}

	for _, row := range rows {
		switch MetricType(strings.ToLower(strings.TrimSpace(string(row.MetricType)))) {
		case MetricSummary:
			facts.TotalSolved += parseCount(row.Count)

		case MetricDifficulty:
			level := Difficulty(parseCount(row.MetricKey))
			if !level.IsValid() {
				continue
			}
			if n := parseCount(row.Count); n > 0 {
				facts.DifficultyCounts[level] += n
			}

		case MetricTag:
			tag := strings.TrimSpace(row.MetricKey)
			count := parseCount(row.Count)
			if tag == "" || count == 0 {
				continue
			}
			t := facts.TagTotals[tag]
			t.Count += count
			t.SumRuntimeMs += parseNumber(row.SumRuntimeMs)
			t.SumMemoryMb += parseNumber(row.SumMemoryMb)
			t.SumDifficultyLevel += parseNumber(row.SumDifficultyLevel)
			facts.TagTotals[tag] = t

		case MetricProblem:
			if title := strings.TrimSpace(row.MetricKey); title != "" {
				facts.ProblemTitles = append(facts.ProblemTitles, title)
			}
		}
	}

	// A bucket count can never exceed the day's total.
	if sum := facts.difficultySum(); sum > facts.TotalSolved {
		facts.TotalSolved = sum
	}

	return facts
}

func (f DailyFacts) difficultySum() int {
	sum := 0
	for _, n := range f.DifficultyCounts {
		sum += n
	}
	return sum
}

// parseCount reads a non-negative integer cell. "3", "3.0" and " 3 " all
// read as 3; anything else reads as 0.
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return max(n, 0)
	}
	f := parseNumber(s)
	if f <= 0 || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// parseNumber reads a float cell, returning 0 for empty, malformed or
// non-finite values.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
