package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/leetsync/leetsync-stats/internal/application/command"
	"github.com/leetsync/leetsync-stats/internal/application/query"
	"github.com/leetsync/leetsync-stats/internal/domain/stats"
	"github.com/leetsync/leetsync-stats/internal/infrastructure/scheduler/jobs"
)

func newTable(w io.Writer, title string) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Footer = text.FormatDefault
	tbl.SetTitle(title)
	return tbl
}

// renderBatch prints the run report followed by one row per failed user.
func renderBatch(w io.Writer, res *jobs.BatchResult, dryRun bool) error {
	title := "Daily stats " + res.Date
	if dryRun {
		title += " (dry run)"
	}

	tbl := newTable(w, title)
	tbl.AppendHeader(table.Row{"Active", "Committed", "Skipped", "Already done", "Failed", "Duration"})
	tbl.AppendRow(table.Row{res.Total, res.Committed, res.Skipped, res.AlreadyDone, res.Failed, res.Duration.Round(time.Millisecond)})
	tbl.AppendFooter(table.Row{res.Summary()})
	tbl.Render()

	if len(res.Failures) > 0 {
		failures := newTable(w, "Failed users")
		failures.AppendHeader(table.Row{"Username", "Retryable", "Error"})
		for _, f := range res.Failures {
			retry := "no"
			if f.Retryable {
				retry = "yes"
			}
			failures.AppendRow(table.Row{f.Username, retry, f.Err.Error()})
		}
		failures.Render()
	}

	_, err := fmt.Fprintf(w, "run %s\n", res.RunID)
	return err
}

// renderUserResult prints what one pipeline run did.
func renderUserResult(w io.Writer, res *command.AggregateUserStatsResult, dryRun bool) error {
	status := "committed"
	switch {
	case res.AlreadyDone:
		status = "already committed, nothing written"
	case res.Skipped:
		status = "no solved problems, nothing written"
	case dryRun:
		status = "computed (dry run, nothing written)"
	}
	if _, err := fmt.Fprintf(w, "%s on %s: %s\n", res.Username, res.Date, status); err != nil {
		return err
	}
	if !res.Committed() {
		return nil
	}

	if res.Daily != nil {
		renderDaily(w, []stats.DailyStats{*res.Daily})
	}
	if res.Total != nil {
		renderTotal(w, res.Total)
	}
	if res.Streak != nil {
		renderStreak(w, res.Streak, res.Streak.CurrentStreak)
	}
	return nil
}

// renderUserStats prints the stored records of one user.
func renderUserStats(w io.Writer, dto *query.UserStatsDTO) error {
	if dto.Total != nil {
		renderTotal(w, dto.Total)
	}
	if dto.Streak != nil {
		renderStreak(w, dto.Streak, dto.CurrentStreak)
	}

	renderDaily(w, dto.Recent)

	window := newTable(w, fmt.Sprintf("Last %d days to %s", dto.Window.Days, dto.EndDate))
	window.AppendHeader(table.Row{"Active days", "Solved", "Per day", "Easy", "Medium", "Hard"})
	window.AppendRow(table.Row{
		dto.Window.ActiveDays,
		dto.Window.TotalSolved,
		fmt.Sprintf("%.2f", dto.Window.AveragePerDay),
		level(dto.Window.Difficulty.Easy),
		level(dto.Window.Difficulty.Medium),
		level(dto.Window.Difficulty.Hard),
	})
	window.Render()
	return nil
}

func renderTotal(w io.Writer, t *stats.TotalStats) {
	tbl := newTable(w, fmt.Sprintf("Lifetime: %d solved", t.TotalSolvedCount))
	tbl.AppendHeader(table.Row{"Difficulty", "Count", "Share"})
	tbl.AppendRow(table.Row{"Easy", t.Difficulty.Easy.Count, pct(t.Difficulty.Easy.Percentage)})
	tbl.AppendRow(table.Row{"Medium", t.Difficulty.Medium.Count, pct(t.Difficulty.Medium.Percentage)})
	tbl.AppendRow(table.Row{"Hard", t.Difficulty.Hard.Count, pct(t.Difficulty.Hard.Percentage)})
	tbl.Render()

	if len(t.Tags) == 0 {
		return
	}

	tags := make([]string, 0, len(t.Tags))
	for tag := range t.Tags {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		a, b := t.Tags[tags[i]], t.Tags[tags[j]]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return tags[i] < tags[j]
	})

	tagTbl := newTable(w, "Tags")
	tagTbl.AppendHeader(table.Row{"Tag", "Count", "Avg runtime (ms)", "Avg memory (MB)", "Avg difficulty"})
	tagTbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	for _, tag := range tags {
		avg := t.Tags[tag]
		tagTbl.AppendRow(table.Row{
			tag,
			avg.Count,
			fmt.Sprintf("%.2f", avg.AverageRuntimeMs),
			fmt.Sprintf("%.2f", avg.AverageMemoryMb),
			fmt.Sprintf("%.2f", avg.AverageDifficultyLevel),
		})
	}
	tagTbl.Render()
}

func renderStreak(w io.Writer, s *stats.StreakStats, current int) {
	tbl := newTable(w, "Streak")
	tbl.AppendHeader(table.Row{"Current", "Longest", "Last active"})
	tbl.AppendRow(table.Row{current, s.LongestStreak, s.LastActiveDate})
	tbl.Render()
}

func renderDaily(w io.Writer, days []stats.DailyStats) {
	tbl := newTable(w, "Daily snapshots")
	tbl.AppendHeader(table.Row{"Date", "Solved", "Easy", "Medium", "Hard", "Problems"})
	for _, d := range days {
		tbl.AppendRow(table.Row{
			d.Date,
			d.YesterdaySolvedCount,
			level(d.Difficulty.Easy),
			level(d.Difficulty.Medium),
			level(d.Difficulty.Hard),
			strings.Join(d.ProblemsSolved, ", "),
		})
	}
	if len(days) == 0 {
		tbl.AppendRow(table.Row{"none", "", "", "", "", ""})
	}
	tbl.Render()
}

func level(l stats.DifficultyLevel) string {
	return fmt.Sprintf("%d (%s)", l.Count, pct(l.Percentage))
}

func pct(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}
