package main

import (
	"fmt"
	"sort"
	"time"
)

// Paces must differ by more than this fraction of the earlier average before
// a trend counts as improving or declining. Relative, so the verdict does not
// depend on the unit or the runner's absolute speed.
const paceTrendThreshold = 0.02

// ActivityAnalyzer computes derived reports from activity lists. All methods
// are pure: reports are recomputed on every request, nothing is cached.
type ActivityAnalyzer struct{}

// NewActivityAnalyzer creates a new activity analyzer instance.
func NewActivityAnalyzer() *ActivityAnalyzer {
	return &ActivityAnalyzer{}
}

// WeeklyMileage buckets activities into the last `weeks` ISO weeks ending at
// the week containing `now`. It always returns exactly `weeks` reports,
// oldest to newest, with empty weeks present at zero. Activities outside the
// window are ignored.
func (a *ActivityAnalyzer) WeeklyMileage(activities []Activity, weeks int, now time.Time) []WeeklyMileageReport {
	if weeks < 1 {
		weeks = 1
	}

	latest := weekStart(now)
	reports := make([]WeeklyMileageReport, weeks)
	index := make(map[string]int, weeks)
	for i := range reports {
		start := latest.AddDate(0, 0, -7*(weeks-1-i))
		reports[i].WeekStart = start
		index[start.Format("2006-01-02")] = i
	}

	for _, act := range activities {
		key := weekStart(act.StartDateLocal).Format("2006-01-02")
		i, ok := index[key]
		if !ok {
			continue
		}
		reports[i].TotalMiles += metersToMiles(act.Distance)
		reports[i].RunCount++
	}

	return reports
}

// PaceTrend compares the first-half average pace against the second-half
// average over the activities, ordered by start date. Fewer than two
// activities with pace data always reads as stable.
func (a *ActivityAnalyzer) PaceTrend(activities []Activity) PaceTrendReport {
	withPace := make([]Activity, 0, len(activities))
	for _, act := range activities {
		if act.AverageSpeed > 0 {
			withPace = append(withPace, act)
		}
	}
	sort.Slice(withPace, func(i, j int) bool {
		return withPace[i].StartDateLocal.Before(withPace[j].StartDateLocal)
	})

	paces := make([]float64, len(withPace))
	for i, act := range withPace {
		paces[i] = paceSecondsPerMile(act.AverageSpeed)
	}

	report := PaceTrendReport{
		RunCount:    len(paces),
		AveragePace: "N/A",
		Trend:       TrendStable,
	}
	if len(paces) == 0 {
		return report
	}

	avg := mean(paces)
	report.AveragePaceSeconds = avg
	report.AveragePace = formatPace(avg)
	if len(paces) < 2 {
		return report
	}

	half := len(paces) / 2
	first := mean(paces[:half])
	second := mean(paces[len(paces)-half:])
	report.FirstHalfPace = formatPace(first)
	report.SecondHalfPace = formatPace(second)

	// Lower pace is faster.
	switch diff := second - first; {
	case diff < -paceTrendThreshold*first:
		report.Trend = TrendImproving
	case diff > paceTrendThreshold*first:
		report.Trend = TrendDeclining
	default:
		report.Trend = TrendStable
	}

	return report
}

// weekStart returns midnight on the Monday of the ISO week containing t, in
// t's location.
func weekStart(t time.Time) time.Time {
	daysFromMonday := (int(t.Weekday()) + 6) % 7
	t = t.AddDate(0, 0, -daysFromMonday)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func metersToMiles(meters float64) float64 {
	return meters * 0.000621371
}

// paceSecondsPerMile converts an average speed in m/s to seconds per mile.
func paceSecondsPerMile(mps float64) float64 {
	if mps <= 0 {
		return 0
	}
	return 1 / (mps * 0.000621371)
}

// formatPace renders seconds-per-mile as "M:SS".
func formatPace(secondsPerMile float64) string {
	if secondsPerMile <= 0 {
		return "N/A"
	}
	minutes := int(secondsPerMile) / 60
	seconds := int(secondsPerMile) % 60
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// formatDuration renders a duration in seconds as "M:SS".
func formatDuration(seconds int64) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
