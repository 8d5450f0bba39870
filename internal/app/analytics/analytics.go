// Package analytics turns raw clicks and links into the aggregates shown on
// the dashboard. Every function is pure: callers pass in the data and the
// current time.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/sifan077/linkpulse/internal/app/model"
)

const (
	dateLayout = "2006-01-02"
	unknown    = "Unknown"

	// RecentDays is the length of the dense click series on link details.
	RecentDays = 7
)

// DailyCounts groups clicks by UTC calendar day. Only days with at least one
// click appear; entries are ascending by date.
func DailyCounts(clicks []model.Click) []model.ClickStat {
	counts := make(map[string]int)
	for _, c := range clicks {
		counts[dayKey(c.Timestamp)]++
	}

	stats := make([]model.ClickStat, 0, len(counts))
	for day, n := range counts {
		stats = append(stats, model.ClickStat{Date: day, Count: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Date < stats[j].Date })
	return stats
}

// DailyWindow returns exactly days entries, one per UTC calendar day ending
// with end's day, ascending. Days without clicks have a zero count and clicks
// outside the window are ignored.
func DailyWindow(clicks []model.Click, end time.Time, days int) []model.ClickStat {
	if days <= 0 {
		return []model.ClickStat{}
	}

	last := truncateDay(end)
	first := last.AddDate(0, 0, -(days - 1))

	stats := make([]model.ClickStat, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		day := first.AddDate(0, 0, i).Format(dateLayout)
		stats[i] = model.ClickStat{Date: day}
		index[day] = i
	}

	for _, c := range clicks {
		if i, ok := index[dayKey(c.Timestamp)]; ok {
			stats[i].Count++
		}
	}
	return stats
}

// DeviceBreakdown counts clicks per device class. Missing devices are
// reported as "Unknown".
func DeviceBreakdown(clicks []model.Click) []model.DeviceStat {
	groups := breakdown(clicks, func(c model.Click) *string { return c.Device })
	stats := make([]model.DeviceStat, len(groups))
	for i, g := range groups {
		stats[i] = model.DeviceStat{Device: g.Label, Count: g.Count, Percentage: g.Percentage}
	}
	return stats
}

// BrowserBreakdown counts clicks per browser name.
func BrowserBreakdown(clicks []model.Click) []model.BreakdownStat {
	return breakdown(clicks, func(c model.Click) *string { return c.Browser })
}

// OSBreakdown counts clicks per operating system.
func OSBreakdown(clicks []model.Click) []model.BreakdownStat {
	return breakdown(clicks, func(c model.Click) *string { return c.OS })
}

// Dashboard computes the rollup over one user's links.
func Dashboard(links []model.Link, now time.Time) model.DashboardStats {
	horizon := now.Add(model.ExpiringSoonWindow)

	stats := model.DashboardStats{TotalLinks: len(links)}
	for _, l := range links {
		stats.TotalClicks += l.ClickCount

		if l.ExpiresAt == nil {
			stats.ActiveLinks++
			continue
		}
		if l.ExpiresAt.After(now) {
			stats.ActiveLinks++
			if !l.ExpiresAt.After(horizon) {
				stats.ExpiringLinks++
			}
		}
	}
	return stats
}

// Percentage returns count as a whole-number share of total, rounded to the
// nearest integer. It is 0 when total is 0.
func Percentage(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(count) * 100 / float64(total)))
}

func breakdown(clicks []model.Click, field func(model.Click) *string) []model.BreakdownStat {
	counts := make(map[string]int)
	for _, c := range clicks {
		label := unknown
		if v := field(c); v != nil && *v != "" {
			label = *v
		}
		counts[label]++
	}

	total := len(clicks)
	stats := make([]model.BreakdownStat, 0, len(counts))
	for label, n := range counts {
		stats = append(stats, model.BreakdownStat{
			Label:      label,
			Count:      n,
			Percentage: Percentage(n, total),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Label < stats[j].Label
	})
	return stats
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func dayKey(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
