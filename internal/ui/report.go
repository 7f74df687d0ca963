package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/resource_monitor/internal/report"
)

// usageColumns are the peaks shown per event occurrence.
var usageColumns = []string{"cpu_percent", "rss_mb", "vms_mb", "read_mb", "write_mb"}

// RenderReport formats a summary of a resource log and an event log. Either
// may be nil.
func RenderReport(res *report.ResourceLog, evs *report.EventLog) string {
	var parts []string
	if res != nil {
		parts = append(parts, titleStyle.Render("Resources")+"  "+subtleStyle.Render(res.Banner))
		parts = append(parts, card("Host", renderGlobal(res.Global)))
		parts = append(parts, card(fmt.Sprintf("Columns (%d samples)", res.Rows()), renderStats(report.Summarize(res))))
	}
	if evs != nil {
		parts = append(parts, titleStyle.Render("Events"))
		parts = append(parts, card("Occurrences", renderEventStats(report.SummarizeEvents(evs))))
	}
	if res != nil && evs != nil {
		if u := report.EventUsage(evs, res); len(u) > 0 {
			parts = append(parts, card("Peak usage per occurrence", renderUsage(u)))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderGlobal(g map[string]int64) string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%-20s %d\n", k, g[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStats(stats []report.Stat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-22s %12s %12s %12s\n", "column", "min", "mean", "peak")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-22s %12.2f %12.2f %12.2f\n", truncate(s.Name, 22), s.Min, s.Mean, s.Max)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEventStats(stats []report.EventStat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %6s %10s %10s %10s\n", "event", "count", "open", "mean s", "max s")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-24s %6d %10d %10.3f %10.3f\n", truncate(s.Name, 24), s.Count, s.Incomplete, s.MeanElapsed, s.MaxElapsed)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderUsage(usage []report.Usage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-6s %9s %7s", "event", "id", "elapsed", "samples")
	for _, c := range usageColumns {
		fmt.Fprintf(&b, " %11s", c)
	}
	b.WriteString("\n")
	for _, u := range usage {
		fmt.Fprintf(&b, "%-20s %-6s %8.3fs %7d", truncate(u.Name, 20), truncate(u.ID, 6), u.Elapsed, u.Samples)
		for _, c := range usageColumns {
			if v, ok := u.Peak[c]; ok {
				fmt.Fprintf(&b, " %11.1f", v)
			} else {
				fmt.Fprintf(&b, " %11s", "-")
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
