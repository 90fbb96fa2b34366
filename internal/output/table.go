// Package output provides terminal output utilities for pkgcatalog.
//
// Tables are rendered as plain text with ANSI color on a terminal. Progress
// indicators are safe for use from multiple goroutines.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/pkgcatalog/internal/catalog"
	"github.com/blackwell-systems/pkgcatalog/internal/depgraph"
	"github.com/blackwell-systems/pkgcatalog/internal/normalize"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderPackageTable renders the packages of a catalog, in the order given.
func RenderPackageTable(packages []catalog.PackageSummary) string {
	if len(packages) == 0 {
		return "No packages found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-40s %-20s %s\n", "Id", "Latest", "Versions"))
	sb.WriteString(strings.Repeat("─", 70))
	sb.WriteString("\n")

	for _, p := range packages {
		sb.WriteString(fmt.Sprintf("%-40s %-20s %d\n",
			truncate(p.ID, 40), truncate(p.LatestVersion, 20), p.Versions))
	}
	return sb.String()
}

// SearchRow is one line of a search result table.
type SearchRow struct {
	ID      string
	Name    string
	Version string
	Match   catalog.PackageMatchFilter
}

// RenderSearchTable renders search results best first. A truncated result
// gets a footer so the user knows to narrow the query.
func RenderSearchTable(rows []SearchRow, truncated bool) string {
	if len(rows) == 0 {
		return "No package found matching input criteria.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-30s %-30s %-16s %s\n", "Name", "Id", "Version", "Match"))
	sb.WriteString(strings.Repeat("─", 96))
	sb.WriteString("\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%-30s %-30s %-16s %s\n",
			truncate(r.Name, 30),
			truncate(r.ID, 30),
			truncate(r.Version, 16),
			formatMatch(r.Match)))
	}

	if truncated {
		sb.WriteString(colorize(colorYellow, "Additional entries truncated due to result limit"))
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatMatch describes how a package matched, e.g. "Tag: editor".
func formatMatch(m catalog.PackageMatchFilter) string {
	label := fmt.Sprintf("%s: %s", m.Field, m.Value)
	switch m.Type {
	case normalize.Exact, normalize.CaseInsensitive:
		return colorize(colorGreen, label)
	case normalize.StartsWith, normalize.Substring, normalize.Wildcard:
		return label
	default:
		return colorize(colorGray, label)
	}
}

// RenderVersionTable renders the versions of one package, newest first.
func RenderVersionTable(id string, keys []catalog.VersionKey) string {
	if len(keys) == 0 {
		return fmt.Sprintf("No versions of %s found.\n", id)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-16s %s\n", "Version", "Channel", "Manifest"))
	sb.WriteString(strings.Repeat("─", 52))
	sb.WriteString("\n")

	for _, k := range keys {
		channel := k.Channel
		if channel == "" {
			channel = "—"
		}
		sb.WriteString(fmt.Sprintf("%-24s %-16s %d\n", truncate(k.Version, 24), channel, k.Manifest))
	}
	return sb.String()
}

// RenderDependencyTable renders the package dependencies of one manifest.
func RenderDependencyTable(edges []depgraph.Edge) string {
	if len(edges) == 0 {
		return "No package dependencies.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-40s %s\n", "Dependency", "Minimum Version"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")

	for _, e := range edges {
		minVersion := e.MinVersion
		if minVersion == "" {
			minVersion = "any"
		}
		sb.WriteString(fmt.Sprintf("%-40s %s\n", truncate(e.ID, 40), minVersion))
	}
	return sb.String()
}

// RenderDependentTable renders the manifests that depend on a package.
func RenderDependentTable(dependents []depgraph.Dependent) string {
	if len(dependents) == 0 {
		return "Nothing depends on this package.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-40s %-16s %s\n", "Dependent", "Version", "Requires"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, d := range dependents {
		minVersion := d.MinVersion
		if minVersion == "" {
			minVersion = "any"
		}
		sb.WriteString(fmt.Sprintf("%-40s %-16s %s\n", truncate(d.From.ID, 40), truncate(d.From.Version, 16), minVersion))
	}
	return sb.String()
}

// RenderInstallOrder renders a numbered install order, dependencies first.
func RenderInstallOrder(nodes []depgraph.Node) string {
	var sb strings.Builder
	for i, n := range nodes {
		sb.WriteString(fmt.Sprintf("%3d. %s %s\n", i+1, n.ID, n.Version))
	}
	return sb.String()
}

// RenderChangeTable renders the update tracking log.
func RenderChangeTable(changes []catalog.TrackedChange) string {
	if len(changes) == 0 {
		return "No changes recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-40s %-17s %s\n", "Package", "Written", "Change"))
	sb.WriteString(strings.Repeat("─", 68))
	sb.WriteString("\n")

	for _, c := range changes {
		change := colorize(colorGreen, "updated")
		if c.Removed {
			change = colorize(colorRed, "removed")
		}
		sb.WriteString(fmt.Sprintf("%-40s %-17s %s\n",
			truncate(c.ID, 40),
			formatRelativeTime(time.UnixMilli(c.WrittenTime)),
			change))
	}
	return sb.String()
}

// Field is a label/value line of a key-value listing.
type Field struct {
	Label string
	Value string
}

// RenderFields renders label/value lines with aligned values. Empty values
// are shown as a dash.
func RenderFields(fields []Field) string {
	width := 0
	for _, f := range fields {
		if len(f.Label) > width {
			width = len(f.Label)
		}
	}

	var sb strings.Builder
	for _, f := range fields {
		value := f.Value
		if value == "" {
			value = "—"
		}
		sb.WriteString(fmt.Sprintf("%-*s  %s\n", width+1, f.Label+":", value))
	}
	return sb.String()
}

// RenderCheckResult renders the outcome of a consistency check.
func RenderCheckResult(consistent, fixed bool) string {
	switch {
	case consistent:
		return colorize(colorGreen, "✓ catalog is consistent") + "\n"
	case fixed:
		return colorize(colorYellow, "~ inconsistencies found and fixed") + "\n"
	default:
		return colorize(colorRed, "✗ catalog is inconsistent (run with --fix to repair)") + "\n"
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	case diff < 365*24*time.Hour:
		return plural(int(diff.Hours()/24/30), "month")
	default:
		return plural(int(diff.Hours()/24/365), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// truncate truncates a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
