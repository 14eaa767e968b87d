package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// Markdown renders a summary of r for CI step summaries and pull request
// comments. Failed tests come last and are truncated so the output stays
// within maxChars; zero means no limit.
func Markdown(r *Report, title string, maxChars int) string {
	var sb strings.Builder

	sb.Grow(4096)

	fmt.Fprintf(&sb, "# Test Run: %s\n\n", title)

	for _, a := range r.Assemblies {
		writeAssembly(&sb, a)
	}

	writeHost(&sb, firstHost(r))
	writeFailedTests(&sb, r, maxChars)

	return sb.String()
}

func writeAssembly(sb *strings.Builder, a *Assembly) {
	fmt.Fprintf(sb, "## %s\n\n", a.Name)
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	status := "passed"
	if a.Failed > 0 || a.ErrorCount > 0 {
		status = "failed"
	}

	fmt.Fprintf(sb, "| Status | %s |\n", status)

	if a.RunDate != "" {
		fmt.Fprintf(sb, "| Started | %s %s |\n", a.RunDate, a.RunTime)
	}

	fmt.Fprintf(sb, "| Duration | %s |\n", formatDuration(time.Duration(a.Time*float64(time.Second))))

	if a.Seed != nil {
		fmt.Fprintf(sb, "| Seed | %d |\n", *a.Seed)
	}

	if a.Environment != "" {
		fmt.Fprintf(sb, "| Environment | %s |\n", a.Environment)
	}

	sb.WriteString("\n| Total | Passed | Failed | Skipped | Not Run | Errors |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(sb, "| %d | %d | %d | %d | %d | %d |\n\n",
		a.Total, a.Passed, a.Failed, a.Skipped, a.NotRun, a.ErrorCount)
}

func firstHost(r *Report) *Host {
	for _, a := range r.Assemblies {
		if a.Host != nil {
			return a.Host
		}
	}

	return nil
}

func writeHost(sb *strings.Builder, h *Host) {
	if h == nil {
		return
	}

	sb.WriteString("## System\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if h.Hostname != "" {
		fmt.Fprintf(sb, "| Hostname | %s |\n", h.Hostname)
	}

	if h.Platform != "" {
		fmt.Fprintf(sb, "| Platform | %s %s |\n", h.Platform, h.PlatformVersion)
	}

	if h.Arch != "" {
		fmt.Fprintf(sb, "| Arch | %s |\n", h.Arch)
	}

	if h.LogicalCPUs > 0 {
		fmt.Fprintf(sb, "| CPUs | %d logical, %d physical |\n", h.LogicalCPUs, h.PhysicalCPUs)
	}

	if h.MemoryTotal > 0 {
		fmt.Fprintf(sb, "| Memory | %s |\n", units.BytesSize(float64(h.MemoryTotal)))
	}

	fmt.Fprintf(sb, "| Go | %s |\n\n", h.GoVersion)
}

func writeFailedTests(sb *strings.Builder, r *Report, maxChars int) {
	var rows []string

	for _, a := range r.Assemblies {
		for _, c := range a.Collections {
			for _, t := range c.Tests {
				if t.Result != ResultFail {
					continue
				}

				var msg string
				if t.Failure != nil {
					msg = tableCell(t.Failure.Message)
				}

				rows = append(rows, fmt.Sprintf("| %s | %s |\n", tableCell(t.Name), msg))
			}
		}
	}

	if len(rows) == 0 {
		return
	}

	sb.WriteString("## Failed Tests\n\n")
	sb.WriteString("| Test | Failure |\n")
	sb.WriteString("|---|---|\n")

	// Reserve space for the truncation message.
	const reserveChars = 100

	for i, row := range rows {
		if maxChars > 0 && sb.Len()+len(row)+reserveChars > maxChars {
			fmt.Fprintf(sb, "\n*%d more failed test(s) not shown (output truncated at %d chars)*\n",
				len(rows)-i, maxChars)

			return
		}

		sb.WriteString(row)
	}
}

// tableCell keeps the first line of s and escapes table separators.
func tableCell(s string) string {
	line, _, _ := strings.Cut(s, "\n")

	return strings.ReplaceAll(strings.TrimSpace(line), "|", `\|`)
}

// formatDuration formats a time.Duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}

	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	return fmt.Sprintf("%ds", seconds)
}
