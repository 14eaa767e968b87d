package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{name: "zero", duration: 0, expected: "0s"},
		{name: "sub-second", duration: 500*time.Millisecond + 300*time.Microsecond, expected: "500ms"},
		{name: "seconds only", duration: 45 * time.Second, expected: "45s"},
		{name: "minutes and seconds", duration: 10*time.Minute + 8*time.Second, expected: "10m 8s"},
		{name: "hours minutes seconds", duration: 2*time.Hour + 30*time.Minute + 15*time.Second, expected: "2h 30m 15s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func markdownReport(failed int) *Report {
	seed := int64(42)
	col := &Collection{Name: "c"}

	for i := range failed {
		col.Tests = append(col.Tests, &Test{
			Name:    strings.Repeat("x", 20) + string(rune('a'+i%26)),
			Result:  ResultFail,
			Failure: &Failure{Message: "expected 1 | got 2\nsecond line"},
		})
	}

	col.Tests = append(col.Tests, &Test{Name: "fine", Result: ResultPass})

	return &Report{Assemblies: []*Assembly{{
		Name:        "alpha",
		RunDate:     "2026-01-02",
		RunTime:     "03:04:05",
		Seed:        &seed,
		Time:        65,
		Total:       failed + 1,
		Passed:      1,
		Failed:      failed,
		Host:        &Host{Hostname: "ci-1", LogicalCPUs: 8, PhysicalCPUs: 4, MemoryTotal: 16 << 30, GoVersion: "go1.24.2"},
		Collections: []*Collection{col},
	}}}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(markdownReport(2), "1769791126_8cec1fab", 0)

	assert.Contains(t, md, "# Test Run: 1769791126_8cec1fab")
	assert.Contains(t, md, "## alpha")
	assert.Contains(t, md, "| Status | failed |")
	assert.Contains(t, md, "| Duration | 1m 5s |")
	assert.Contains(t, md, "| Seed | 42 |")
	assert.Contains(t, md, "| 3 | 1 | 2 | 0 | 0 | 0 |")
	assert.Contains(t, md, "| CPUs | 8 logical, 4 physical |")
	assert.Contains(t, md, "## Failed Tests")
	assert.Contains(t, md, `expected 1 \| got 2 |`)
	assert.NotContains(t, md, "second line")
	assert.NotContains(t, md, "| fine |")
}

func TestMarkdown_NoFailures(t *testing.T) {
	md := Markdown(markdownReport(0), "run", 0)

	assert.Contains(t, md, "| Status | passed |")
	assert.NotContains(t, md, "## Failed Tests")
}

func TestMarkdown_Truncates(t *testing.T) {
	const maxChars = 1200

	md := Markdown(markdownReport(100), "run", maxChars)

	assert.LessOrEqual(t, len(md), maxChars)
	assert.Contains(t, md, "more failed test(s) not shown")
}
