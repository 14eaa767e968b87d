// Package report builds a structured, serializable report tree from the
// message stream and writes it as xUnit v2 style XML or JSON.
package report

import "encoding/xml"

// Result is the outcome of a single test.
type Result string

const (
	ResultPass   Result = "Pass"
	ResultFail   Result = "Fail"
	ResultSkip   Result = "Skip"
	ResultNotRun Result = "NotRun"
)

// Report is the root of the tree.
type Report struct {
	XMLName    xml.Name    `xml:"assemblies" json:"-"`
	Timestamp  string      `xml:"timestamp,attr,omitempty" json:"timestamp,omitempty"`
	Assemblies []*Assembly `xml:"assembly" json:"assemblies"`
	// Errors raised outside of any assembly.
	Errors []*Error `xml:"errors>error,omitempty" json:"errors,omitempty"`
}

// Assembly is the report element of one assembly run.
type Assembly struct {
	ID            string        `xml:"id,attr" json:"id"`
	Name          string        `xml:"name,attr" json:"name"`
	ConfigFile    string        `xml:"config-file,attr,omitempty" json:"config_file,omitempty"`
	TestFramework string        `xml:"test-framework,attr" json:"test_framework"`
	Environment   string        `xml:"environment,attr,omitempty" json:"environment,omitempty"`
	RunDate       string        `xml:"run-date,attr" json:"run_date"`
	RunTime       string        `xml:"run-time,attr" json:"run_time"`
	FinishTime    string        `xml:"finish-time,attr,omitempty" json:"finish_time,omitempty"`
	Seed          *int64        `xml:"seed,attr,omitempty" json:"seed,omitempty"`
	Total         int           `xml:"total,attr" json:"total"`
	Passed        int           `xml:"passed,attr" json:"passed"`
	Failed        int           `xml:"failed,attr" json:"failed"`
	Skipped       int           `xml:"skipped,attr" json:"skipped"`
	NotRun        int           `xml:"not-run,attr" json:"not_run"`
	Time          float64       `xml:"time,attr" json:"time"`
	ErrorCount    int           `xml:"errors,attr" json:"error_count"`
	Host          *Host         `xml:"host,omitempty" json:"host,omitempty"`
	Errors        []*Error      `xml:"errors>error,omitempty" json:"errors,omitempty"`
	Collections   []*Collection `xml:"collection" json:"collections"`
}

// Collection is the report element of one test collection.
type Collection struct {
	ID      string  `xml:"id,attr" json:"id"`
	Name    string  `xml:"name,attr" json:"name"`
	Total   int     `xml:"total,attr" json:"total"`
	Passed  int     `xml:"passed,attr" json:"passed"`
	Failed  int     `xml:"failed,attr" json:"failed"`
	Skipped int     `xml:"skipped,attr" json:"skipped"`
	NotRun  int     `xml:"not-run,attr" json:"not_run"`
	Time    float64 `xml:"time,attr" json:"time"`
	Tests   []*Test `xml:"test" json:"tests"`
}

// Test is the report element of one executed (or not executed) test.
type Test struct {
	ID         string   `xml:"id,attr" json:"id"`
	Name       string   `xml:"name,attr" json:"name"`
	Type       string   `xml:"type,attr,omitempty" json:"type,omitempty"`
	Method     string   `xml:"method,attr,omitempty" json:"method,omitempty"`
	Time       float64  `xml:"time,attr" json:"time"`
	Result     Result   `xml:"result,attr" json:"result"`
	SourceFile string   `xml:"source-file,attr,omitempty" json:"source_file,omitempty"`
	SourceLine int      `xml:"source-line,attr,omitempty" json:"source_line,omitempty"`
	Explicit   bool     `xml:"explicit,attr,omitempty" json:"explicit,omitempty"`
	Traits     []Trait  `xml:"traits>trait,omitempty" json:"traits,omitempty"`
	Output     string   `xml:"output,omitempty" json:"output,omitempty"`
	Warnings   []string `xml:"warnings>warning,omitempty" json:"warnings,omitempty"`
	Reason     string   `xml:"reason,omitempty" json:"reason,omitempty"`
	Failure    *Failure `xml:"failure,omitempty" json:"failure,omitempty"`
}

// Trait is one name/value pair.
type Trait struct {
	Name  string `xml:"name,attr" json:"name"`
	Value string `xml:"value,attr" json:"value"`
}

// Failure describes an error tree rendered for humans.
type Failure struct {
	ExceptionType string `xml:"exception-type,attr" json:"exception_type"`
	Cause         string `xml:"cause,attr,omitempty" json:"cause,omitempty"`
	Message       string `xml:"message" json:"message"`
	StackTrace    string `xml:"stack-trace,omitempty" json:"stack_trace,omitempty"`
}

// Error is an error reported outside of a test result, such as a cleanup
// failure.
type Error struct {
	Type    string   `xml:"type,attr" json:"type"`
	Name    string   `xml:"name,attr,omitempty" json:"name,omitempty"`
	Failure *Failure `xml:"failure" json:"failure"`
}

// Host describes the machine the run happened on.
type Host struct {
	Hostname        string `xml:"hostname,attr" json:"hostname"`
	OS              string `xml:"os,attr" json:"os"`
	Platform        string `xml:"platform,attr,omitempty" json:"platform,omitempty"`
	PlatformVersion string `xml:"platform-version,attr,omitempty" json:"platform_version,omitempty"`
	KernelVersion   string `xml:"kernel-version,attr,omitempty" json:"kernel_version,omitempty"`
	Arch            string `xml:"arch,attr,omitempty" json:"arch,omitempty"`
	LogicalCPUs     int    `xml:"logical-cpus,attr,omitempty" json:"logical_cpus,omitempty"`
	PhysicalCPUs    int    `xml:"physical-cpus,attr,omitempty" json:"physical_cpus,omitempty"`
	MemoryTotal     uint64 `xml:"memory-total,attr,omitempty" json:"memory_total,omitempty"`
	GoVersion       string `xml:"go-version,attr" json:"go_version"`
}
