package store

import "time"

// Outcomes stored in TestResult.Outcome.
const (
	OutcomePassed  = "passed"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
	OutcomeNotRun  = "not_run"
)

// Run is one recorded assembly run.
type Run struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	RunID        string `gorm:"not null;uniqueIndex" json:"run_id"`
	AssemblyID   string `gorm:"index" json:"assembly_id"`
	AssemblyName string `gorm:"index" json:"assembly_name"`
	ConfigFile   string `json:"config_file,omitempty"`
	Seed         *int64 `json:"seed,omitempty"`

	StartedAt  time.Time `gorm:"index" json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationNs int64     `json:"duration_ns"`

	// Denormalized test stats.
	TestsTotal   int `json:"tests_total"`
	TestsPassed  int `json:"tests_passed"`
	TestsFailed  int `json:"tests_failed"`
	TestsSkipped int `json:"tests_skipped"`
	TestsNotRun  int `json:"tests_not_run"`
	Errors       int `json:"errors"`

	CreatedAt time.Time `json:"created_at"`
}

// TestResult is the outcome of one test in one run. TestID is the test's
// unique id, which is stable across runs of the same tree.
type TestResult struct {
	ID             uint   `gorm:"primaryKey" json:"-"`
	RunID          string `gorm:"not null;uniqueIndex:idx_tr_run_test" json:"run_id"`
	TestID         string `gorm:"not null;uniqueIndex:idx_tr_run_test;index" json:"test_id"`
	CollectionName string `json:"collection_name,omitempty"`
	ClassName      string `json:"class_name,omitempty"`
	MethodName     string `json:"method_name,omitempty"`
	DisplayName    string `json:"display_name"`
	Outcome        string `gorm:"index" json:"outcome"`
	DurationNs     int64  `json:"duration_ns"`
	SkipReason     string `json:"skip_reason,omitempty"`
	FailureType    string `json:"failure_type,omitempty"`
	FailureCause   string `json:"failure_cause,omitempty"`
	FailureMessage string `gorm:"type:text" json:"failure_message,omitempty"`
	Warnings       int    `json:"warnings,omitempty"`

	FinishedAt time.Time `json:"finished_at"`
}
