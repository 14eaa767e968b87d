package message

import "time"

// RunSummary aggregates the outcome counts and elapsed time of a scope.
// Passed is implicit: Total - Failed - Skipped - NotRun.
type RunSummary struct {
	Total   int           `json:"total"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	NotRun  int           `json:"not_run"`
	Time    time.Duration `json:"time"`
}

// Passed returns the number of passing tests.
func (s RunSummary) Passed() int {
	return s.Total - s.Failed - s.Skipped - s.NotRun
}

// Aggregate adds other's counts and time into s.
func (s *RunSummary) Aggregate(other RunSummary) {
	s.Total += other.Total
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.NotRun += other.NotRun
	s.Time += other.Time
}
