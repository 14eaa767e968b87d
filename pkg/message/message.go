// Package message defines the closed set of events the engine emits and the
// Sink contract that consumes them.
package message

import (
	"time"

	"github.com/ethpandaops/testoor/pkg/errmeta"
)

// Message is one event of the execution stream. Messages are never mutated
// once dispatched; transforms build new ones.
type Message interface {
	Kind() Kind
	ScopeIDs() IDs
}

// Finished is implemented by every *Finished message.
type Finished interface {
	Message
	RunSummary() RunSummary
	// WithSummary returns a copy of the message carrying s.
	WithSummary(s RunSummary) Finished
}

// CleanupFailure is implemented by every *CleanupFailure message.
type CleanupFailure interface {
	Message
	CleanupError() *errmeta.Metadata
}

// Traits are name/values pairs attached to a scope.
type Traits map[string][]string

// TestResult holds the fields shared by test result messages.
type TestResult struct {
	ExecutionTime time.Duration `json:"execution_time"`
	FinishTime    time.Time     `json:"finish_time"`
	Output        string        `json:"output,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// --- Assembly ---

// AssemblyStarting opens the run. Seed is set when the random orderer is
// active so the order can be reproduced.
type AssemblyStarting struct {
	IDs
	AssemblyName    string    `json:"assembly_name"`
	AssemblyPath    string    `json:"assembly_path,omitempty"`
	ConfigFilePath  string    `json:"config_file_path,omitempty"`
	Seed            *int64    `json:"seed,omitempty"`
	StartTime       time.Time `json:"start_time"`
	TestEnvironment string    `json:"test_environment,omitempty"`
	Traits          Traits    `json:"traits,omitempty"`
}

// AssemblyFinished closes the run with the aggregate of every test.
type AssemblyFinished struct {
	IDs
	Summary    RunSummary `json:"summary"`
	FinishTime time.Time  `json:"finish_time"`
}

// AssemblyCleanupFailure reports a failed assembly BeforeFinished hook.
type AssemblyCleanupFailure struct {
	IDs
	Error *errmeta.Metadata `json:"error"`
}

// --- Collection ---

// CollectionStarting opens a collection.
type CollectionStarting struct {
	IDs
	CollectionDisplayName string `json:"collection_display_name"`
	CollectionClassName   string `json:"collection_class_name,omitempty"`
	Traits                Traits `json:"traits,omitempty"`
}

// CollectionFinished closes a collection.
type CollectionFinished struct {
	IDs
	Summary RunSummary `json:"summary"`
}

// CollectionCleanupFailure reports a failed collection BeforeFinished hook.
type CollectionCleanupFailure struct {
	IDs
	Error *errmeta.Metadata `json:"error"`
}

// --- Class ---

// ClassStarting opens a class.
type ClassStarting struct {
	IDs
	ClassName string `json:"class_name"`
	Traits    Traits `json:"traits,omitempty"`
}

// ClassFinished closes a class.
type ClassFinished struct {
	IDs
	Summary RunSummary `json:"summary"`
}

// ClassCleanupFailure reports a failed class BeforeFinished hook.
type ClassCleanupFailure struct {
	IDs
	Error *errmeta.Metadata `json:"error"`
}

// --- Method ---

// MethodStarting opens a method.
type MethodStarting struct {
	IDs
	MethodName string `json:"method_name"`
	Traits     Traits `json:"traits,omitempty"`
}

// MethodFinished closes a method.
type MethodFinished struct {
	IDs
	Summary RunSummary `json:"summary"`
}

// MethodCleanupFailure reports a failed method BeforeFinished hook.
type MethodCleanupFailure struct {
	IDs
	Error *errmeta.Metadata `json:"error"`
}

// --- Case ---

// CaseStarting opens a test case. SkipReason is the statically declared
// reason, if any.
type CaseStarting struct {
	IDs
	CaseDisplayName  string `json:"case_display_name"`
	SkipReason       string `json:"skip_reason,omitempty"`
	SourceFilePath   string `json:"source_file_path,omitempty"`
	SourceLineNumber int    `json:"source_line_number,omitempty"`
	Traits           Traits `json:"traits,omitempty"`
}

// CaseFinished closes a test case.
type CaseFinished struct {
	IDs
	Summary RunSummary `json:"summary"`
}

// CaseCleanupFailure reports a failed case BeforeFinished hook.
type CaseCleanupFailure struct {
	IDs
	Error *errmeta.Metadata `json:"error"`
}

// --- Test ---

// TestStarting opens a single test.
type TestStarting struct {
	IDs
	TestDisplayName string        `json:"test_display_name"`
	Explicit        bool          `json:"explicit,omitempty"`
	StartTime       time.Time     `json:"start_time"`
	Timeout         time.Duration `json:"timeout,omitempty"`
	Traits          Traits        `json:"traits,omitempty"`
}

// TestFinished closes a test. It follows exactly one result message.
type TestFinished struct {
	IDs
	TestResult
	Summary RunSummary `json:"summary"`
}

// TestCleanupFailure reports a failed test BeforeFinished hook. It precedes
// the test's result.
type TestCleanupFailure struct {
	IDs
	Error *errmeta.Metadata `json:"error"`
}

// TestPassed is the result of a test that ran without errors.
type TestPassed struct {
	IDs
	TestResult
}

// TestFailed is the result of a test whose body or hooks failed.
type TestFailed struct {
	IDs
	TestResult
	Failure *errmeta.Metadata `json:"failure"`
}

// TestSkipped is the result of a statically or dynamically skipped test.
type TestSkipped struct {
	IDs
	TestResult
	Reason string `json:"reason"`
}

// TestNotRun is the result of a test excluded by explicit selection.
type TestNotRun struct {
	IDs
	TestResult
}

// TestOutput is a chunk of live output written by a running test.
type TestOutput struct {
	IDs
	Output string `json:"output"`
}

// --- Global ---

// ErrorMessage reports an error raised outside of any scope's lifecycle.
type ErrorMessage struct {
	IDs
	Error *errmeta.Metadata `json:"error"`
}

// DiagnosticMessage is a free-form notice meant for users.
type DiagnosticMessage struct {
	IDs
	Message string `json:"message"`
}

// InternalDiagnosticMessage is a free-form notice about the engine itself,
// such as child scopes left unstarted after cancellation was requested.
type InternalDiagnosticMessage struct {
	IDs
	Message string `json:"message"`
}

// Kind implements Message.
func (*AssemblyStarting) Kind() Kind          { return KindAssemblyStarting }
func (*AssemblyFinished) Kind() Kind          { return KindAssemblyFinished }
func (*AssemblyCleanupFailure) Kind() Kind    { return KindAssemblyCleanupFailure }
func (*CollectionStarting) Kind() Kind        { return KindCollectionStarting }
func (*CollectionFinished) Kind() Kind        { return KindCollectionFinished }
func (*CollectionCleanupFailure) Kind() Kind  { return KindCollectionCleanupFailure }
func (*ClassStarting) Kind() Kind             { return KindClassStarting }
func (*ClassFinished) Kind() Kind             { return KindClassFinished }
func (*ClassCleanupFailure) Kind() Kind       { return KindClassCleanupFailure }
func (*MethodStarting) Kind() Kind            { return KindMethodStarting }
func (*MethodFinished) Kind() Kind            { return KindMethodFinished }
func (*MethodCleanupFailure) Kind() Kind      { return KindMethodCleanupFailure }
func (*CaseStarting) Kind() Kind              { return KindCaseStarting }
func (*CaseFinished) Kind() Kind              { return KindCaseFinished }
func (*CaseCleanupFailure) Kind() Kind        { return KindCaseCleanupFailure }
func (*TestStarting) Kind() Kind              { return KindTestStarting }
func (*TestFinished) Kind() Kind              { return KindTestFinished }
func (*TestCleanupFailure) Kind() Kind        { return KindTestCleanupFailure }
func (*TestPassed) Kind() Kind                { return KindTestPassed }
func (*TestFailed) Kind() Kind                { return KindTestFailed }
func (*TestSkipped) Kind() Kind               { return KindTestSkipped }
func (*TestNotRun) Kind() Kind                { return KindTestNotRun }
func (*TestOutput) Kind() Kind                { return KindTestOutput }
func (*ErrorMessage) Kind() Kind              { return KindError }
func (*DiagnosticMessage) Kind() Kind         { return KindDiagnostic }
func (*InternalDiagnosticMessage) Kind() Kind { return KindInternalDiagnostic }

// RunSummary implements Finished.
func (m *AssemblyFinished) RunSummary() RunSummary   { return m.Summary }
func (m *CollectionFinished) RunSummary() RunSummary { return m.Summary }
func (m *ClassFinished) RunSummary() RunSummary      { return m.Summary }
func (m *MethodFinished) RunSummary() RunSummary     { return m.Summary }
func (m *CaseFinished) RunSummary() RunSummary       { return m.Summary }
func (m *TestFinished) RunSummary() RunSummary       { return m.Summary }

// WithSummary implements Finished.
func (m *AssemblyFinished) WithSummary(s RunSummary) Finished {
	c := *m
	c.Summary = s

	return &c
}

func (m *CollectionFinished) WithSummary(s RunSummary) Finished {
	c := *m
	c.Summary = s

	return &c
}

func (m *ClassFinished) WithSummary(s RunSummary) Finished {
	c := *m
	c.Summary = s

	return &c
}

func (m *MethodFinished) WithSummary(s RunSummary) Finished {
	c := *m
	c.Summary = s

	return &c
}

func (m *CaseFinished) WithSummary(s RunSummary) Finished {
	c := *m
	c.Summary = s

	return &c
}

func (m *TestFinished) WithSummary(s RunSummary) Finished {
	c := *m
	c.Summary = s

	return &c
}

// CleanupError implements CleanupFailure.
func (m *AssemblyCleanupFailure) CleanupError() *errmeta.Metadata   { return m.Error }
func (m *CollectionCleanupFailure) CleanupError() *errmeta.Metadata { return m.Error }
func (m *ClassCleanupFailure) CleanupError() *errmeta.Metadata      { return m.Error }
func (m *MethodCleanupFailure) CleanupError() *errmeta.Metadata     { return m.Error }
func (m *CaseCleanupFailure) CleanupError() *errmeta.Metadata       { return m.Error }
func (m *TestCleanupFailure) CleanupError() *errmeta.Metadata       { return m.Error }
