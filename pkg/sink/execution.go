package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/report"
)

// ExecutionSummary is the final outcome of an assembly run.
type ExecutionSummary struct {
	Total   int           `json:"total"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	NotRun  int           `json:"not_run"`
	Time    time.Duration `json:"time"`
	Errors  int           `json:"errors"`

	// Completed is false when the assembly never finished, e.g. because
	// its Starting message was rejected.
	Completed bool `json:"completed"`
}

// Passed returns the number of passed tests.
func (s ExecutionSummary) Passed() int {
	return s.Total - s.Failed - s.Skipped - s.NotRun
}

// Succeeded reports whether the assembly completed with nothing failed and
// no errors raised.
func (s ExecutionSummary) Succeeded() bool {
	return s.Completed && s.Failed == 0 && s.Errors == 0
}

// ExecutionOptions configure an Execution sink.
type ExecutionOptions struct {
	// Report, when set, is fed every message.
	Report *report.Builder
	// OnComplete is called with the final summary once the assembly
	// finished.
	OnComplete func(ExecutionSummary)
}

// Execution is the bookkeeping stage at the end of the transform chain. It
// counts errors, feeds the report builder and computes the final summary.
// Downstream sinks always see a message before Execution reacts to it.
type Execution struct {
	log  logrus.FieldLogger
	next message.Sink
	opts ExecutionOptions

	errors atomic.Int64

	mu      sync.Mutex
	summary ExecutionSummary

	finishOnce sync.Once
	finished   chan struct{}
}

var _ message.Sink = (*Execution)(nil)

// NewExecution creates an Execution sink forwarding to next, which may be
// nil.
func NewExecution(log logrus.FieldLogger, next message.Sink, opts ExecutionOptions) *Execution {
	return &Execution{
		log:      log.WithField("component", "execution"),
		next:     next,
		opts:     opts,
		finished: make(chan struct{}),
	}
}

// OnMessage implements message.Sink.
func (e *Execution) OnMessage(msg message.Message) bool {
	switch msg.(type) {
	case message.CleanupFailure, *message.ErrorMessage:
		e.errors.Add(1)
	}

	if e.opts.Report != nil {
		e.opts.Report.Observe(msg)
	}

	ok := true
	if e.next != nil {
		ok = e.next.OnMessage(msg)
	}

	if m, isFinished := msg.(*message.AssemblyFinished); isFinished {
		e.complete(m.Summary)
	}

	return ok
}

func (e *Execution) complete(s message.RunSummary) {
	summary := ExecutionSummary{
		Total:     s.Total,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		NotRun:    s.NotRun,
		Time:      s.Time,
		Errors:    int(e.errors.Load()),
		Completed: true,
	}

	e.mu.Lock()
	e.summary = summary
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"total":   summary.Total,
		"failed":  summary.Failed,
		"skipped": summary.Skipped,
		"not_run": summary.NotRun,
		"errors":  summary.Errors,
		"time":    summary.Time,
	}).Debug("Execution completed")

	if e.opts.OnComplete != nil {
		e.opts.OnComplete(summary)
	}

	e.finishOnce.Do(func() { close(e.finished) })
}

// Finished is closed once the assembly finished and every downstream sink
// has seen its Finished message.
func (e *Execution) Finished() <-chan struct{} {
	return e.finished
}

// Summary returns the final summary. Until Finished is closed only Errors
// is set and Completed is false. Errors includes global errors reported
// after the assembly finished.
func (e *Execution) Summary() ExecutionSummary {
	e.mu.Lock()
	s := e.summary
	e.mu.Unlock()

	s.Errors = int(e.errors.Load())

	return s
}

// Errors returns the number of cleanup failures and global errors seen so
// far.
func (e *Execution) Errors() int {
	return int(e.errors.Load())
}

// Report returns the report built so far, or nil when report building is
// disabled.
func (e *Execution) Report() *report.Report {
	if e.opts.Report == nil {
		return nil
	}

	return e.opts.Report.Report()
}
