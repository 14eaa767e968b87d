package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
)

// History is a Sink collecting test results and saving them, together with
// the run, once the assembly finished. Storage failures are logged and
// reported by Err; they never cancel the run.
type History struct {
	ctx   context.Context
	log   logrus.FieldLogger
	store Store

	mu      sync.Mutex
	run     *Run
	names   map[string]string
	pending map[string]*TestResult
	results []*TestResult
	err     error
}

var _ message.Sink = (*History)(nil)

// NewHistory creates a History sink saving into s. ctx bounds the save.
func NewHistory(ctx context.Context, log logrus.FieldLogger, s Store) *History {
	return &History{
		ctx:     ctx,
		log:     log.WithField("component", "history"),
		store:   s,
		names:   make(map[string]string, 16),
		pending: make(map[string]*TestResult, 8),
	}
}

// OnMessage implements message.Sink.
func (h *History) OnMessage(msg message.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch m := msg.(type) {
	case *message.AssemblyStarting:
		h.run = &Run{
			RunID:        uuid.NewString(),
			AssemblyID:   m.AssemblyID,
			AssemblyName: m.AssemblyName,
			ConfigFile:   m.ConfigFilePath,
			Seed:         m.Seed,
			StartedAt:    m.StartTime,
		}
		h.results = nil
	case *message.CollectionStarting:
		h.names[m.CollectionID] = m.CollectionDisplayName
	case *message.ClassStarting:
		h.names[m.ClassID] = m.ClassName
	case *message.MethodStarting:
		h.names[m.MethodID] = m.MethodName
	case *message.TestStarting:
		h.pending[m.TestID] = &TestResult{
			TestID:         m.TestID,
			CollectionName: h.names[m.CollectionID],
			ClassName:      h.names[m.ClassID],
			MethodName:     h.names[m.MethodID],
			DisplayName:    m.TestDisplayName,
		}
	case *message.TestPassed:
		h.result(m.TestID, OutcomePassed, m.TestResult, "", nil)
	case *message.TestFailed:
		h.result(m.TestID, OutcomeFailed, m.TestResult, "", m.Failure)
	case *message.TestSkipped:
		h.result(m.TestID, OutcomeSkipped, m.TestResult, m.Reason, nil)
	case *message.TestNotRun:
		h.result(m.TestID, OutcomeNotRun, m.TestResult, "", nil)
	case *message.TestFinished:
		if r, ok := h.pending[m.TestID]; ok {
			h.results = append(h.results, r)
			delete(h.pending, m.TestID)
		}
	case message.CleanupFailure, *message.ErrorMessage:
		if h.run != nil {
			h.run.Errors++
		}
	case *message.AssemblyFinished:
		h.save(m)
	}

	return true
}

func (h *History) result(testID, outcome string, tr message.TestResult, reason string, failure *errmeta.Metadata) {
	r, ok := h.pending[testID]
	if !ok {
		return
	}

	r.Outcome = outcome
	r.DurationNs = tr.ExecutionTime.Nanoseconds()
	r.SkipReason = reason
	r.Warnings = len(tr.Warnings)
	r.FinishedAt = tr.FinishTime

	if failure.Len() > 0 {
		r.FailureType = failure.Types[0]
		r.FailureCause = failure.Cause.String()
		r.FailureMessage = errmeta.CombineMessages(failure)
	}
}

func (h *History) save(m *message.AssemblyFinished) {
	if h.run == nil {
		return
	}

	run := h.run
	s := m.Summary

	run.FinishedAt = m.FinishTime
	run.DurationNs = s.Time.Nanoseconds()
	run.TestsTotal = s.Total
	run.TestsPassed = s.Passed()
	run.TestsFailed = s.Failed
	run.TestsSkipped = s.Skipped
	run.TestsNotRun = s.NotRun

	for _, r := range h.results {
		r.RunID = run.RunID
	}

	start := time.Now()

	if err := h.store.SaveRun(h.ctx, run, h.results); err != nil {
		h.err = err
		h.log.WithError(err).WithField("run_id", run.RunID).Error("Failed to save run history")

		return
	}

	h.log.WithFields(logrus.Fields{
		"run_id":   run.RunID,
		"tests":    len(h.results),
		"duration": time.Since(start),
	}).Info("Saved run history")
}

// RunID returns the id of the current or last run, or "" before any
// assembly started.
func (h *History) RunID() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.run == nil {
		return ""
	}

	return h.run.RunID
}

// Err returns the error of the last failed save.
func (h *History) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.err
}
