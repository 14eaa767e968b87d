package sink

import (
	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
)

// FailSkipType is the failure type of tests failed for being skipped.
const FailSkipType = "FAIL_SKIP"

// failSkips reports skipped tests as failed. Every Finished message
// already carries complete counts, so no state is needed.
type failSkips struct {
	next message.Sink
}

// NewFailSkips creates a transform that turns every skipped test into a
// failure whose message is the skip reason.
func NewFailSkips(next message.Sink) message.Sink {
	return &failSkips{next: next}
}

func (f *failSkips) OnMessage(msg message.Message) bool {
	switch m := msg.(type) {
	case *message.TestSkipped:
		return f.next.OnMessage(&message.TestFailed{
			IDs: m.IDs,
			TestResult: message.TestResult{
				FinishTime: m.FinishTime,
				Output:     m.Output,
				Warnings:   m.Warnings,
			},
			Failure: errmeta.Synthetic(FailSkipType, m.Reason, errmeta.CauseOther),
		})
	case message.Finished:
		s := m.RunSummary()
		if s.Skipped == 0 {
			break
		}

		s.Failed += s.Skipped
		s.Skipped = 0

		return f.next.OnMessage(m.WithSummary(s))
	}

	return f.next.OnMessage(msg)
}
