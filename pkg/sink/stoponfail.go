package sink

import (
	"sync/atomic"

	"github.com/ethpandaops/testoor/pkg/message"
)

// stopOnFail requests cancellation once any test has failed.
type stopOnFail struct {
	next   message.Sink
	failed atomic.Bool
}

// NewStopOnFail creates a stage that stops new work after the first
// failed test.
func NewStopOnFail(next message.Sink) message.Sink {
	return &stopOnFail{next: next}
}

func (s *stopOnFail) OnMessage(msg message.Message) bool {
	if msg.Kind() == message.KindTestFailed {
		s.failed.Store(true)
	}

	ok := s.next.OnMessage(msg)

	return ok && !s.failed.Load()
}
