package sink

import (
	"strings"
	"sync"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
)

// FailWarnType is the failure type of passing tests failed for warnings.
const FailWarnType = "FAIL_WARN"

// failWarns reports passing tests that raised warnings as failed.
// Ancestor counts were computed before the rewrite, so the number of
// flips under every scope is tracked until that scope's Finished message
// arrives.
type failWarns struct {
	next message.Sink

	mu    sync.Mutex
	flips map[string]int
}

// NewFailWarns creates a transform that fails passing tests with warnings.
func NewFailWarns(next message.Sink) message.Sink {
	return &failWarns{
		next:  next,
		flips: make(map[string]int, 16),
	}
}

func (f *failWarns) OnMessage(msg message.Message) bool {
	switch m := msg.(type) {
	case *message.TestPassed:
		if len(m.Warnings) == 0 {
			break
		}

		f.mu.Lock()
		for _, id := range m.Ancestors() {
			f.flips[id]++
		}
		f.mu.Unlock()

		text := "test passed but reported warnings:\n" + strings.Join(m.Warnings, "\n")

		return f.next.OnMessage(&message.TestFailed{
			IDs:        m.IDs,
			TestResult: m.TestResult,
			Failure:    errmeta.Synthetic(FailWarnType, text, errmeta.CauseOther),
		})
	case message.Finished:
		id := m.ScopeIDs().Own(m.Kind().Level())

		f.mu.Lock()
		n := f.flips[id]
		delete(f.flips, id)
		f.mu.Unlock()

		if n == 0 {
			break
		}

		s := m.RunSummary()
		s.Failed += n

		return f.next.OnMessage(m.WithSummary(s))
	}

	return f.next.OnMessage(msg)
}
