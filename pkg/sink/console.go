package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/go-units"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
)

// ConsoleOptions configure the console reporter.
type ConsoleOptions struct {
	// LiveOutput prints test output as it is written instead of only for
	// failed tests.
	LiveOutput bool
	// StackFilter is applied to failure stack traces.
	StackFilter errmeta.StackFilter
}

// Console prints a human readable account of a run.
type Console struct {
	opts ConsoleOptions

	mu    sync.Mutex
	w     io.Writer
	names map[string]string
}

var _ message.Sink = (*Console)(nil)

// NewConsole creates a console reporter writing to w.
func NewConsole(w io.Writer, opts ConsoleOptions) *Console {
	return &Console{
		opts:  opts,
		w:     w,
		names: make(map[string]string, 32),
	}
}

// OnMessage implements message.Sink.
func (c *Console) OnMessage(msg message.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case *message.AssemblyStarting:
		c.names[m.AssemblyID] = m.AssemblyName

		line := fmt.Sprintf("[START] %s", m.AssemblyName)
		if m.Seed != nil {
			line += fmt.Sprintf(" (seed %d)", *m.Seed)
		}

		c.println(line)
	case *message.TestStarting:
		c.names[m.TestID] = m.TestDisplayName
	case *message.TestOutput:
		if c.opts.LiveOutput {
			for _, line := range strings.Split(strings.TrimRight(m.Output, "\n"), "\n") {
				c.println(fmt.Sprintf("[OUTPUT] %s: %s", c.names[m.TestID], line))
			}
		}
	case *message.TestFailed:
		c.println("[FAIL] " + c.names[m.TestID])
		c.printIndented(errmeta.CombineMessages(m.Failure))

		if stack := errmeta.CombineStackTraces(m.Failure, c.opts.StackFilter); strings.TrimSpace(stack) != "" {
			c.println("    Stack Trace:")
			c.printIndented(stack)
		}

		if m.Output != "" && !c.opts.LiveOutput {
			c.println(fmt.Sprintf("    Output (%s):", units.HumanSize(float64(len(m.Output)))))
			c.printIndented(strings.TrimRight(m.Output, "\n"))
		}
	case *message.TestSkipped:
		c.println(fmt.Sprintf("[SKIP] %s: %s", c.names[m.TestID], m.Reason))
	case *message.TestFinished:
		delete(c.names, m.TestID)
	case message.CleanupFailure:
		c.println(fmt.Sprintf("[CLEANUP FAILURE] %s %s", msg.Kind().Level(), msg.ScopeIDs().Own(msg.Kind().Level())))
		c.printIndented(errmeta.CombineMessages(m.CleanupError()))
	case *message.ErrorMessage:
		c.println("[ERROR]")
		c.printIndented(errmeta.CombineMessages(m.Error))
	case *message.AssemblyFinished:
		s := m.Summary
		c.println(fmt.Sprintf(
			"[FINISHED] %s: Total: %d, Failed: %d, Skipped: %d, Not Run: %d, Passed: %d, Time: %.3fs (%s)",
			c.names[m.AssemblyID], s.Total, s.Failed, s.Skipped, s.NotRun, s.Passed(),
			s.Time.Seconds(), units.HumanDuration(s.Time),
		))
		delete(c.names, m.AssemblyID)
	}

	return true
}

func (c *Console) println(line string) {
	_, _ = fmt.Fprintln(c.w, line)
}

func (c *Console) printIndented(text string) {
	if text == "" {
		return
	}

	for _, line := range strings.Split(text, "\n") {
		c.println("      " + line)
	}
}
