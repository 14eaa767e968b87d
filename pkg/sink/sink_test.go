package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/scope"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func pass(context.Context, *scope.TestContext) error { return nil }

func warn(text string) scope.Body {
	return func(_ context.Context, tc *scope.TestContext) error {
		tc.Warn(text)

		return nil
	}
}

// twoClassAssembly has one collection with two classes so ancestor counts
// differ between levels.
func twoClassAssembly(first, second []*scope.Case) *scope.Assembly {
	return &scope.Assembly{
		Name: "suite",
		Collections: []*scope.Collection{{
			DisplayName: "default",
			Classes: []*scope.Class{
				{Name: "First", Methods: []*scope.Method{{Name: "M", Cases: first}}},
				{Name: "Second", Methods: []*scope.Method{{Name: "M", Cases: second}}},
			},
		}},
	}
}

// runThrough runs a through transform and returns what the transform
// received and what it forwarded.
func runThrough(t *testing.T, a *scope.Assembly, transform func(next message.Sink) message.Sink) (pre, post *message.Collector, summary message.RunSummary) {
	t.Helper()

	pre, post = &message.Collector{}, &message.Collector{}
	head := transform(post)

	tee := message.SinkFunc(func(msg message.Message) bool {
		pre.OnMessage(msg)

		return head.OnMessage(msg)
	})

	summary = scope.NewRunner(testLogger(), scope.Options{}).Run(context.Background(), a, tee)

	return pre, post, summary
}

func TestFailSkips_EndToEnd(t *testing.T) {
	a := &scope.Assembly{
		Name: "e2e",
		Collections: []*scope.Collection{{
			DisplayName: "c",
			Classes: []*scope.Class{{Name: "K", Methods: []*scope.Method{{Name: "M", Cases: []*scope.Case{
				{DisplayName: "passes", Body: pass},
				{DisplayName: "skipped", SkipReason: "x"},
			}}}}},
		}},
	}

	_, post, runnerSummary := runThrough(t, a, NewFailSkips)

	assert.Equal(t, 2, runnerSummary.Total)
	assert.Equal(t, 0, runnerSummary.Failed)
	assert.Equal(t, 1, runnerSummary.Skipped)

	finished := message.Filter[*message.AssemblyFinished](post.Messages())
	require.Len(t, finished, 1)
	assert.Equal(t, 2, finished[0].Summary.Total)
	assert.Equal(t, 1, finished[0].Summary.Failed)
	assert.Equal(t, 0, finished[0].Summary.Skipped)

	failed := message.Filter[*message.TestFailed](post.Messages())
	require.Len(t, failed, 1)
	assert.Equal(t, FailSkipType, failed[0].Failure.Types[0])
	assert.Equal(t, "x", failed[0].Failure.Messages[0])
	assert.Zero(t, failed[0].ExecutionTime)
}

func TestFailSkips_AncestorCounts(t *testing.T) {
	a := twoClassAssembly(
		[]*scope.Case{
			{DisplayName: "a", SkipReason: "one"},
			{DisplayName: "b", Body: func(context.Context, *scope.TestContext) error { return errors.New("boom") }},
			{DisplayName: "c", Body: pass},
		},
		[]*scope.Case{
			{DisplayName: "d", Body: pass, Rows: []scope.Row{{Args: []string{"1"}, SkipReason: "two"}, {Args: []string{"2"}}}},
		},
	)

	pre, post, _ := runThrough(t, a, NewFailSkips)

	assert.Empty(t, message.Filter[*message.TestSkipped](post.Messages()))
	assert.Len(t, message.Filter[*message.TestFailed](post.Messages()), 3)

	before := message.Filter[message.Finished](pre.Messages())
	after := message.Filter[message.Finished](post.Messages())
	require.Len(t, after, len(before))

	for i := range before {
		b, f := before[i].RunSummary(), after[i].RunSummary()

		assert.Equal(t, b.Failed+b.Skipped, f.Failed, "%s", after[i].Kind())
		assert.Zero(t, f.Skipped, "%s", after[i].Kind())
		assert.Equal(t, b.Total, f.Total)
		assert.Equal(t, b.NotRun, f.NotRun)
	}
}

func TestFailWarns_AncestorCounts(t *testing.T) {
	a := twoClassAssembly(
		[]*scope.Case{
			{DisplayName: "a", Body: warn("careful")},
			{DisplayName: "b", Body: warn("again")},
			{DisplayName: "c", Body: pass},
		},
		[]*scope.Case{
			{DisplayName: "d", Body: warn("third")},
			{DisplayName: "e", SkipReason: "skipped tests keep their warnings out", Body: warn("ignored")},
		},
	)

	pre, post, _ := runThrough(t, a, NewFailWarns)

	warned := 0
	for _, p := range message.Filter[*message.TestPassed](pre.Messages()) {
		if len(p.Warnings) > 0 {
			warned++
		}
	}

	require.Equal(t, 3, warned)

	failed := message.Filter[*message.TestFailed](post.Messages())
	require.Len(t, failed, 3)
	assert.Equal(t, FailWarnType, failed[0].Failure.Types[0])
	assert.Contains(t, failed[0].Failure.Messages[0], "careful")
	assert.Len(t, message.Filter[*message.TestPassed](post.Messages()), 1)

	flipsUnder := func(id string) int {
		n := 0

		for _, p := range message.Filter[*message.TestPassed](pre.Messages()) {
			if len(p.Warnings) == 0 {
				continue
			}

			for _, ancestor := range p.Ancestors() {
				if ancestor == id {
					n++
				}
			}
		}

		return n
	}

	before := message.Filter[message.Finished](pre.Messages())
	after := message.Filter[message.Finished](post.Messages())
	require.Len(t, after, len(before))

	for i := range before {
		id := before[i].ScopeIDs().Own(before[i].Kind().Level())
		delta := after[i].RunSummary().Failed - before[i].RunSummary().Failed

		assert.Equal(t, flipsUnder(id), delta, "%s", before[i].Kind())
	}

	assembly := message.Filter[*message.AssemblyFinished](post.Messages())
	require.Len(t, assembly, 1)
	assert.Equal(t, 3, assembly[0].Summary.Failed)
}

func TestStopOnFail(t *testing.T) {
	a := twoClassAssembly(
		[]*scope.Case{
			{DisplayName: "a", Body: pass},
			{DisplayName: "b", Body: func(context.Context, *scope.TestContext) error { return errors.New("boom") }},
			{DisplayName: "c", Body: pass},
		},
		[]*scope.Case{{DisplayName: "d", Body: pass}},
	)

	_, post, summary := runThrough(t, a, NewStopOnFail)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Failed)

	for _, s := range message.Filter[*message.ClassStarting](post.Messages()) {
		assert.NotEqual(t, "Second", s.ClassName)
	}
}

type closer struct {
	message.Sink

	name   string
	closed *[]string
	err    error
}

func (c *closer) Close() error {
	*c.closed = append(*c.closed, c.name)

	return c.err
}

func TestFanOut(t *testing.T) {
	f := NewFanOut(testLogger())

	var (
		created int
		closed  []string
	)

	accept := &message.Collector{}
	reject := &message.Collector{Reject: func(message.Message) bool { return true }}

	factory := func(name string, s message.Sink, err error) func() (message.Sink, error) {
		return func() (message.Sink, error) {
			created++

			return &closer{Sink: s, name: name, closed: &closed, err: err}, nil
		}
	}

	_, err := f.Get("first", factory("first", accept, nil))
	require.NoError(t, err)

	_, err = f.Get("first", factory("first", accept, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, created, "a sub-sink is created at most once")

	_, err = f.Get("broken", func() (message.Sink, error) { return nil, errors.New("no disk") })
	require.Error(t, err)

	assert.True(t, f.OnMessage(&message.DiagnosticMessage{Message: "hello"}))

	_, err = f.Get("second", factory("second", reject, errors.New("flush failed")))
	require.NoError(t, err)

	assert.False(t, f.OnMessage(&message.DiagnosticMessage{Message: "again"}))
	assert.Len(t, accept.Messages(), 2, "every sub-sink sees the message even when another rejects it")
	assert.Len(t, reject.Messages(), 1)

	err = f.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Equal(t, []string{"second", "first"}, closed)
}
