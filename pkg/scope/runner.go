package scope

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
)

// ExplicitOption controls whether tests marked explicit run.
type ExplicitOption string

const (
	// ExplicitOff runs only non-explicit tests; explicit ones are NotRun.
	ExplicitOff ExplicitOption = "off"
	// ExplicitOn runs every test.
	ExplicitOn ExplicitOption = "on"
	// ExplicitOnly runs only explicit tests; the rest are NotRun.
	ExplicitOnly ExplicitOption = "only"
)

// Options configure a Runner.
type Options struct {
	// MaxParallelism bounds how many collections run at once. Zero or less
	// means runtime.NumCPU().
	MaxParallelism int
	// DisableParallelization runs collections strictly one after another.
	DisableParallelization bool

	CollectionOrderer CollectionOrderer
	CaseOrderer       CaseOrderer

	// Hooks are applied to every scope of the given level, before (for
	// AfterStarting) or after (for BeforeFinished) the scope's own hooks.
	Hooks map[message.Level]Hooks

	Explicit ExplicitOption

	// Seed is reported in AssemblyStarting when set.
	Seed *int64
}

func (o *Options) maxParallelism() int {
	if o.MaxParallelism > 0 {
		return o.MaxParallelism
	}

	return runtime.NumCPU()
}

func (o *Options) collectionOrderer() CollectionOrderer {
	if o.CollectionOrderer != nil {
		return o.CollectionOrderer
	}

	return NaturalOrder{}
}

func (o *Options) caseOrderer() CaseOrderer {
	if o.CaseOrderer != nil {
		return o.CaseOrderer
	}

	return NaturalOrder{}
}

func (o *Options) selects(t *Test) bool {
	switch o.Explicit {
	case ExplicitOn:
		return true
	case ExplicitOnly:
		return t.Explicit
	default:
		return !t.Explicit
	}
}

// Runner executes scope trees.
type Runner struct {
	log  logrus.FieldLogger
	opts Options
}

// NewRunner creates a runner.
func NewRunner(log logrus.FieldLogger, opts Options) *Runner {
	return &Runner{
		log:  log.WithField("component", "runner"),
		opts: opts,
	}
}

// Run executes the assembly, dispatching every message to sink, and
// returns the assembly's summary. Cancelling ctx, or sink returning false,
// stops new scopes from starting; scopes already started run to completion.
func (r *Runner) Run(ctx context.Context, a *Assembly, sink message.Sink) message.RunSummary {
	if a == nil {
		sink.OnMessage(&message.ErrorMessage{
			Error: errmeta.Extract(pkgerrors.New("no assembly to run")),
		})

		return message.RunSummary{}
	}

	e := &execution{
		ctx:  ctx,
		log:  r.log.WithField("assembly", a.Name),
		opts: &r.opts,
		sink: sink,
	}

	root := &assemblyNode{a: a, seed: r.opts.Seed}

	start := time.Now()
	summary := e.run(root, message.IDs{}, nil)

	e.log.WithFields(logrus.Fields{
		"total":     summary.Total,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"not_run":   summary.NotRun,
		"cancelled": e.cancelRequested(),
		"duration":  time.Since(start),
	}).Debug("Assembly run completed")

	return summary
}

type state int

const (
	stateNotStarted state = iota
	stateStarted
	stateCompleted
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateNotStarted:
		return "not_started"
	case stateStarted:
		return "started"
	case stateCompleted:
		return "completed"
	case stateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// execution is the state shared by every scope of one assembly run.
type execution struct {
	ctx       context.Context
	log       logrus.FieldLogger
	opts      *Options
	sink      message.Sink
	cancelled atomic.Bool
}

func (e *execution) dispatch(msg message.Message) bool {
	if e.sink.OnMessage(msg) {
		return true
	}

	e.cancelled.Store(true)

	return false
}

func (e *execution) cancelRequested() bool {
	return e.cancelled.Load() || e.ctx.Err() != nil
}

// run drives one scope through the state machine.
func (e *execution) run(n node, parent message.IDs, inherited *errmeta.Aggregator) message.RunSummary {
	ids := n.scopeIDs(parent)
	log := e.log.WithFields(logrus.Fields{"level": n.level(), "id": ids.Own(n.level())})
	current := stateNotStarted

	transition := func(next state) {
		log.WithFields(logrus.Fields{"from": current, "to": next}).Trace("Scope state changed")
		current = next
	}

	if !e.dispatch(n.starting(ids)) {
		transition(stateAborted)

		return message.RunSummary{}
	}

	transition(stateStarted)

	agg := errmeta.NewAggregator()
	agg.AddAll(inherited)

	e.runHooks(agg, n.level(), n.hooks(), ids, true)

	var (
		summary message.RunSummary
		result  message.Message
	)

	if leaf, ok := n.(*testNode); ok {
		summary, result = e.runTest(leaf, ids, agg)
	} else {
		summary = e.runChildren(n, ids, agg)
	}

	cleanup := errmeta.NewAggregator()
	e.runHooks(cleanup, n.level(), n.hooks(), ids, false)

	if err := cleanup.ToError(); err != nil {
		log.WithError(err).Warn("Scope cleanup failed")

		e.dispatch(n.cleanupFailure(ids, errmeta.Extract(err)))
		e.cancelled.Store(true)
	}

	if result != nil {
		e.dispatch(result)
	}

	e.dispatch(n.finished(ids, summary))
	transition(stateCompleted)

	return summary
}

// runHooks runs the level-wide and scope hooks for one extensibility point.
func (e *execution) runHooks(agg *errmeta.Aggregator, level message.Level, own Hooks, ids message.IDs, starting bool) {
	shared := e.opts.Hooks[level]

	var fns []HookFunc
	if starting {
		fns = []HookFunc{shared.AfterStarting, own.AfterStarting}
	} else {
		fns = []HookFunc{own.BeforeFinished, shared.BeforeFinished}
	}

	for _, fn := range fns {
		if fn == nil {
			continue
		}

		agg.Run(func() error { return fn(e.ctx, ids) })
	}
}

func (e *execution) runChildren(n node, ids message.IDs, agg *errmeta.Aggregator) message.RunSummary {
	start := time.Now()
	children := n.children(e, ids)

	var (
		summary message.RunSummary
		started int
	)

	if n.level() == message.LevelAssembly && !e.opts.DisableParallelization && len(children) > 1 {
		summary, started = e.runParallel(children, ids, agg)
	} else {
		for _, child := range children {
			if e.cancelRequested() {
				break
			}

			started++
			summary.Aggregate(e.run(child, ids, agg))
		}
	}

	if skipped := len(children) - started; skipped > 0 {
		e.dispatch(&message.InternalDiagnosticMessage{
			IDs:     ids,
			Message: fmt.Sprintf("cancellation requested; %d child scope(s) of %s %s not started", skipped, n.level(), ids.Own(n.level())),
		})
	}

	// The assembly reports wall clock time, which differs from the sum of
	// its children when collections ran in parallel.
	if n.level() == message.LevelAssembly {
		summary.Time = time.Since(start)
	}

	return summary
}

func (e *execution) runParallel(children []node, ids message.IDs, agg *errmeta.Aggregator) (message.RunSummary, int) {
	results := make([]message.RunSummary, len(children))

	var (
		g       errgroup.Group
		started atomic.Int64
	)

	g.SetLimit(e.opts.maxParallelism())

	for i, child := range children {
		if e.cancelRequested() {
			break
		}

		g.Go(func() error {
			// Go may have blocked on the limit; re-check before starting.
			if e.cancelRequested() {
				return nil
			}

			started.Add(1)
			results[i] = e.run(child, ids, agg)

			return nil
		})
	}

	_ = g.Wait()

	var summary message.RunSummary
	for _, s := range results {
		summary.Aggregate(s)
	}

	return summary, int(started.Load())
}

// runTest classifies and, when it should run, invokes a test. It returns
// the test's summary and the result message to dispatch.
func (e *execution) runTest(n *testNode, ids message.IDs, agg *errmeta.Aggregator) (message.RunSummary, message.Message) {
	summary := message.RunSummary{Total: 1}

	var build func() message.Message

	switch {
	case agg.HasErrors():
		failure := errmeta.Extract(agg.ToError())
		summary.Failed = 1
		build = func() message.Message {
			return &message.TestFailed{IDs: ids, TestResult: n.result, Failure: failure}
		}
	case !e.opts.selects(n.t):
		summary.NotRun = 1
		build = func() message.Message { return &message.TestNotRun{IDs: ids, TestResult: n.result} }
	case n.t.SkipReason != "":
		summary.Skipped = 1
		build = func() message.Message {
			return &message.TestSkipped{IDs: ids, TestResult: n.result, Reason: n.t.SkipReason}
		}
	default:
		elapsed, output, warnings := e.invoke(n, ids, agg)

		n.result.ExecutionTime = elapsed
		n.result.Output = output
		n.result.Warnings = warnings
		summary.Time = elapsed

		if reason, ok := skipReason(agg); ok {
			summary.Skipped = 1
			build = func() message.Message {
				return &message.TestSkipped{IDs: ids, TestResult: n.result, Reason: reason}
			}
		} else if agg.HasErrors() {
			failure := errmeta.Extract(agg.ToError())
			summary.Failed = 1
			build = func() message.Message {
				return &message.TestFailed{IDs: ids, TestResult: n.result, Failure: failure}
			}
		} else {
			build = func() message.Message { return &message.TestPassed{IDs: ids, TestResult: n.result} }
		}
	}

	agg.Clear()

	n.result.FinishTime = time.Now()

	return summary, build()
}

// invoke runs the test body, enforcing its timeout. Errors are added to agg.
func (e *execution) invoke(n *testNode, ids message.IDs, agg *errmeta.Aggregator) (time.Duration, string, []string) {
	ctx := e.ctx

	if n.t.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, n.t.Timeout)
		defer cancel()
	}

	bodyErrs := errmeta.NewAggregator()
	tc := newTestContext(ctx, ids, n.t.Args, bodyErrs, e.dispatch)
	body := n.t.Body

	if body == nil {
		body = func(context.Context, *TestContext) error {
			return pkgerrors.New("test has no body")
		}
	}

	start := time.Now()

	if n.t.Timeout <= 0 {
		bodyErrs.Run(func() error { return body(ctx, tc) })
		agg.AddAll(bodyErrs)
	} else {
		done := make(chan struct{})

		go func() {
			defer close(done)

			bodyErrs.Run(func() error { return body(ctx, tc) })
		}()

		timer := time.NewTimer(n.t.Timeout)
		defer timer.Stop()

		select {
		case <-done:
			agg.AddAll(bodyErrs)
		case <-timer.C:
			// The body keeps running in the background; its late output and
			// errors are discarded.
			agg.Add(pkgerrors.WithStack(&TimeoutError{Limit: n.t.Timeout}))
		}
	}

	elapsed := time.Since(start)
	output, warnings := tc.close()

	return elapsed, output, warnings
}

// skipReason reports whether the body asked to be skipped and nothing else
// went wrong.
func skipReason(agg *errmeta.Aggregator) (string, bool) {
	errs := agg.Errors()
	if len(errs) != 1 {
		return "", false
	}

	var skip *skipError
	if !errors.As(errs[0], &skip) {
		return "", false
	}

	return skip.reason, true
}

// orderingFailed reports an orderer failure as a diagnostic; the caller
// falls back to natural order.
func (e *execution) orderingFailed(ids message.IDs, what string, orderer any, err error) {
	text := fmt.Sprintf("%s orderer %T failed during ordering (%v); falling back to natural order", what, orderer, err)

	e.log.WithError(err).WithField("orderer", fmt.Sprintf("%T", orderer)).Warn("Orderer failed, using natural order")
	e.dispatch(&message.DiagnosticMessage{IDs: message.IDs{AssemblyID: ids.AssemblyID}, Message: text})
}
