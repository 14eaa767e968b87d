package plan_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/plan"
	"github.com/ethpandaops/testoor/pkg/scope"
)

func runPlan(t *testing.T, p *plan.Plan) (message.RunSummary, *message.Collector) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	c := &message.Collector{}
	summary := scope.NewRunner(log, scope.Options{DisableParallelization: true}).
		Run(context.Background(), p.Assembly("plan.yaml"), c)

	for _, m := range c.Messages() {
		require.NoError(t, message.Validate(m))
	}

	return summary, c
}

func TestLoad_Calculator(t *testing.T) {
	p, err := plan.Load(filepath.Join("testdata", "calculator.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "calculator", p.Name)
	require.Len(t, p.Collections, 2)
	assert.Equal(t, []string{"unit"}, p.Traits["suite"])

	summary, c := runPlan(t, p)

	// adds small numbers, 3 rows, 4 Divide cases, reads file.
	assert.Equal(t, 9, summary.Total)
	// row (2, 2), divides by zero, reads file (inherited hook failure).
	assert.Equal(t, 3, summary.Failed)
	// row (0, 0), runtime skip.
	assert.Equal(t, 2, summary.Skipped)
	// slow divide is explicit.
	assert.Equal(t, 1, summary.NotRun)

	failed := message.Filter[*message.TestFailed](c.Messages())
	require.Len(t, failed, 3)

	causes := map[errmeta.Cause]int{}
	for _, f := range failed {
		causes[f.Failure.Cause]++
	}

	assert.Equal(t, map[errmeta.Cause]int{errmeta.CauseAssertion: 1, errmeta.CauseException: 2}, causes)

	output := message.Filter[*message.TestOutput](c.Messages())
	require.Len(t, output, 1)
	assert.Contains(t, output[0].Output, "adding 1 and 2")

	cases := message.Filter[*message.CaseStarting](c.Messages())
	require.NotEmpty(t, cases)
	assert.Equal(t, "calculator_test.go", cases[0].SourceFilePath)
	assert.Equal(t, 12, cases[0].SourceLineNumber)
}

func TestOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		c       plan.Case
		kind    message.Kind
		cause   errmeta.Cause
		entries int
	}{
		{name: "pass", c: plan.Case{}, kind: message.KindTestPassed},
		{name: "fail", c: plan.Case{Outcome: plan.OutcomeFail}, kind: message.KindTestFailed, cause: errmeta.CauseAssertion, entries: 1},
		{name: "error", c: plan.Case{Outcome: plan.OutcomeError}, kind: message.KindTestFailed, cause: errmeta.CauseException, entries: 1},
		{name: "multiple", c: plan.Case{Outcome: plan.OutcomeMultiple}, kind: message.KindTestFailed, cause: errmeta.CauseException, entries: 3},
		{name: "panic", c: plan.Case{Outcome: plan.OutcomePanic}, kind: message.KindTestFailed, cause: errmeta.CauseException, entries: 1},
		{name: "skip", c: plan.Case{Outcome: plan.OutcomeSkip}, kind: message.KindTestSkipped},
		{name: "timeout", c: plan.Case{Outcome: plan.OutcomeTimeout, Timeout: 20 * time.Millisecond}, kind: message.KindTestFailed, cause: errmeta.CauseTimeout, entries: 1},
		{name: "declared skip", c: plan.Case{Skip: "later"}, kind: message.KindTestSkipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.c.Name = tt.name
			p := singleCase(tt.c)
			require.NoError(t, p.Validate())

			_, c := runPlan(t, p)

			var result message.Message

			for _, m := range c.Messages() {
				switch m.Kind() {
				case message.KindTestPassed, message.KindTestFailed, message.KindTestSkipped, message.KindTestNotRun:
					result = m
				}
			}

			require.NotNil(t, result)
			assert.Equal(t, tt.kind, result.Kind())

			if f, ok := result.(*message.TestFailed); ok {
				assert.Equal(t, tt.cause, f.Failure.Cause)
				assert.Equal(t, tt.entries, f.Failure.Len())
			}
		})
	}
}

func TestFailingHooks(t *testing.T) {
	p := singleCase(plan.Case{Name: "c"})
	p.Collections[0].Classes[0].Hooks.BeforeFinished = "teardown failed"

	_, c := runPlan(t, p)

	failures := message.Filter[*message.ClassCleanupFailure](c.Messages())
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error.Messages[0], "teardown failed")
	assert.Contains(t, failures[0].Error.Messages[0], "class K")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "missing name", yaml: "collections: [{name: c}]", wantErr: "plan name is required"},
		{name: "no collections", yaml: "name: p", wantErr: "no collections"},
		{name: "unknown field", yaml: "name: p\nbogus: 1\ncollections: [{name: c}]", wantErr: "bogus"},
		{
			name:    "unknown outcome",
			yaml:    "name: p\ncollections: [{name: c, classes: [{name: K, methods: [{name: M, cases: [{name: x, outcome: explode}]}]}]}]",
			wantErr: "unknown outcome",
		},
		{
			name:    "timeout without limit",
			yaml:    "name: p\ncollections: [{name: c, classes: [{name: K, methods: [{name: M, cases: [{name: x, outcome: timeout}]}]}]}]",
			wantErr: "requires a timeout",
		},
		{
			name:    "unknown row outcome",
			yaml:    "name: p\ncollections: [{name: c, classes: [{name: K, methods: [{name: M, cases: [{name: x, rows: [{args: [a], outcome: nope}]}]}]}]}]",
			wantErr: "unknown outcome",
		},
		{
			name:    "unnamed case",
			yaml:    "name: p\ncollections: [{name: c, classes: [{name: K, methods: [{name: M, cases: [{outcome: pass}]}]}]}]",
			wantErr: "name is required",
		},
		{
			name:    "duplicate collection",
			yaml:    "name: p\ncollections: [{name: c}, {name: c}]",
			wantErr: `duplicate name "c"`,
		},
		{
			name:    "duplicate class",
			yaml:    "name: p\ncollections: [{name: c, classes: [{name: K}, {name: K}]}]",
			wantErr: `duplicate name "K"`,
		},
		{
			name:    "duplicate method",
			yaml:    "name: p\ncollections: [{name: c, classes: [{name: K, methods: [{name: M}, {name: M}]}]}]",
			wantErr: `duplicate name "M"`,
		},
		{
			name:    "duplicate case",
			yaml:    "name: p\ncollections: [{name: c, classes: [{name: K, methods: [{name: M, cases: [{name: x}, {name: x, outcome: fail}]}]}]}]",
			wantErr: `duplicate name "x"`,
		},
		{
			name:    "duplicate row",
			yaml:    "name: p\ncollections: [{name: c, classes: [{name: K, methods: [{name: M, cases: [{name: x, rows: [{args: [a]}, {args: [a]}]}]}]}]}]",
			wantErr: "duplicate name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := plan.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_SameNameInDifferentParents(t *testing.T) {
	p, err := plan.Parse([]byte(`
name: p
collections:
  - name: c
    definition_class: First
    classes:
      - name: K
        methods:
          - name: M
            cases: [{name: x}]
      - name: L
        methods:
          - name: M
            cases: [{name: x}]
  - name: c
    definition_class: Second
`))
	require.NoError(t, err)
	assert.Len(t, p.Collections, 2)
}

func TestParse_DuplicateIsMatchable(t *testing.T) {
	_, err := plan.Parse([]byte("name: p\ncollections: [{name: c}, {name: c}]"))
	require.ErrorIs(t, err, plan.ErrDuplicateName)
}

func TestParse_Durations(t *testing.T) {
	p, err := plan.Parse([]byte(`
name: p
collections:
  - name: c
    classes:
      - name: K
        methods:
          - name: M
            cases:
              - name: x
                sleep: 5ms
                timeout: 1s
`))
	require.NoError(t, err)

	c := p.Collections[0].Classes[0].Methods[0].Cases[0]
	assert.Equal(t, 5*time.Millisecond, c.Sleep)
	assert.Equal(t, time.Second, c.Timeout)
}

func TestLoad_Missing(t *testing.T) {
	_, err := plan.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading plan file")
}

func singleCase(c plan.Case) *plan.Plan {
	return &plan.Plan{
		Name: "single",
		Collections: []plan.Collection{{
			Name: "c",
			Classes: []plan.Class{{
				Name:    "K",
				Methods: []plan.Method{{Name: "M", Cases: []plan.Case{c}}},
			}},
		}},
	}
}
