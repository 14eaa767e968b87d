package report

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/scope"
)

func buildReport(t *testing.T, a *scope.Assembly) *Report {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	b := NewBuilder(errmeta.NoFilter)
	sink := message.SinkFunc(func(msg message.Message) bool {
		b.Observe(msg)

		return true
	})

	scope.NewRunner(log, scope.Options{}).Run(context.Background(), a, sink)

	return b.Report()
}

func sampleAssembly() *scope.Assembly {
	return &scope.Assembly{
		Name:       "sample",
		ConfigFile: "plan.yaml",
		Collections: []*scope.Collection{{
			DisplayName: "math",
			Classes: []*scope.Class{{
				Name: "Calculator",
				Methods: []*scope.Method{{
					Name: "Add",
					Cases: []*scope.Case{
						{
							DisplayName: "adds",
							SourceFile:  "calc_test.go",
							SourceLine:  12,
							Traits:      message.Traits{"category": {"fast"}},
							Body: func(_ context.Context, tc *scope.TestContext) error {
								tc.Log("1 + 1 = 2")

								return nil
							},
						},
						{
							DisplayName: "overflows",
							Body: func(context.Context, *scope.TestContext) error {
								return errors.New("expected true")
							},
						},
						{DisplayName: "later", SkipReason: "not implemented"},
					},
				}},
			}},
		}},
	}
}

func TestBuilder_Tree(t *testing.T) {
	r := buildReport(t, sampleAssembly())

	require.Len(t, r.Assemblies, 1)

	a := r.Assemblies[0]
	assert.Equal(t, "sample", a.Name)
	assert.Equal(t, "plan.yaml", a.ConfigFile)
	assert.Equal(t, TestFramework, a.TestFramework)
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 1, a.Passed)
	assert.Equal(t, 1, a.Failed)
	assert.Equal(t, 1, a.Skipped)
	assert.Zero(t, a.ErrorCount)

	require.Len(t, a.Collections, 1)

	c := a.Collections[0]
	assert.Equal(t, "math", c.Name)
	assert.Equal(t, 3, c.Total)
	require.Len(t, c.Tests, 3)

	passed, failed, skipped := c.Tests[0], c.Tests[1], c.Tests[2]

	assert.Equal(t, ResultPass, passed.Result)
	assert.Equal(t, "Calculator", passed.Type)
	assert.Equal(t, "Add", passed.Method)
	assert.Equal(t, "calc_test.go", passed.SourceFile)
	assert.Equal(t, 12, passed.SourceLine)
	assert.Equal(t, []Trait{{Name: "category", Value: "fast"}}, passed.Traits)
	assert.Equal(t, "1 + 1 = 2\n", passed.Output)
	assert.Nil(t, passed.Failure)

	assert.Equal(t, ResultFail, failed.Result)
	require.NotNil(t, failed.Failure)
	assert.Contains(t, failed.Failure.Message, "expected true")
	assert.Equal(t, "exception", failed.Failure.Cause)

	assert.Equal(t, ResultSkip, skipped.Result)
	assert.Equal(t, "not implemented", skipped.Reason)
}

func TestBuilder_CleanupFailureIsRecordedAsError(t *testing.T) {
	a := sampleAssembly()
	a.Collections[0].Classes[0].Hooks.BeforeFinished = func(context.Context, message.IDs) error {
		return errors.New("dispose failed")
	}

	r := buildReport(t, a)

	require.Len(t, r.Assemblies, 1)
	assert.Equal(t, 1, r.Assemblies[0].ErrorCount)
	require.Len(t, r.Assemblies[0].Errors, 1)

	e := r.Assemblies[0].Errors[0]
	assert.Equal(t, "class-cleanup", e.Type)
	assert.Equal(t, "Calculator", e.Name)
	assert.Contains(t, e.Failure.Message, "dispose failed")
}

func TestBuilder_UnscopedError(t *testing.T) {
	b := NewBuilder(errmeta.NoFilter)
	b.Observe(&message.ErrorMessage{Error: errmeta.Synthetic("SinkError", "could not open sink", errmeta.CauseOther)})

	r := b.Report()
	require.Len(t, r.Errors, 1)
	assert.Equal(t, "fatal", r.Errors[0].Type)
	assert.Equal(t, "SinkError", r.Errors[0].Failure.ExceptionType)
}

func TestWriteXML(t *testing.T) {
	r := buildReport(t, sampleAssembly())

	var buf bytes.Buffer
	require.NoError(t, WriteXML(&buf, r))

	out := buf.String()
	assert.Contains(t, out, `<?xml version="1.0" encoding="UTF-8"?>`)
	assert.Contains(t, out, `<assemblies`)
	assert.Contains(t, out, `test-framework="testoor"`)
	assert.Contains(t, out, `result="Fail"`)
	assert.Contains(t, out, `<trait name="category" value="fast"></trait>`)
	assert.Contains(t, out, `<reason>not implemented</reason>`)
	assert.Contains(t, out, `exception-type="`)
}

func TestWriteDir(t *testing.T) {
	r := buildReport(t, sampleAssembly())
	dir := filepath.Join(t.TempDir(), "run")

	written, err := WriteDir(dir, r, Formats{XML: true, JSON: true})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, XMLFileName), filepath.Join(dir, JSONFileName)}, written)

	loaded, err := ReadJSON(filepath.Join(dir, JSONFileName))
	require.NoError(t, err)
	require.Len(t, loaded.Assemblies, 1)
	assert.Equal(t, 3, loaded.Assemblies[0].Total)
	assert.Len(t, loaded.Assemblies[0].Collections[0].Tests, 3)
}

func TestCollectHost(t *testing.T) {
	h, err := CollectHost(context.Background())
	if err != nil {
		t.Skipf("host info unavailable: %v", err)
	}

	assert.NotEmpty(t, h.OS)
	assert.Positive(t, h.LogicalCPUs)
	assert.NotEmpty(t, h.GoVersion)
}
