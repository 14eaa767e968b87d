package message

import (
	"testing"
	"time"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	full := IDs{
		AssemblyID:   "a",
		CollectionID: "co",
		ClassID:      "cl",
		MethodID:     "m",
		CaseID:       "ca",
		TestID:       "t",
	}

	tests := []struct {
		name    string
		msg     Message
		wantErr string
	}{
		{
			name: "valid assembly starting",
			msg:  &AssemblyStarting{IDs: IDs{AssemblyID: "a"}},
		},
		{
			name:    "assembly starting without id",
			msg:     &AssemblyStarting{},
			wantErr: "assembly_id",
		},
		{
			name: "valid test passed",
			msg:  &TestPassed{IDs: full},
		},
		{
			name: "case without class is valid",
			msg:  &CaseStarting{IDs: IDs{AssemblyID: "a", CollectionID: "co", CaseID: "ca"}},
		},
		{
			name:    "method without class",
			msg:     &CaseStarting{IDs: IDs{AssemblyID: "a", CollectionID: "co", MethodID: "m", CaseID: "ca"}},
			wantErr: "class_id (implied by method_id)",
		},
		{
			name:    "method message without method id",
			msg:     &MethodStarting{IDs: IDs{AssemblyID: "a", CollectionID: "co", ClassID: "cl"}},
			wantErr: "method_id",
		},
		{
			name:    "test without case",
			msg:     &TestStarting{IDs: IDs{AssemblyID: "a", CollectionID: "co", TestID: "t"}},
			wantErr: "case_id",
		},
		{
			name: "global error without ids",
			msg:  &ErrorMessage{},
		},
		{
			name:    "global error with ids",
			msg:     &ErrorMessage{IDs: IDs{AssemblyID: "a"}},
			wantErr: "no scope ids",
		},
		{
			name: "diagnostic may carry an assembly id",
			msg:  &DiagnosticMessage{IDs: IDs{AssemblyID: "a"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.msg)
			if tt.wantErr == "" {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunSummary(t *testing.T) {
	s := RunSummary{Total: 3, Failed: 1, Skipped: 1, Time: time.Second}
	s.Aggregate(RunSummary{Total: 2, NotRun: 1, Time: 2 * time.Second})

	assert.Equal(t, RunSummary{Total: 5, Failed: 1, Skipped: 1, NotRun: 1, Time: 3 * time.Second}, s)
	assert.Equal(t, 2, s.Passed())
}

func TestWithSummaryCopies(t *testing.T) {
	orig := &ClassFinished{IDs: IDs{AssemblyID: "a"}, Summary: RunSummary{Total: 1, Skipped: 1}}

	updated := orig.WithSummary(RunSummary{Total: 1, Failed: 1})

	assert.Equal(t, 1, orig.Summary.Skipped)
	assert.Equal(t, 1, updated.RunSummary().Failed)
	assert.Equal(t, orig.IDs, updated.ScopeIDs())
}

func TestCodec(t *testing.T) {
	msg := &TestFailed{
		IDs: IDs{AssemblyID: "a", CollectionID: "co", CaseID: "ca", TestID: "t"},
		TestResult: TestResult{
			ExecutionTime: 1500 * time.Millisecond,
			Output:        "hello\n",
			Warnings:      []string{"careful"},
		},
		Failure: errmeta.Synthetic("AssertionError", "expected 1", errmeta.CauseAssertion),
	}

	data, err := Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"test-failed"`)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	failed, ok := decoded.(*TestFailed)
	require.True(t, ok)
	assert.Equal(t, msg.IDs, failed.IDs)
	assert.Equal(t, msg.ExecutionTime, failed.ExecutionTime)
	assert.Equal(t, errmeta.CauseAssertion, failed.Failure.Cause)
	assert.Equal(t, []string{"careful"}, failed.Warnings)

	_, err = Unmarshal([]byte(`{"kind":"nope","message":{}}`))
	assert.ErrorContains(t, err, "unknown message kind")
}

func TestCollector(t *testing.T) {
	c := &Collector{Reject: func(m Message) bool { return m.Kind() == KindTestFailed }}

	assert.True(t, c.OnMessage(&TestPassed{}))
	assert.False(t, c.OnMessage(&TestFailed{}))

	assert.Equal(t, []Kind{KindTestPassed, KindTestFailed}, c.Kinds())
	assert.Len(t, Filter[*TestFailed](c.Messages()), 1)
}
