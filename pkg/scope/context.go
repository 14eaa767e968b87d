package scope

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
)

// TimeoutError is recorded when a test body outlives its timeout.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("test did not finish within %s", e.Limit)
}

// Timeout marks the error as a timeout for failure classification.
func (e *TimeoutError) Timeout() bool { return true }

// TypeName implements the errmeta type name override.
func (e *TimeoutError) TypeName() string { return "TimeoutError" }

// skipError is returned by TestContext.Skip.
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return "skipped: " + e.reason }

// TestContext is handed to a test body. It captures output and warnings and
// exposes the aggregator the body may add errors to.
type TestContext struct {
	ctx  context.Context
	ids  message.IDs
	args []string
	sink func(message.Message) bool
	errs *errmeta.Aggregator

	mu       sync.Mutex
	closed   bool
	output   strings.Builder
	warnings []string
}

func newTestContext(ctx context.Context, ids message.IDs, args []string, errs *errmeta.Aggregator, sink func(message.Message) bool) *TestContext {
	return &TestContext{
		ctx:  ctx,
		ids:  ids,
		args: args,
		errs: errs,
		sink: sink,
	}
}

// Context returns the context the body runs under.
func (tc *TestContext) Context() context.Context { return tc.ctx }

// IDs returns the unique ids of the running test and its ancestors.
func (tc *TestContext) IDs() message.IDs { return tc.ids }

// Args returns the data row arguments, if any.
func (tc *TestContext) Args() []string { return tc.args }

// Errors returns the aggregator collecting the test's failures.
func (tc *TestContext) Errors() *errmeta.Aggregator { return tc.errs }

// Write captures output. Output written after the test completed is
// dropped.
func (tc *TestContext) Write(p []byte) (int, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.closed {
		return len(p), nil
	}

	tc.output.Write(p)

	// Dispatching under the lock keeps live output ahead of the result.
	if tc.sink != nil {
		tc.sink(&message.TestOutput{IDs: tc.ids, Output: string(p)})
	}

	return len(p), nil
}

// Log writes a line of output.
func (tc *TestContext) Log(args ...any) {
	_, _ = tc.Write([]byte(fmt.Sprintln(args...)))
}

// Logf writes a formatted line of output.
func (tc *TestContext) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}

	_, _ = tc.Write([]byte(line))
}

// Warn records a warning against the test.
func (tc *TestContext) Warn(warning string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if !tc.closed {
		tc.warnings = append(tc.warnings, warning)
	}
}

// Skip returns an error that, returned from the body, reports the test as
// skipped with reason.
func (tc *TestContext) Skip(reason string) error {
	return &skipError{reason: reason}
}

// close stops capturing and returns what was captured.
func (tc *TestContext) close() (string, []string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.closed = true

	return tc.output.String(), append([]string(nil), tc.warnings...)
}
