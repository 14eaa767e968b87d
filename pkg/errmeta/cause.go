package errmeta

import (
	"encoding/json"
	"fmt"
)

// Cause classifies why a failure happened.
type Cause int

const (
	// CauseException is an unexpected error raised by test code.
	CauseException Cause = iota
	// CauseAssertion is a failed assertion.
	CauseAssertion
	// CauseTimeout is a test that exceeded its time budget.
	CauseTimeout
	// CauseOther is a synthetic failure injected by the sink pipeline.
	CauseOther
)

var causeNames = map[Cause]string{
	CauseException: "exception",
	CauseAssertion: "assertion",
	CauseTimeout:   "timeout",
	CauseOther:     "other",
}

// String returns the lower-case name of the cause.
func (c Cause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("cause(%d)", int(c))
}

// MarshalJSON encodes the cause by name.
func (c Cause) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a cause name.
func (c *Cause) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decoding cause: %w", err)
	}

	for cause, n := range causeNames {
		if n == name {
			*c = cause

			return nil
		}
	}

	return fmt.Errorf("unknown cause %q", name)
}

// timeouter is implemented by errors that represent an expired deadline
// (context.DeadlineExceeded and net.Error among them).
type timeouter interface {
	Timeout() bool
}

// assertionFailure is implemented by assertion libraries' failure errors.
type assertionFailure interface {
	AssertionFailure() bool
}

// classify derives the cause from the capability markers of the root error.
func classify(err error) Cause {
	root := collapse(err)

	if t, ok := root.(timeouter); ok && t.Timeout() {
		return CauseTimeout
	}

	if a, ok := root.(assertionFailure); ok && a.AssertionFailure() {
		return CauseAssertion
	}

	return CauseException
}
