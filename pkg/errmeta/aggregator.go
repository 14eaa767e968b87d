package errmeta

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const multipleErrorsHeadline = "multiple errors occurred"

// MultipleError holds every error an aggregator collected.
type MultipleError struct {
	Errors []error
}

// Error implements error.
func (e *MultipleError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, "("+err.Error()+")")
	}

	return multipleErrorsHeadline + ": " + strings.Join(parts, " ")
}

// Headline is the message of the composite itself.
func (e *MultipleError) Headline() string { return multipleErrorsHeadline }

// TypeName implements the type name override used by Extract.
func (e *MultipleError) TypeName() string { return "MultipleError" }

// Unwrap exposes the held errors to errors.Is/As and to Extract.
func (e *MultipleError) Unwrap() []error { return e.Errors }

// PanicError is a recovered panic.
type PanicError struct {
	Value any
}

// Error implements error.
func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// TypeName implements the type name override used by Extract.
func (e *PanicError) TypeName() string { return "PanicError" }

// Unwrap returns the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}

	return nil
}

// Aggregator collects errors raised during one phase of a scope. It is not
// safe for concurrent use; each scope owns its own.
type Aggregator struct {
	errs []error
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add records err. Nil errors are ignored.
func (a *Aggregator) Add(err error) {
	if err != nil {
		a.errs = append(a.errs, err)
	}
}

// AddAll records every error held by other.
func (a *Aggregator) AddAll(other *Aggregator) {
	if other == nil {
		return
	}

	a.errs = append(a.errs, other.errs...)
}

// Run invokes fn and records the error it returns or the panic it raises.
func (a *Aggregator) Run(fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			a.Add(errors.WithStack(&PanicError{Value: r}))
		}
	}()

	a.Add(fn())
}

// HasErrors reports whether any error was recorded.
func (a *Aggregator) HasErrors() bool {
	return len(a.errs) > 0
}

// Errors returns a copy of the recorded errors.
func (a *Aggregator) Errors() []error {
	return append([]error(nil), a.errs...)
}

// ToError returns nil when empty, the sole error when there is one, and a
// MultipleError otherwise.
func (a *Aggregator) ToError() error {
	switch len(a.errs) {
	case 0:
		return nil
	case 1:
		return a.errs[0]
	default:
		return &MultipleError{Errors: a.Errors()}
	}
}

// Clone returns an independent aggregator holding the same errors.
func (a *Aggregator) Clone() *Aggregator {
	return &Aggregator{errs: a.Errors()}
}

// Clear empties the aggregator for the next phase.
func (a *Aggregator) Clear() {
	a.errs = nil
}
