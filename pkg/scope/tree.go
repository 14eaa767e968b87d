// Package scope executes a tree of test scopes (assembly, collection, class,
// method, case, test) and reports every step to a message.Sink.
package scope

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/testoor/pkg/message"
)

// HookFunc is an extensibility point invoked with the ids of the scope it
// belongs to. Returned errors (and panics) are captured, never propagated.
type HookFunc func(ctx context.Context, ids message.IDs) error

// Hooks are the two fixed extensibility points of the scope state machine.
type Hooks struct {
	// AfterStarting runs after the Starting message was accepted.
	AfterStarting HookFunc
	// BeforeFinished runs before the result and Finished messages.
	BeforeFinished HookFunc
}

// Body is the code of a test. Failures are reported by returning an error,
// panicking, or adding to tc.Errors().
type Body func(ctx context.Context, tc *TestContext) error

// Assembly is the root of the scope tree.
type Assembly struct {
	Name        string
	Path        string
	ConfigFile  string
	Environment string
	Traits      message.Traits
	Hooks       Hooks
	Collections []*Collection
}

// Collection groups classes that must not run in parallel with each other.
// Collections are the unit of parallelism.
type Collection struct {
	DisplayName     string
	DefinitionClass string
	Traits          message.Traits
	Hooks           Hooks
	Classes         []*Class
}

// Class groups methods.
type Class struct {
	Name    string
	Traits  message.Traits
	Hooks   Hooks
	Methods []*Method
}

// Method groups the cases discovered for one test method.
type Method struct {
	Name   string
	Traits message.Traits
	Hooks  Hooks
	Cases  []*Case
}

// Row is one set of data arguments for a data-driven case.
type Row struct {
	Args       []string
	SkipReason string
}

// Case is a discovered test case. It materializes into one Test, or one
// Test per Row when Rows are set.
type Case struct {
	DisplayName string
	SkipReason  string
	SourceFile  string
	SourceLine  int
	Explicit    bool
	Timeout     time.Duration
	Traits      message.Traits
	Hooks       Hooks
	// TestHooks are applied to every test materialized from the case.
	TestHooks Hooks
	Rows      []Row
	Body      Body
}

// Test is a single executable leaf.
type Test struct {
	DisplayName string
	Args        []string
	SkipReason  string
	Explicit    bool
	Timeout     time.Duration
	Traits      message.Traits
	Hooks       Hooks
	Body        Body
}

// Tests materializes the case.
func (c *Case) Tests() []*Test {
	if len(c.Rows) == 0 {
		return []*Test{c.newTest(c.DisplayName, nil, "")}
	}

	tests := make([]*Test, 0, len(c.Rows))

	for _, row := range c.Rows {
		name := fmt.Sprintf("%s(%s)", c.DisplayName, strings.Join(row.Args, ", "))
		tests = append(tests, c.newTest(name, row.Args, row.SkipReason))
	}

	return tests
}

func (c *Case) newTest(name string, args []string, rowSkip string) *Test {
	skip := c.SkipReason
	if skip == "" {
		skip = rowSkip
	}

	return &Test{
		DisplayName: name,
		Args:        args,
		SkipReason:  skip,
		Explicit:    c.Explicit,
		Timeout:     c.Timeout,
		Traits:      c.Traits,
		Hooks:       c.TestHooks,
		Body:        c.Body,
	}
}

// CountTests returns the number of tests the assembly materializes.
func (a *Assembly) CountTests() int {
	n := 0

	for _, col := range a.Collections {
		for _, cls := range col.Classes {
			for _, m := range cls.Methods {
				for _, c := range m.Cases {
					n += len(c.Tests())
				}
			}
		}
	}

	return n
}
