package plan

import (
	"context"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/scope"
)

// AssertionError is the failure produced by the "fail" outcome.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string { return e.Message }

// AssertionFailure classifies the error as a failed assertion.
func (e *AssertionError) AssertionFailure() bool { return true }

// TypeName implements the errmeta type name override.
func (e *AssertionError) TypeName() string { return "AssertionError" }

// Assembly builds the scope tree described by the plan. path is reported
// as the assembly path.
func (p *Plan) Assembly(path string) *scope.Assembly {
	a := &scope.Assembly{
		Name:        p.Name,
		Path:        path,
		Environment: p.Environment,
		Traits:      p.Traits,
		Hooks:       p.Hooks.build("assembly " + p.Name),
		Collections: make([]*scope.Collection, 0, len(p.Collections)),
	}

	for _, col := range p.Collections {
		a.Collections = append(a.Collections, col.build())
	}

	return a
}

func (c *Collection) build() *scope.Collection {
	col := &scope.Collection{
		DisplayName:     c.Name,
		DefinitionClass: c.DefinitionClass,
		Traits:          c.Traits,
		Hooks:           c.Hooks.build("collection " + c.Name),
		Classes:         make([]*scope.Class, 0, len(c.Classes)),
	}

	for _, cls := range c.Classes {
		col.Classes = append(col.Classes, cls.build())
	}

	return col
}

func (c *Class) build() *scope.Class {
	cls := &scope.Class{
		Name:    c.Name,
		Traits:  c.Traits,
		Hooks:   c.Hooks.build("class " + c.Name),
		Methods: make([]*scope.Method, 0, len(c.Methods)),
	}

	for _, m := range c.Methods {
		cls.Methods = append(cls.Methods, m.build(c.Name))
	}

	return cls
}

func (m *Method) build(className string) *scope.Method {
	method := &scope.Method{
		Name:   m.Name,
		Traits: m.Traits,
		Hooks:  m.Hooks.build("method " + className + "." + m.Name),
		Cases:  make([]*scope.Case, 0, len(m.Cases)),
	}

	for _, c := range m.Cases {
		method.Cases = append(method.Cases, c.build())
	}

	return method
}

func (c *Case) build() *scope.Case {
	sc := &scope.Case{
		DisplayName: c.Name,
		SkipReason:  c.Skip,
		SourceFile:  c.Source.File,
		SourceLine:  c.Source.Line,
		Explicit:    c.Explicit,
		Timeout:     c.Timeout,
		Traits:      c.Traits,
		Hooks:       c.Hooks.build("case " + c.Name),
		TestHooks:   c.TestHooks.build("test " + c.Name),
	}

	rowOutcomes := make(map[string]Outcome, len(c.Rows))

	for _, row := range c.Rows {
		sc.Rows = append(sc.Rows, scope.Row{Args: row.Args, SkipReason: row.Skip})

		if row.Outcome != "" {
			rowOutcomes[rowKey(row.Args)] = row.Outcome
		}
	}

	sc.Body = c.body(rowOutcomes)

	return sc
}

func rowKey(args []string) string {
	return strings.Join(args, "\x00")
}

// body returns the synthetic test body of the case.
func (c *Case) body(rowOutcomes map[string]Outcome) scope.Body {
	return func(ctx context.Context, tc *scope.TestContext) error {
		for _, line := range c.Output {
			tc.Log(line)
		}

		for _, w := range c.Warnings {
			tc.Warn(w)
		}

		if c.Sleep > 0 {
			select {
			case <-time.After(c.Sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		outcome := c.Outcome
		if o, ok := rowOutcomes[rowKey(tc.Args())]; ok {
			outcome = o
		}

		return c.produce(ctx, tc, outcome)
	}
}

func (c *Case) produce(ctx context.Context, tc *scope.TestContext, outcome Outcome) error {
	msg := c.Message

	switch outcome {
	case OutcomeFail:
		if msg == "" {
			msg = "assertion failed in " + c.Name
		}

		return pkgerrors.WithStack(&AssertionError{Message: msg})
	case OutcomeError:
		if msg == "" {
			msg = "unexpected error in " + c.Name
		}

		return pkgerrors.New(msg)
	case OutcomeMultiple:
		tc.Errors().Add(pkgerrors.New("first failure in " + c.Name))
		tc.Errors().Add(pkgerrors.New("second failure in " + c.Name))

		return nil
	case OutcomePanic:
		if msg == "" {
			msg = "panic in " + c.Name
		}

		panic(msg)
	case OutcomeSkip:
		if msg == "" {
			msg = "skipped at run time"
		}

		return tc.Skip(msg)
	case OutcomeTimeout:
		<-ctx.Done()

		return ctx.Err()
	default:
		return nil
	}
}

func (h Hooks) build(scopeName string) scope.Hooks {
	return scope.Hooks{
		AfterStarting:  failingHook(h.AfterStarting, scopeName),
		BeforeFinished: failingHook(h.BeforeFinished, scopeName),
	}
}

func failingHook(msg, scopeName string) scope.HookFunc {
	if msg == "" {
		return nil
	}

	return func(context.Context, message.IDs) error {
		return pkgerrors.Errorf("%s: %s", scopeName, msg)
	}
}
