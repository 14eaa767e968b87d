// Package plan loads scope trees from YAML plan files. Test bodies are
// synthetic: each case declares the outcome it produces.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/testoor/pkg/message"
)

// Outcome is what a synthetic test body does.
type Outcome string

const (
	// OutcomePass returns without error.
	OutcomePass Outcome = "pass"
	// OutcomeFail fails an assertion.
	OutcomeFail Outcome = "fail"
	// OutcomeError returns an unexpected error.
	OutcomeError Outcome = "error"
	// OutcomeMultiple reports two errors through the test's aggregator.
	OutcomeMultiple Outcome = "multiple"
	// OutcomePanic panics.
	OutcomePanic Outcome = "panic"
	// OutcomeSkip skips itself at run time.
	OutcomeSkip Outcome = "skip"
	// OutcomeTimeout blocks until the test's timeout expires.
	OutcomeTimeout Outcome = "timeout"
)

var validOutcomes = map[Outcome]struct{}{
	"":              {},
	OutcomePass:     {},
	OutcomeFail:     {},
	OutcomeError:    {},
	OutcomeMultiple: {},
	OutcomePanic:    {},
	OutcomeSkip:     {},
	OutcomeTimeout:  {},
}

// ErrNoCollections is returned for a plan without collections.
var ErrNoCollections = errors.New("plan has no collections")

// ErrDuplicateName is returned when siblings share a name, which would give
// them the same unique id.
var ErrDuplicateName = errors.New("duplicate name")

// Plan is the root of a plan file and describes one assembly.
type Plan struct {
	Name        string         `yaml:"name"`
	Environment string         `yaml:"environment,omitempty"`
	Traits      message.Traits `yaml:"traits,omitempty"`
	Hooks       Hooks          `yaml:"hooks,omitempty"`
	Collections []Collection   `yaml:"collections"`
}

// Hooks make the scope's extensibility points fail with the given message
// when set.
type Hooks struct {
	AfterStarting  string `yaml:"after_starting,omitempty"`
	BeforeFinished string `yaml:"before_finished,omitempty"`
}

// Collection describes a test collection.
type Collection struct {
	Name            string         `yaml:"name"`
	DefinitionClass string         `yaml:"definition_class,omitempty"`
	Traits          message.Traits `yaml:"traits,omitempty"`
	Hooks           Hooks          `yaml:"hooks,omitempty"`
	Classes         []Class        `yaml:"classes"`
}

// Class describes a test class.
type Class struct {
	Name    string         `yaml:"name"`
	Traits  message.Traits `yaml:"traits,omitempty"`
	Hooks   Hooks          `yaml:"hooks,omitempty"`
	Methods []Method       `yaml:"methods"`
}

// Method describes a test method.
type Method struct {
	Name   string         `yaml:"name"`
	Traits message.Traits `yaml:"traits,omitempty"`
	Hooks  Hooks          `yaml:"hooks,omitempty"`
	Cases  []Case         `yaml:"cases"`
}

// Case describes a test case and the behavior of its body.
type Case struct {
	Name      string         `yaml:"name"`
	Outcome   Outcome        `yaml:"outcome,omitempty"`
	Message   string         `yaml:"message,omitempty"`
	Skip      string         `yaml:"skip,omitempty"`
	Explicit  bool           `yaml:"explicit,omitempty"`
	Timeout   time.Duration  `yaml:"timeout,omitempty"`
	Sleep     time.Duration  `yaml:"sleep,omitempty"`
	Output    []string       `yaml:"output,omitempty"`
	Warnings  []string       `yaml:"warnings,omitempty"`
	Source    Source         `yaml:"source,omitempty"`
	Traits    message.Traits `yaml:"traits,omitempty"`
	Hooks     Hooks          `yaml:"hooks,omitempty"`
	TestHooks Hooks          `yaml:"test_hooks,omitempty"`
	Rows      []Row          `yaml:"rows,omitempty"`
}

// Source is the declared source location of a case.
type Source struct {
	File string `yaml:"file,omitempty"`
	Line int    `yaml:"line,omitempty"`
}

// Row is one data row of a case. Outcome overrides the case's outcome for
// the test materialized from the row.
type Row struct {
	Args    []string `yaml:"args"`
	Skip    string   `yaml:"skip,omitempty"`
	Outcome Outcome  `yaml:"outcome,omitempty"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("loading plan %s: %w", path, err)
	}

	return p, nil
}

// Parse decodes and validates a plan. Unknown fields are rejected.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Validate checks names and outcomes throughout the plan.
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan name is required")
	}

	if len(p.Collections) == 0 {
		return ErrNoCollections
	}

	collections := newNameSet()

	for i, col := range p.Collections {
		if col.Name == "" {
			return fmt.Errorf("collections[%d]: name is required", i)
		}

		if err := collections.add(col.Name, col.DefinitionClass); err != nil {
			return fmt.Errorf("collections[%d]: %w", i, err)
		}

		classes := newNameSet()

		for j, cls := range col.Classes {
			if cls.Name == "" {
				return fmt.Errorf("collection %q: classes[%d]: name is required", col.Name, j)
			}

			if err := classes.add(cls.Name); err != nil {
				return fmt.Errorf("collection %q: classes[%d]: %w", col.Name, j, err)
			}

			methods := newNameSet()

			for k, m := range cls.Methods {
				if m.Name == "" {
					return fmt.Errorf("class %q: methods[%d]: name is required", cls.Name, k)
				}

				if err := methods.add(m.Name); err != nil {
					return fmt.Errorf("class %q: methods[%d]: %w", cls.Name, k, err)
				}

				cases := newNameSet()

				for l := range m.Cases {
					if err := m.Cases[l].validate(); err != nil {
						return fmt.Errorf("method %s.%s: cases[%d]: %w", cls.Name, m.Name, l, err)
					}

					if err := cases.add(m.Cases[l].Name); err != nil {
						return fmt.Errorf("method %s.%s: cases[%d]: %w", cls.Name, m.Name, l, err)
					}
				}
			}
		}
	}

	return nil
}

// nameSet detects siblings with the same identifying parts.
type nameSet map[string]struct{}

func newNameSet() nameSet {
	return make(nameSet, 4)
}

func (s nameSet) add(parts ...string) error {
	key := strings.Join(parts, "\x00")
	if _, ok := s[key]; ok {
		return fmt.Errorf("%w %q", ErrDuplicateName, parts[0])
	}

	s[key] = struct{}{}

	return nil
}

func (c *Case) validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}

	outcomes := []Outcome{c.Outcome}
	for _, row := range c.Rows {
		outcomes = append(outcomes, row.Outcome)
	}

	for _, o := range outcomes {
		if _, ok := validOutcomes[o]; !ok {
			return fmt.Errorf("unknown outcome %q", o)
		}

		if o == OutcomeTimeout && c.Timeout <= 0 {
			return fmt.Errorf("outcome %q requires a timeout", o)
		}
	}

	if c.Timeout < 0 || c.Sleep < 0 {
		return fmt.Errorf("timeout and sleep must not be negative")
	}

	rows := newNameSet()

	for i, row := range c.Rows {
		if err := rows.add(rowKey(row.Args)); err != nil {
			return fmt.Errorf("rows[%d]: args %q: %w", i, row.Args, ErrDuplicateName)
		}
	}

	return nil
}
