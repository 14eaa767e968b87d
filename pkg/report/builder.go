package report

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
)

// TestFramework is reported as the assembly's test framework.
const TestFramework = "testoor"

// Builder assembles a Report from messages. It is safe for concurrent use.
type Builder struct {
	filter errmeta.StackFilter
	host   *Host
	meta   *metadataCache

	mu          sync.Mutex
	assemblies  map[string]*Assembly
	order       []*Assembly
	collections map[string]*Collection
	tests       map[string]*Test
	orphans     []*Error
}

// NewBuilder creates a builder. Stack traces in failures are passed
// through filter.
func NewBuilder(filter errmeta.StackFilter) *Builder {
	return &Builder{
		filter:      filter,
		meta:        newMetadataCache(),
		assemblies:  make(map[string]*Assembly, 1),
		collections: make(map[string]*Collection, 8),
		tests:       make(map[string]*Test, 64),
	}
}

// WithHost attaches host details to every assembly built afterwards.
func (b *Builder) WithHost(h *Host) *Builder {
	b.host = h

	return b
}

// Observe updates the report with msg.
func (b *Builder) Observe(msg message.Message) {
	ids := msg.ScopeIDs()

	// Metadata of intermediate scopes never becomes its own element; it is
	// cached until the tests below it need it.
	switch m := msg.(type) {
	case *message.ClassStarting:
		b.meta.put(m.ClassID, scopeMeta{name: m.ClassName})

		return
	case *message.MethodStarting:
		b.meta.put(m.MethodID, scopeMeta{name: m.MethodName})

		return
	case *message.CaseStarting:
		b.meta.put(m.CaseID, scopeMeta{name: m.CaseDisplayName, sourceFile: m.SourceFilePath, sourceLine: m.SourceLineNumber})

		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch m := msg.(type) {
	case *message.AssemblyStarting:
		a := &Assembly{
			ID:            m.AssemblyID,
			Name:          m.AssemblyName,
			ConfigFile:    m.ConfigFilePath,
			TestFramework: TestFramework,
			Environment:   m.TestEnvironment,
			RunDate:       m.StartTime.Format(time.DateOnly),
			RunTime:       m.StartTime.Format(time.TimeOnly),
			Seed:          m.Seed,
			Host:          b.host,
			Collections:   []*Collection{},
		}
		b.assemblies[m.AssemblyID] = a
		b.order = append(b.order, a)
	case *message.AssemblyFinished:
		if a, ok := b.assemblies[m.AssemblyID]; ok {
			a.Total, a.Passed, a.Failed, a.Skipped, a.NotRun, a.Time = counts(m.Summary)
			a.FinishTime = m.FinishTime.Format(time.RFC3339)
		}
	case *message.CollectionStarting:
		c := &Collection{ID: m.CollectionID, Name: m.CollectionDisplayName, Tests: []*Test{}}
		b.collections[m.CollectionID] = c

		if a, ok := b.assemblies[m.AssemblyID]; ok {
			a.Collections = append(a.Collections, c)
		}
	case *message.CollectionFinished:
		if c, ok := b.collections[m.CollectionID]; ok {
			c.Total, c.Passed, c.Failed, c.Skipped, c.NotRun, c.Time = counts(m.Summary)
		}

		delete(b.collections, m.CollectionID)
	case *message.TestStarting:
		b.startTest(m)
	case *message.TestPassed:
		b.result(ids, ResultPass, m.TestResult, "", nil)
	case *message.TestFailed:
		b.result(ids, ResultFail, m.TestResult, "", m.Failure)
	case *message.TestSkipped:
		b.result(ids, ResultSkip, m.TestResult, m.Reason, nil)
	case *message.TestNotRun:
		b.result(ids, ResultNotRun, m.TestResult, "", nil)
	case *message.TestFinished:
		delete(b.tests, m.TestID)
	case message.CleanupFailure:
		b.addError(ids, cleanupType(msg.Kind()), b.scopeName(msg.Kind().Level(), ids), m.CleanupError())
	case *message.ErrorMessage:
		b.addError(ids, "fatal", "", m.Error)
	}

	switch msg.(type) {
	case *message.ClassFinished:
		b.meta.drop(ids.ClassID)
	case *message.MethodFinished:
		b.meta.drop(ids.MethodID)
	case *message.CaseFinished:
		b.meta.drop(ids.CaseID)
	}
}

func (b *Builder) startTest(m *message.TestStarting) {
	caseMeta := b.meta.get(m.CaseID)

	t := &Test{
		ID:         m.TestID,
		Name:       m.TestDisplayName,
		Type:       b.meta.get(m.ClassID).name,
		Method:     b.meta.get(m.MethodID).name,
		Result:     ResultNotRun,
		SourceFile: caseMeta.sourceFile,
		SourceLine: caseMeta.sourceLine,
		Explicit:   m.Explicit,
		Traits:     flattenTraits(m.Traits),
	}

	b.tests[m.TestID] = t

	if c, ok := b.collections[m.CollectionID]; ok {
		c.Tests = append(c.Tests, t)
	}
}

func (b *Builder) result(ids message.IDs, r Result, tr message.TestResult, reason string, failure *errmeta.Metadata) {
	t, ok := b.tests[ids.TestID]
	if !ok {
		return
	}

	t.Result = r
	t.Time = seconds(tr.ExecutionTime)
	t.Output = tr.Output
	t.Warnings = tr.Warnings
	t.Reason = reason
	t.Failure = b.failure(failure)
}

func (b *Builder) addError(ids message.IDs, typ, name string, m *errmeta.Metadata) {
	e := &Error{Type: typ, Name: name, Failure: b.failure(m)}

	a, ok := b.assemblies[ids.AssemblyID]
	if !ok {
		b.orphans = append(b.orphans, e)

		return
	}

	a.Errors = append(a.Errors, e)
	a.ErrorCount++
}

func (b *Builder) scopeName(level message.Level, ids message.IDs) string {
	switch level {
	case message.LevelAssembly:
		if a, ok := b.assemblies[ids.AssemblyID]; ok {
			return a.Name
		}
	case message.LevelCollection:
		if c, ok := b.collections[ids.CollectionID]; ok {
			return c.Name
		}
	case message.LevelTest:
		if t, ok := b.tests[ids.TestID]; ok {
			return t.Name
		}
	case message.LevelClass, message.LevelMethod, message.LevelCase:
		return b.meta.get(ids.Own(level)).name
	}

	return ""
}

func (b *Builder) failure(m *errmeta.Metadata) *Failure {
	if m == nil || m.Len() == 0 {
		return nil
	}

	return &Failure{
		ExceptionType: m.Types[0],
		Cause:         m.Cause.String(),
		Message:       errmeta.CombineMessages(m),
		StackTrace:    errmeta.CombineStackTraces(m, b.filter),
	}
}

// Report returns the report built so far. The returned tree must not be
// modified while messages are still being observed.
func (b *Builder) Report() *Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := &Report{
		Assemblies: slices.Clone(b.order),
		Errors:     slices.Clone(b.orphans),
	}

	if len(b.order) > 0 {
		r.Timestamp = b.order[0].RunDate + "T" + b.order[0].RunTime
	}

	return r
}

func cleanupType(k message.Kind) string {
	return k.Level().String() + "-cleanup"
}

func counts(s message.RunSummary) (total, passed, failed, skipped, notRun int, t float64) {
	return s.Total, s.Passed(), s.Failed, s.Skipped, s.NotRun, seconds(s.Time)
}

func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

func flattenTraits(traits message.Traits) []Trait {
	if len(traits) == 0 {
		return nil
	}

	out := make([]Trait, 0, len(traits))
	for name, values := range traits {
		for _, v := range values {
			out = append(out, Trait{Name: name, Value: v})
		}
	}

	slices.SortFunc(out, func(a, b Trait) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Value, b.Value))
	})

	return out
}

type scopeMeta struct {
	name       string
	sourceFile string
	sourceLine int
}

// metadataCache holds names of scopes that are still executing, keyed by
// unique id.
type metadataCache struct {
	mu      sync.RWMutex
	entries map[string]scopeMeta
}

func newMetadataCache() *metadataCache {
	return &metadataCache{entries: make(map[string]scopeMeta, 32)}
}

func (c *metadataCache) put(id string, m scopeMeta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = m
}

func (c *metadataCache) get(id string) scopeMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.entries[id]
}

func (c *metadataCache) drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}
