package scope

import (
	"time"

	"github.com/ethpandaops/testoor/pkg/errmeta"
	"github.com/ethpandaops/testoor/pkg/message"
	"github.com/ethpandaops/testoor/pkg/uniqueid"
)

// node adapts one level of the tree to the generic state machine.
type node interface {
	level() message.Level
	scopeIDs(parent message.IDs) message.IDs
	starting(ids message.IDs) message.Message
	finished(ids message.IDs, s message.RunSummary) message.Finished
	cleanupFailure(ids message.IDs, m *errmeta.Metadata) message.Message
	hooks() Hooks
	// children returns the ordered child nodes; nil for the leaf level.
	children(e *execution, ids message.IDs) []node
}

type assemblyNode struct {
	a    *Assembly
	seed *int64
}

func (n *assemblyNode) level() message.Level { return message.LevelAssembly }
func (n *assemblyNode) hooks() Hooks         { return n.a.Hooks }

func (n *assemblyNode) scopeIDs(message.IDs) message.IDs {
	return message.IDs{AssemblyID: uniqueid.ForAssembly(n.a.Name, n.a.Path, n.a.ConfigFile)}
}

func (n *assemblyNode) starting(ids message.IDs) message.Message {
	return &message.AssemblyStarting{
		IDs:             ids,
		AssemblyName:    n.a.Name,
		AssemblyPath:    n.a.Path,
		ConfigFilePath:  n.a.ConfigFile,
		Seed:            n.seed,
		StartTime:       time.Now(),
		TestEnvironment: n.a.Environment,
		Traits:          n.a.Traits,
	}
}

func (n *assemblyNode) finished(ids message.IDs, s message.RunSummary) message.Finished {
	return &message.AssemblyFinished{IDs: ids, Summary: s, FinishTime: time.Now()}
}

func (n *assemblyNode) cleanupFailure(ids message.IDs, m *errmeta.Metadata) message.Message {
	return &message.AssemblyCleanupFailure{IDs: ids, Error: m}
}

func (n *assemblyNode) children(e *execution, ids message.IDs) []node {
	ordered, err := applyOrder(n.a.Collections, e.opts.collectionOrderer().OrderCollections)
	if err != nil {
		e.orderingFailed(ids, "collection", e.opts.collectionOrderer(), err)

		ordered = n.a.Collections
	}

	out := make([]node, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, &collectionNode{c: c})
	}

	return out
}

type collectionNode struct{ c *Collection }

func (n *collectionNode) level() message.Level { return message.LevelCollection }
func (n *collectionNode) hooks() Hooks         { return n.c.Hooks }

func (n *collectionNode) scopeIDs(parent message.IDs) message.IDs {
	ids := parent
	ids.CollectionID = uniqueid.ForCollection(parent.AssemblyID, n.c.DisplayName, n.c.DefinitionClass)

	return ids
}

func (n *collectionNode) starting(ids message.IDs) message.Message {
	return &message.CollectionStarting{
		IDs:                   ids,
		CollectionDisplayName: n.c.DisplayName,
		CollectionClassName:   n.c.DefinitionClass,
		Traits:                n.c.Traits,
	}
}

func (n *collectionNode) finished(ids message.IDs, s message.RunSummary) message.Finished {
	return &message.CollectionFinished{IDs: ids, Summary: s}
}

func (n *collectionNode) cleanupFailure(ids message.IDs, m *errmeta.Metadata) message.Message {
	return &message.CollectionCleanupFailure{IDs: ids, Error: m}
}

func (n *collectionNode) children(*execution, message.IDs) []node {
	out := make([]node, 0, len(n.c.Classes))
	for _, c := range n.c.Classes {
		out = append(out, &classNode{c: c})
	}

	return out
}

type classNode struct{ c *Class }

func (n *classNode) level() message.Level { return message.LevelClass }
func (n *classNode) hooks() Hooks         { return n.c.Hooks }

func (n *classNode) scopeIDs(parent message.IDs) message.IDs {
	ids := parent
	ids.ClassID = uniqueid.ForClass(parent.CollectionID, n.c.Name)

	return ids
}

func (n *classNode) starting(ids message.IDs) message.Message {
	return &message.ClassStarting{IDs: ids, ClassName: n.c.Name, Traits: n.c.Traits}
}

func (n *classNode) finished(ids message.IDs, s message.RunSummary) message.Finished {
	return &message.ClassFinished{IDs: ids, Summary: s}
}

func (n *classNode) cleanupFailure(ids message.IDs, m *errmeta.Metadata) message.Message {
	return &message.ClassCleanupFailure{IDs: ids, Error: m}
}

func (n *classNode) children(*execution, message.IDs) []node {
	out := make([]node, 0, len(n.c.Methods))
	for _, m := range n.c.Methods {
		out = append(out, &methodNode{m: m})
	}

	return out
}

type methodNode struct{ m *Method }

func (n *methodNode) level() message.Level { return message.LevelMethod }
func (n *methodNode) hooks() Hooks         { return n.m.Hooks }

func (n *methodNode) scopeIDs(parent message.IDs) message.IDs {
	ids := parent
	ids.MethodID = uniqueid.ForMethod(parent.ClassID, n.m.Name)

	return ids
}

func (n *methodNode) starting(ids message.IDs) message.Message {
	return &message.MethodStarting{IDs: ids, MethodName: n.m.Name, Traits: n.m.Traits}
}

func (n *methodNode) finished(ids message.IDs, s message.RunSummary) message.Finished {
	return &message.MethodFinished{IDs: ids, Summary: s}
}

func (n *methodNode) cleanupFailure(ids message.IDs, m *errmeta.Metadata) message.Message {
	return &message.MethodCleanupFailure{IDs: ids, Error: m}
}

func (n *methodNode) children(e *execution, ids message.IDs) []node {
	ordered, err := applyOrder(n.m.Cases, e.opts.caseOrderer().OrderCases)
	if err != nil {
		e.orderingFailed(ids, "case", e.opts.caseOrderer(), err)

		ordered = n.m.Cases
	}

	out := make([]node, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, &caseNode{c: c})
	}

	return out
}

type caseNode struct{ c *Case }

func (n *caseNode) level() message.Level { return message.LevelCase }
func (n *caseNode) hooks() Hooks         { return n.c.Hooks }

func (n *caseNode) scopeIDs(parent message.IDs) message.IDs {
	ids := parent
	ids.CaseID = uniqueid.ForCase(parent.MethodID, n.c.DisplayName)

	return ids
}

func (n *caseNode) starting(ids message.IDs) message.Message {
	return &message.CaseStarting{
		IDs:              ids,
		CaseDisplayName:  n.c.DisplayName,
		SkipReason:       n.c.SkipReason,
		SourceFilePath:   n.c.SourceFile,
		SourceLineNumber: n.c.SourceLine,
		Traits:           n.c.Traits,
	}
}

func (n *caseNode) finished(ids message.IDs, s message.RunSummary) message.Finished {
	return &message.CaseFinished{IDs: ids, Summary: s}
}

func (n *caseNode) cleanupFailure(ids message.IDs, m *errmeta.Metadata) message.Message {
	return &message.CaseCleanupFailure{IDs: ids, Error: m}
}

func (n *caseNode) children(*execution, message.IDs) []node {
	tests := n.c.Tests()

	out := make([]node, 0, len(tests))
	for i, t := range tests {
		out = append(out, &testNode{t: t, index: i})
	}

	return out
}

// testNode is the leaf. It also carries the result of its own execution,
// which the Finished message reports.
type testNode struct {
	t      *Test
	index  int
	result message.TestResult
}

func (n *testNode) level() message.Level { return message.LevelTest }
func (n *testNode) hooks() Hooks         { return n.t.Hooks }

func (n *testNode) scopeIDs(parent message.IDs) message.IDs {
	ids := parent
	ids.TestID = uniqueid.ForTest(parent.CaseID, n.index)

	return ids
}

func (n *testNode) starting(ids message.IDs) message.Message {
	return &message.TestStarting{
		IDs:             ids,
		TestDisplayName: n.t.DisplayName,
		Explicit:        n.t.Explicit,
		StartTime:       time.Now(),
		Timeout:         n.t.Timeout,
		Traits:          n.t.Traits,
	}
}

func (n *testNode) finished(ids message.IDs, s message.RunSummary) message.Finished {
	return &message.TestFinished{IDs: ids, TestResult: n.result, Summary: s}
}

func (n *testNode) cleanupFailure(ids message.IDs, m *errmeta.Metadata) message.Message {
	return &message.TestCleanupFailure{IDs: ids, Error: m}
}

func (n *testNode) children(*execution, message.IDs) []node { return nil }
