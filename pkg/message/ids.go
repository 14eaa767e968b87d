package message

import (
	"fmt"
	"strings"
)

// Level is a position in the fixed scope tree.
type Level int

const (
	// LevelNone marks messages that describe no scope.
	LevelNone Level = iota
	LevelAssembly
	LevelCollection
	LevelClass
	LevelMethod
	LevelCase
	LevelTest
)

var levelNames = [...]string{"none", "assembly", "collection", "class", "method", "case", "test"}

func (l Level) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return fmt.Sprintf("level(%d)", int(l))
	}

	return levelNames[l]
}

// IDs carries the unique id of a scope and of all of its ancestors. Only
// ids are carried, never the scope objects, so messages stay serializable.
type IDs struct {
	AssemblyID   string `json:"assembly_id,omitempty"`
	CollectionID string `json:"collection_id,omitempty"`
	ClassID      string `json:"class_id,omitempty"`
	MethodID     string `json:"method_id,omitempty"`
	CaseID       string `json:"case_id,omitempty"`
	TestID       string `json:"test_id,omitempty"`
}

// ScopeIDs returns the ids. Embedding IDs gives every message this method.
func (ids IDs) ScopeIDs() IDs { return ids }

// Ancestors returns the non-empty ids from the assembly down to, and
// including, the deepest populated scope.
func (ids IDs) Ancestors() []string {
	out := make([]string, 0, 6)

	for _, id := range []string{ids.AssemblyID, ids.CollectionID, ids.ClassID, ids.MethodID, ids.CaseID, ids.TestID} {
		if id != "" {
			out = append(out, id)
		}
	}

	return out
}

// Own returns the id of the scope at level l.
func (ids IDs) Own(l Level) string {
	switch l {
	case LevelAssembly:
		return ids.AssemblyID
	case LevelCollection:
		return ids.CollectionID
	case LevelClass:
		return ids.ClassID
	case LevelMethod:
		return ids.MethodID
	case LevelCase:
		return ids.CaseID
	case LevelTest:
		return ids.TestID
	default:
		return ""
	}
}

// Validate checks that a message is well formed: every id its level
// requires is present, and no id is present without its ancestors.
func Validate(msg Message) error {
	ids := msg.ScopeIDs()
	level := msg.Kind().Level()

	var missing []string

	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	if msg.Kind() == KindError {
		if ids != (IDs{}) {
			return fmt.Errorf("%s: global messages carry no scope ids", msg.Kind())
		}

		return nil
	}

	if level >= LevelAssembly {
		require("assembly_id", ids.AssemblyID)
	}

	if level >= LevelCollection {
		require("collection_id", ids.CollectionID)
	}

	switch level {
	case LevelClass:
		require("class_id", ids.ClassID)
	case LevelMethod:
		require("class_id", ids.ClassID)
		require("method_id", ids.MethodID)
	case LevelCase:
		require("case_id", ids.CaseID)
	case LevelTest:
		require("case_id", ids.CaseID)
		require("test_id", ids.TestID)
	}

	// An id implies the ids of its ancestors.
	implied := []struct {
		child, parent         string
		childName, parentName string
	}{
		{ids.TestID, ids.CaseID, "test_id", "case_id"},
		{ids.CaseID, ids.CollectionID, "case_id", "collection_id"},
		{ids.MethodID, ids.ClassID, "method_id", "class_id"},
		{ids.ClassID, ids.CollectionID, "class_id", "collection_id"},
		{ids.CollectionID, ids.AssemblyID, "collection_id", "assembly_id"},
	}

	for _, rule := range implied {
		if rule.child != "" && rule.parent == "" {
			missing = append(missing, rule.parentName+" (implied by "+rule.childName+")")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%s: missing %s", msg.Kind(), strings.Join(missing, ", "))
	}

	return nil
}
