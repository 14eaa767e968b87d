package errmeta

import (
	"fmt"
	"strings"
)

const (
	framePrefix = "   at "
	indentUnit  = "----"
)

// StackFilter decides which stack frame lines are rendered. Frames whose
// function name starts with one of Prefixes are dropped. The zero value
// keeps every frame.
type StackFilter struct {
	Prefixes []string
}

// NoFilter keeps every frame verbatim.
var NoFilter = StackFilter{}

// DefaultStackFilter hides the engine's own frames and the Go runtime.
var DefaultStackFilter = StackFilter{
	Prefixes: []string{
		"github.com/ethpandaops/testoor/pkg/",
		"runtime.",
	},
}

// Apply returns stack without the filtered frame lines.
func (f StackFilter) Apply(stack string) string {
	if len(f.Prefixes) == 0 || stack == "" {
		return stack
	}

	lines := strings.Split(stack, "\n")
	kept := lines[:0]

	for _, line := range lines {
		if !f.internal(line) {
			kept = append(kept, line)
		}
	}

	return strings.Join(kept, "\n")
}

func (f StackFilter) internal(line string) bool {
	frame, ok := strings.CutPrefix(line, framePrefix)
	if !ok {
		return false
	}

	for _, prefix := range f.Prefixes {
		if strings.HasPrefix(frame, prefix) {
			return true
		}
	}

	return false
}

// CombineMessages renders one line per entry, each nested entry indented
// one level deeper than the entry that produced it.
func CombineMessages(m *Metadata) string {
	if m.Len() == 0 {
		return ""
	}

	var sb strings.Builder

	writeMessage(&sb, m, 0, 0)

	return sb.String()
}

func writeMessage(sb *strings.Builder, m *Metadata, index, level int) {
	if level > 0 {
		sb.WriteString("\n")
		sb.WriteString(strings.Repeat(indentUnit, level))
		sb.WriteString(" ")
	}

	if t := m.Types[index]; t != "" {
		sb.WriteString(t)
		sb.WriteString(" : ")
	}

	sb.WriteString(m.Messages[index])

	for _, child := range childIndices(m, index) {
		writeMessage(sb, m, child, level+1)
	}
}

// CombineStackTraces renders the stack of every entry, inner stacks under an
// "Inner Stack Trace" banner that is numbered when an entry has several.
func CombineStackTraces(m *Metadata, filter StackFilter) string {
	if m.Len() == 0 {
		return ""
	}

	return stackTrace(m, 0, filter)
}

func stackTrace(m *Metadata, index int, filter StackFilter) string {
	result := filter.Apply(m.StackTraces[index])
	children := childIndices(m, index)

	switch {
	case len(children) > 1:
		for i, child := range children {
			result += fmt.Sprintf("\n----- Inner Stack Trace #%d (%s) -----\n%s",
				i+1, m.Types[child], stackTrace(m, child, filter))
		}
	case len(children) == 1:
		result += "\n----- Inner Stack Trace -----\n" + stackTrace(m, children[0], filter)
	}

	return result
}

// childIndices returns the entries produced by index. Pre-order numbering
// guarantees they all come after it.
func childIndices(m *Metadata, index int) []int {
	var out []int

	for i := index + 1; i < len(m.ParentIndices); i++ {
		if m.ParentIndices[i] == index {
			out = append(out, i)
		}
	}

	return out
}
