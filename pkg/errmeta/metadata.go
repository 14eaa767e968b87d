// Package errmeta flattens error trees into a transport-safe representation
// and aggregates the errors raised while a scope executes.
package errmeta

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/pkg/errors"
)

// Metadata is the flattened form of an error tree. The four slices are
// parallel: entry i describes the i-th node in pre-order, and
// ParentIndices[i] is the index of the node that produced it (-1 for the
// root).
type Metadata struct {
	Types         []string `json:"types"`
	Messages      []string `json:"messages"`
	StackTraces   []string `json:"stack_traces"`
	ParentIndices []int    `json:"parent_indices"`
	Cause         Cause    `json:"cause"`
}

// typeNamer lets an error report a stable type name instead of its Go type.
type typeNamer interface {
	TypeName() string
}

// headliner lets a composite error report its own message without the
// messages of the errors it holds.
type headliner interface {
	Headline() string
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Extract flattens err. It returns nil for a nil error.
func Extract(err error) *Metadata {
	if err == nil {
		return nil
	}

	m := &Metadata{Cause: classify(err)}
	m.visit(err, -1, "")

	return m
}

// Synthetic builds single-entry metadata for failures that have no live
// error behind them.
func Synthetic(typeName, message string, cause Cause) *Metadata {
	return &Metadata{
		Types:         []string{typeName},
		Messages:      []string{message},
		StackTraces:   []string{""},
		ParentIndices: []int{-1},
		Cause:         cause,
	}
}

// Len returns the number of flattened entries.
func (m *Metadata) Len() int {
	if m == nil {
		return 0
	}

	return len(m.Types)
}

// Clone returns a deep copy so transforms never share slices.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}

	return &Metadata{
		Types:         append([]string(nil), m.Types...),
		Messages:      append([]string(nil), m.Messages...),
		StackTraces:   append([]string(nil), m.StackTraces...),
		ParentIndices: append([]int(nil), m.ParentIndices...),
		Cause:         m.Cause,
	}
}

func (m *Metadata) visit(err error, parent int, inheritedStack string) {
	stack := formatStack(err)
	if stack == "" {
		stack = inheritedStack
	}

	children := childrenOf(err)

	// Wrappers that only attach a stack collapse into what they wrap.
	if len(children) == 1 && children[0].Error() == err.Error() {
		m.visit(children[0], parent, stack)

		return
	}

	idx := len(m.Types)

	m.Types = append(m.Types, typeName(err))
	m.Messages = append(m.Messages, ownMessage(err, children))
	m.StackTraces = append(m.StackTraces, stack)
	m.ParentIndices = append(m.ParentIndices, parent)

	for _, child := range children {
		m.visit(child, idx, "")
	}
}

// childrenOf returns the errors err directly produces: the members of a
// composite error, else its single wrapped error.
func childrenOf(err error) []error {
	var out []error

	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		for _, child := range e.Unwrap() {
			if child != nil {
				out = append(out, child)
			}
		}
	case interface{ Unwrap() error }:
		if child := e.Unwrap(); child != nil {
			out = append(out, child)
		}
	}

	return out
}

// collapse walks through stack-only wrappers to the error they decorate.
func collapse(err error) error {
	for {
		children := childrenOf(err)
		if len(children) != 1 || children[0].Error() != err.Error() {
			return err
		}

		err = children[0]
	}
}

func typeName(err error) string {
	if n, ok := err.(typeNamer); ok {
		return n.TypeName()
	}

	return fmt.Sprintf("%T", err)
}

func ownMessage(err error, children []error) string {
	msg := err.Error()

	switch len(children) {
	case 0:
		return msg
	case 1:
		if trimmed, ok := strings.CutSuffix(msg, ": "+children[0].Error()); ok {
			return trimmed
		}

		return msg
	default:
		if h, ok := err.(headliner); ok {
			return h.Headline()
		}

		parts := make([]string, 0, len(children))
		for _, child := range children {
			parts = append(parts, child.Error())
		}

		if msg == strings.Join(parts, "\n") {
			return multipleErrorsHeadline
		}

		return msg
	}
}

// formatStack renders the frames of a pkg/errors stack, one per line.
func formatStack(err error) string {
	st, ok := err.(stackTracer)
	if !ok {
		return ""
	}

	frames := st.StackTrace()
	lines := make([]string, 0, len(frames))

	for _, f := range frames {
		pc := uintptr(f) - 1

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			lines = append(lines, framePrefix+"unknown")

			continue
		}

		file, line := fn.FileLine(pc)
		lines = append(lines, fmt.Sprintf("%s%s in %s:%d", framePrefix, fn.Name(), file, line))
	}

	return strings.Join(lines, "\n")
}
